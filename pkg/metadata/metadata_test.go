package metadata

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestCounts(t *testing.T) {
	m := &Manifest{Images: []ImageRecord{
		{Index: 0, Success: true},
		{Index: 1, Success: false, Error: "status 404"},
		{Index: 2, Success: true},
	}}

	assert.Equal(t, 2, m.Succeeded())
	assert.Equal(t, 1, m.Failed())
}

func TestSaveWritesSidecar(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "Gallery_1700000000000.zip")
	m := &Manifest{
		TaskID:    "t-1",
		URL:       "https://g.example/1",
		Title:     "Gallery",
		Archive:   archive,
		CreatedAt: time.Unix(1700000000, 0).UTC(),
		Outcome:   Outcome{Completed: true, Reason: "height_exhausted", Elapsed: 3 * time.Second, Scrolled: 4200, Matched: 40},
		Images:    []ImageRecord{{Index: 0, URL: "https://cdn.example/1.jpg", FileName: "1.jpg", Size: 10, Success: true}},
	}

	require.False(t, Exists(archive))
	require.NoError(t, m.Save(archive))
	assert.True(t, Exists(archive))
	assert.FileExists(t, archive+".json")

	loaded, err := Load(archive)
	require.NoError(t, err)
	assert.Equal(t, m.Outcome, loaded.Outcome)
	assert.Equal(t, m.Images, loaded.Images)
	assert.True(t, m.CreatedAt.Equal(loaded.CreatedAt))
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.zip"))
	assert.Error(t, err)
}
