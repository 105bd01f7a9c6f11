package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLookup(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache", "task")
	m, err := NewManager(dir)
	require.NoError(t, err)

	assert.False(t, m.IsCached("1.jpg"))

	n, err := m.Save(strings.NewReader("jpeg-bytes"), "1.jpg")
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	assert.True(t, m.IsCached("1.jpg"))
	assert.Equal(t, int64(10), m.Size("1.jpg"))
	assert.Equal(t, int64(-1), m.Size("2.jpg"))

	data, err := os.ReadFile(m.Path("1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
}

func TestSaveRejectsPathTraversal(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	_, err = m.Save(strings.NewReader("x"), "../escape.jpg")
	assert.Error(t, err)
	_, err = m.Save(strings.NewReader("x"), "")
	assert.Error(t, err)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestSaveFailureLeavesNoFiles(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	require.NoError(t, err)

	_, err = m.Save(failingReader{}, "broken.jpg")
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.False(t, m.IsCached("broken.jpg"))
}

func TestRescanPicksUpExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte("png"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.jpg.123.tmp"), []byte("partial"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.jpg"), nil, 0644))

	m, err := NewManager(dir)
	require.NoError(t, err)

	assert.True(t, m.IsCached("a.png"))
	assert.False(t, m.IsCached("empty.jpg"))
	assert.Equal(t, 1, m.Count())
	assert.NoFileExists(t, filepath.Join(dir, "b.jpg.123.tmp"))
}

func TestConcurrentSaves(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Save(strings.NewReader("img"), string(rune('a'+i))+".jpg")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, m.Count())
}

func TestClear(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	m, err := NewManager(dir)
	require.NoError(t, err)
	_, err = m.Save(strings.NewReader("img"), "1.jpg")
	require.NoError(t, err)

	require.NoError(t, m.Clear())

	assert.NoDirExists(t, dir)
	assert.Zero(t, m.Count())
}
