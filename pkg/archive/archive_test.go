package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Summer Trip - My Gallery Site", "Summer_Trip"},
		{"  a/b:c*d?  ", "a_b_c_d_"},
		{`x"y<z>w|v\u`, "x_y_z_w_v_u"},
		{"many   spaces\there", "many_spaces_here"},
		{"", "gallery"},
		{"- only suffix", "gallery"},
		{"日本 の 写真", "日本_の_写真"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeTitle(tt.in), tt.in)
	}
}

func TestName(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	assert.Equal(t, "Summer_Trip_1700000000123.zip", Name("Summer Trip - Site", now))
	assert.Equal(t, "gallery_1700000000123.zip", Name("", now))
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	return p
}

func TestWriteResolvesCollisions(t *testing.T) {
	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "dist", "g_1.zip")

	n, err := Write(out, []Entry{
		{Name: "1.jpg", Index: 0, Path: writeFile(t, src, "a", "aaa")},
		{Name: "2.jpg", Index: 1, Path: writeFile(t, src, "b", "bbb")},
		{Name: "1.jpg", Index: 2, Path: writeFile(t, src, "c", "ccc")},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	names, err := List(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.jpg", "2.jpg", "2_1.jpg"}, names)
}

func TestWriteNeverReusesAPrefixedName(t *testing.T) {
	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "g_2.zip")

	n, err := Write(out, []Entry{
		{Name: "5.jpg", Index: 0, Path: writeFile(t, src, "a", "aaa")},
		{Name: "7_5.jpg", Index: 1, Path: writeFile(t, src, "b", "bbb")},
		{Name: "5.jpg", Index: 7, Path: writeFile(t, src, "c", "ccc")},
		{Name: "5.jpg", Index: 7, Path: writeFile(t, src, "d", "ddd")},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	names, err := List(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"5.jpg", "7_5.jpg", "7_2_5.jpg", "7_3_5.jpg"}, names)
}

func TestWriteEmptyFails(t *testing.T) {
	out := filepath.Join(t.TempDir(), "empty.zip")
	_, err := Write(out, nil)
	assert.Error(t, err)
	assert.NoFileExists(t, out)
}

func TestWriteMissingSourceLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "broken.zip")

	_, err := Write(out, []Entry{{Name: "1.jpg", Path: filepath.Join(dir, "missing")}})
	assert.Error(t, err)
	assert.NoFileExists(t, out)

	left, _ := filepath.Glob(filepath.Join(dir, ".archive-*"))
	assert.Empty(t, left)
}

func TestUnique(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "g_1.zip")
	assert.Equal(t, p, Unique(p))

	writeFile(t, dir, "g_1.zip", "x")
	assert.Equal(t, filepath.Join(dir, "g_1_2.zip"), Unique(p))

	writeFile(t, dir, "g_1_2.zip", "x")
	assert.Equal(t, filepath.Join(dir, "g_1_3.zip"), Unique(p))
}
