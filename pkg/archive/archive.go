// Package archive names and writes the per-task zip archive.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Entry is one image to store in the archive
type Entry struct {
	Name  string // entry name inside the zip
	Index int    // candidate index, used to resolve name collisions
	Path  string // file on disk holding the image bytes
}

const fallbackTitle = "gallery"

// SanitizeTitle turns a page title into a file name stem. Only the text
// before the first '-' is kept, which drops the usual " - Site Name" suffix.
func SanitizeTitle(title string) string {
	if i := strings.Index(title, "-"); i >= 0 {
		title = title[:i]
	}
	title = strings.TrimSpace(title)

	var b strings.Builder
	inSpace := false
	for _, r := range title {
		switch {
		case strings.ContainsRune(`\/:*?"<>|`, r):
			b.WriteRune('_')
			inSpace = false
		case unicode.IsSpace(r):
			if !inSpace {
				b.WriteRune('_')
			}
			inSpace = true
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
			inSpace = false
		}
	}
	if b.Len() == 0 {
		return fallbackTitle
	}
	return b.String()
}

// Name returns "{SanitizedTitle}_{unixMillis}.zip"
func Name(title string, now time.Time) string {
	return SanitizeTitle(title) + "_" + strconv.FormatInt(now.UnixMilli(), 10) + ".zip"
}

// Unique returns path, or path with a "_n" suffix before the extension when
// a file of that name already exists
func Unique(path string) string {
	if _, err := os.Stat(path); err != nil {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, n, ext)
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
}

// Write stores entries in a new zip at path. The file appears atomically;
// on error nothing is left behind. Names already used in the archive are
// prefixed with "{index}_", then "{index}_{n}_" until they are unique.
func Write(path string, entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, fmt.Errorf("no entries to archive")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".archive-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp archive: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	zw := zip.NewWriter(tmp)
	used := make(map[string]bool, len(entries))
	written := 0
	for _, e := range entries {
		name := entryName(e, used)
		used[name] = true

		if err := addFile(zw, name, e.Path); err != nil {
			zw.Close()
			tmp.Close()
			return 0, fmt.Errorf("failed to add %s: %w", name, err)
		}
		written++
	}

	if err := zw.Close(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close archive: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return 0, fmt.Errorf("failed to move archive into place: %w", err)
	}
	return written, nil
}

func entryName(e Entry, used map[string]bool) string {
	if !used[e.Name] {
		return e.Name
	}
	name := fmt.Sprintf("%d_%s", e.Index, e.Name)
	for n := 2; used[name]; n++ {
		name = fmt.Sprintf("%d_%d_%s", e.Index, n, e.Name)
	}
	return name
}

func addFile(zw *zip.Writer, name, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	// images are already compressed
	hdr.Method = zip.Store

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

// List returns the entry names of an existing archive in order
func List(path string) ([]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names, nil
}
