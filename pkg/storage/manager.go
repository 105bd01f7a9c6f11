package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const tempSuffix = ".tmp"

// Manager handles the image cache of one task
type Manager struct {
	dir   string
	files map[string]int64
	mu    sync.RWMutex
}

// NewManager creates dir if needed and indexes the images already in it
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	m := &Manager{
		dir:   dir,
		files: make(map[string]int64),
	}
	if err := m.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan cache directory: %w", err)
	}
	return m, nil
}

// scanExistingFiles indexes finished files and removes leftover temp files
func (m *Manager) scanExistingFiles() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), tempSuffix) {
			os.Remove(filepath.Join(m.dir, entry.Name()))
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		m.files[entry.Name()] = info.Size()
	}
	return nil
}

// IsCached reports whether name has already been saved
func (m *Manager) IsCached(name string) bool {
	m.mu.RLock()
	_, ok := m.files[name]
	m.mu.RUnlock()
	return ok
}

// Save writes r to name atomically and returns the number of bytes written
func (m *Manager) Save(r io.Reader, name string) (int64, error) {
	if name == "" || name != filepath.Base(name) {
		return 0, fmt.Errorf("invalid cache file name %q", name)
	}
	target := filepath.Join(m.dir, name)

	tmp, err := os.CreateTemp(m.dir, name+".*"+tempSuffix)
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("failed to write %s: %w", name, err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.mu.Lock()
	m.files[name] = n
	m.mu.Unlock()
	return n, nil
}

// Path returns the on-disk path of name
func (m *Manager) Path(name string) string {
	return filepath.Join(m.dir, name)
}

// Size returns the cached size of name, or -1
func (m *Manager) Size(name string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n, ok := m.files[name]; ok {
		return n
	}
	return -1
}

// Count returns the number of cached files
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

// Dir returns the cache directory path
func (m *Manager) Dir() string {
	return m.dir
}

// Clear deletes the cache directory and everything in it
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.RemoveAll(m.dir); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	m.files = make(map[string]int64)
	return nil
}
