package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"galleryzip/pkg/logger"
)

const currentVersion = 1

// TaskRecord is the stored outcome of one task
type TaskRecord struct {
	Status      string    `json:"status"`
	Archive     string    `json:"archive,omitempty"`
	Images      int       `json:"images"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// Checkpoint is the state of one batch
type Checkpoint struct {
	Batch     string                `json:"batch"`
	Tasks     map[string]TaskRecord `json:"tasks"` // url -> record
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
	Version   int                   `json:"version"`
}

// IsDone reports whether url finished successfully
func (c *Checkpoint) IsDone(url string) bool {
	r, ok := c.Tasks[url]
	return ok && r.Status == "success"
}

// Manager reads and writes the checkpoint file of one batch
type Manager struct {
	mu     sync.Mutex
	path   string
	logger logger.Logger
}

// BatchKey derives a stable key from the task URLs, independent of order
func BatchKey(urls []string) string {
	sorted := append([]string(nil), urls...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:8])
}

// NewManager returns a manager for batch under the user data directory
func NewManager(batch string, log logger.Logger) (*Manager, error) {
	dataDir, err := getDataDirectory()
	if err != nil {
		return nil, fmt.Errorf("failed to get data directory: %w", err)
	}
	return NewManagerAt(filepath.Join(dataDir, "checkpoints", batch+".checkpoint.json"), log)
}

// NewManagerAt returns a manager for an explicit checkpoint file path
func NewManagerAt(path string, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}
	return &Manager{path: path, logger: log}, nil
}

// Path returns the checkpoint file path
func (m *Manager) Path() string {
	return m.path
}

// Exists reports whether a checkpoint file is present
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Create starts an empty checkpoint and saves it
func (m *Manager) Create(batch string) (*Checkpoint, error) {
	now := time.Now()
	cp := &Checkpoint{
		Batch:     batch,
		Tasks:     make(map[string]TaskRecord),
		CreatedAt: now,
		UpdatedAt: now,
		Version:   currentVersion,
	}
	if err := m.Save(cp); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}
	m.logger.InfoWithFields("Checkpoint created", map[string]interface{}{
		"batch": batch,
		"path":  m.path,
	})
	return cp, nil
}

// Load reads the checkpoint. A missing file returns (nil, nil).
func (m *Manager) Load() (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint: %w", err)
	}
	if cp.Version != currentVersion {
		return nil, fmt.Errorf("unsupported checkpoint version %d", cp.Version)
	}
	if cp.Tasks == nil {
		cp.Tasks = make(map[string]TaskRecord)
	}
	return &cp, nil
}

// LoadOrCreate resumes an existing checkpoint or starts a new one
func (m *Manager) LoadOrCreate(batch string) (*Checkpoint, error) {
	cp, err := m.Load()
	if err != nil {
		return nil, err
	}
	if cp != nil {
		m.logger.InfoWithFields("Resuming from checkpoint", map[string]interface{}{
			"batch":     batch,
			"completed": len(cp.Tasks),
		})
		return cp, nil
	}
	return m.Create(batch)
}

// Save writes the checkpoint atomically
func (m *Manager) Save(cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename checkpoint: %w", err)
	}
	return nil
}

// RecordTask stores the outcome of a task and saves
func (m *Manager) RecordTask(cp *Checkpoint, url string, rec TaskRecord) error {
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now()
	}
	cp.Tasks[url] = rec
	return m.Save(cp)
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// getDataDirectory returns the appropriate data directory for the current OS
func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "galleryzip")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "galleryzip")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			dataDir = filepath.Join(xdg, "galleryzip")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "galleryzip")
		}
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dataDir, nil
}
