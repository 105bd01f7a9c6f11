package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Manifest describes one finished crawl task. It is written next to the
// archive as "{archive}.json" so the zip itself holds only images.
type Manifest struct {
	TaskID    string    `json:"task_id"`
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	Selector  string    `json:"selector"`
	Archive   string    `json:"archive"`
	Mode      string    `json:"mode"` // "browser" or "static"
	CreatedAt time.Time `json:"created_at"`

	Outcome Outcome       `json:"outcome"`
	Images  []ImageRecord `json:"images"`
}

// Outcome summarizes how the scroll loop ended
type Outcome struct {
	Completed bool          `json:"completed"`
	Reason    string        `json:"reason"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Scrolled  int           `json:"scrolled_px"`
	Offset    int           `json:"scroll_offset_px"`
	Matched   int           `json:"matched"`
	Loaded    int           `json:"loaded,omitempty"`
	Expected  int           `json:"expected,omitempty"`
}

// ImageRecord is the download result of one gallery image
type ImageRecord struct {
	Index    int    `json:"index"`
	URL      string `json:"url"`
	FileName string `json:"file_name,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// Succeeded counts the images that made it into the archive
func (m *Manifest) Succeeded() int {
	n := 0
	for _, img := range m.Images {
		if img.Success {
			n++
		}
	}
	return n
}

// Failed counts the images that could not be downloaded
func (m *Manifest) Failed() int {
	return len(m.Images) - m.Succeeded()
}

// PathFor returns the manifest path belonging to an archive
func PathFor(archivePath string) string {
	return archivePath + ".json"
}

// Save writes the manifest next to archivePath
func (m *Manifest) Save(archivePath string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.WriteFile(PathFor(archivePath), data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest file: %w", err)
	}

	return nil
}

// Load reads the manifest belonging to archivePath
func Load(archivePath string) (*Manifest, error) {
	data, err := os.ReadFile(PathFor(archivePath))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}

	return &m, nil
}

// Exists checks if a manifest exists for an archive
func Exists(archivePath string) bool {
	_, err := os.Stat(PathFor(archivePath))
	return err == nil
}
