package crawler

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Status is the final state of a task
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Task is one gallery to crawl. Zero-valued overrides fall back to the
// crawler configuration.
type Task struct {
	ID       string `yaml:"id,omitempty" json:"id,omitempty"`
	URL      string `yaml:"url" json:"url"`
	Selector string `yaml:"selector,omitempty" json:"selector,omitempty"`

	// Title replaces the page title as the archive name stem
	Title           string `yaml:"title,omitempty" json:"title,omitempty"`
	ExpectedCount   int    `yaml:"expected,omitempty" json:"expected,omitempty"`
	FilterPathIndex *int   `yaml:"filter_index,omitempty" json:"filter_index,omitempty"`
}

// Validate checks the task
func (t Task) Validate() error {
	if strings.TrimSpace(t.URL) == "" {
		return fmt.Errorf("task url is required")
	}
	if t.ExpectedCount < 0 {
		return fmt.Errorf("task %s: expected count cannot be negative", t.URL)
	}
	if t.FilterPathIndex != nil && *t.FilterPathIndex < 0 {
		return fmt.Errorf("task %s: filter index cannot be negative", t.URL)
	}
	return nil
}

// withID returns a copy of t with an ID assigned
func (t Task) withID() Task {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return t
}

// Completion is the signal delivered once per task
type Completion struct {
	TaskID  string        `json:"task_id"`
	URL     string        `json:"url"`
	Status  Status        `json:"status"`
	Error   string        `json:"error,omitempty"`
	Archive string        `json:"archive,omitempty"`
	Images  int           `json:"images"`
	Failed  int           `json:"failed"`
	Reason  string        `json:"reason,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// Succeeded reports whether the task produced an archive
func (c Completion) Succeeded() bool {
	return c.Status == StatusSuccess
}

// TaskFile is the YAML batch format
type TaskFile struct {
	Tasks []Task `yaml:"tasks"`
}

// LoadTasks reads a YAML batch file
func LoadTasks(path string) ([]Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}

	var tf TaskFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse task file: %w", err)
	}
	if len(tf.Tasks) == 0 {
		return nil, fmt.Errorf("task file %s has no tasks", path)
	}
	for _, t := range tf.Tasks {
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}
	return tf.Tasks, nil
}

// TasksFromURLs builds one task per URL with a shared selector
func TasksFromURLs(urls []string, selector string) []Task {
	tasks := make([]Task, 0, len(urls))
	for _, u := range urls {
		tasks = append(tasks, Task{URL: u, Selector: selector})
	}
	return tasks
}

// URLs returns the task URLs in order
func URLs(tasks []Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.URL
	}
	return out
}
