// Package snapshot writes the scraping_progress.json file some legacy
// consumers still poll. The file is advisory: writes are last-writer-
// wins and readers must treat it as non-authoritative; the progress
// stream is the real interface.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultFileName is the snapshot file written into the state directory.
const DefaultFileName = "scraping_progress.json"

// State is the serialized snapshot shape.
type State struct {
	RunID       string    `json:"run_id"`
	Status      string    `json:"status"` // running, completed, failed
	Percentage  int       `json:"percentage"`
	Message     string    `json:"message"`
	EventsFound int       `json:"events_found"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Writer persists progress states. Safe for concurrent use; concurrent
// runs simply overwrite each other.
type Writer struct {
	path string
	mu   sync.Mutex
}

// NewWriter builds a writer rooted at dir. An empty dir disables
// snapshot writes.
func NewWriter(dir string) *Writer {
	if dir == "" {
		return &Writer{}
	}
	return &Writer{path: filepath.Join(dir, DefaultFileName)}
}

// Write serializes state to the snapshot file. The write is atomic via
// a temp-file rename so readers never see a torn file.
func (w *Writer) Write(state State) error {
	if w.path == "" {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	state.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling progress snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}

	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing progress snapshot: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		return fmt.Errorf("replacing progress snapshot: %w", err)
	}
	return nil
}

// Read loads the current snapshot. A missing file returns (nil, nil).
func (w *Writer) Read() (*State, error) {
	if w.path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(w.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading progress snapshot: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing progress snapshot: %w", err)
	}
	return &state, nil
}
