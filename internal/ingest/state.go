package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const defaultStatePath = "~/.anderson/ingest-state.json"

// Fingerprint identifies one version of a history file. A file whose
// fingerprint is unchanged since the last run is skipped.
type Fingerprint struct {
	ModTime time.Time `json:"mod_time"`
	Size    int64     `json:"size"`
}

// State tracks which history files have been ingested, keyed by path.
type State struct {
	LastRunAt time.Time              `json:"last_run_at"`
	Files     map[string]Fingerprint `json:"files"`

	path string // not serialized
}

// LoadState loads the ingest state from disk, or creates a new one.
func LoadState() (*State, error) {
	return LoadStateFrom(expandHome(defaultStatePath))
}

// LoadStateFrom loads the state from an explicit path.
func LoadStateFrom(p string) (*State, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{Files: map[string]Fingerprint{}, path: p}, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	if s.Files == nil {
		s.Files = map[string]Fingerprint{}
	}
	s.path = p
	return &s, nil
}

// Save persists the state to disk.
func (s *State) Save() error {
	s.LastRunAt = time.Now().UTC()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	return os.WriteFile(s.path, data, 0o644)
}

// Seen reports whether path was already ingested at this exact size and
// mtime.
func (s *State) Seen(path string, info os.FileInfo) bool {
	fp, ok := s.Files[path]
	return ok && fp.Size == info.Size() && fp.ModTime.Equal(info.ModTime())
}

// Mark records path as ingested at its current size and mtime.
func (s *State) Mark(path string, info os.FileInfo) {
	s.Files[path] = Fingerprint{ModTime: info.ModTime(), Size: info.Size()}
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
