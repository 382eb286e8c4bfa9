package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FailureStore persists reports that could not be delivered so they are
// never lost. One JSON file per session, overwritten on repeat failures.
type FailureStore struct {
	dir string
}

// NewFailureStore creates the directory if needed.
func NewFailureStore(dir string) (*FailureStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating failure directory %s: %w", dir, err)
	}
	return &FailureStore{dir: dir}, nil
}

// Persist writes the payload to disk keyed by session id.
func (f *FailureStore) Persist(payload Payload) error {
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding failed report: %w", err)
	}
	path := filepath.Join(f.dir, sanitizeID(payload.SessionID)+".json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("writing failed report %s: %w", path, err)
	}
	return nil
}

// Load reads back a persisted payload, nil if none exists for the session.
func (f *FailureStore) Load(sessionID string) (*Payload, error) {
	path := filepath.Join(f.dir, sanitizeID(sessionID)+".json")
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading failed report %s: %w", path, err)
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decoding failed report %s: %w", path, err)
	}
	return &p, nil
}

// sanitizeID keeps session ids filesystem-safe.
func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, id)
}
