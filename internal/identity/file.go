package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"icstask/internal/models"
)

// FileStore keeps the IdentitySet as a JSON file. Writes go to a temporary
// file that is renamed over the old one.
type FileStore struct {
	path string
}

// NewFileStore keeps state in the JSON file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the state file location.
func (f *FileStore) Path() string { return f.path }

// Load loads the sync state from the JSON file. A missing file is an empty
// state; a corrupt one is reported so the caller can start fresh.
func (f *FileStore) Load(_ context.Context) (models.IdentitySet, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(models.IdentitySet), nil
	}
	if err != nil {
		return nil, &StoreError{Op: "load", Err: err}
	}

	set := make(models.IdentitySet)
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, &StoreError{Op: "load", Err: fmt.Errorf("corrupt state file %s: %w", f.path, err)}
	}
	for uid, rec := range set {
		rec.UID = uid
		set[uid] = rec
	}
	return set, nil
}

// Save saves the state to the JSON file.
func (f *FileStore) Save(_ context.Context, set models.IdentitySet) error {
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return &StoreError{Op: "save", Err: fmt.Errorf("failed to marshal sync state: %w", err)}
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &StoreError{Op: "save", Err: err}
	}
	tmp, err := os.CreateTemp(dir, ".icstask-state-*")
	if err != nil {
		return &StoreError{Op: "save", Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &StoreError{Op: "save", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &StoreError{Op: "save", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &StoreError{Op: "save", Err: err}
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return &StoreError{Op: "save", Err: err}
	}
	return nil
}

// Durable is true: the file outlives the process. Pointing it at a
// directory wiped between runs (a container's scratch space, /tmp on some
// schedulers) defeats that.
func (f *FileStore) Durable() bool { return true }
