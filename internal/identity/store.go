package identity

import (
	"context"
	"fmt"

	"icstask/internal/models"
)

// Store persists the IdentitySet between passes.
type Store interface {
	// Load returns the stored set, or an empty set when nothing was stored yet.
	Load(ctx context.Context) (models.IdentitySet, error)
	// Save overwrites the stored set.
	Save(ctx context.Context, set models.IdentitySet) error
	// Durable reports whether the state survives a process restart.
	Durable() bool
}

// StoreError wraps a failure to read or write state.
type StoreError struct {
	Op  string // "load" or "save"
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("sync state %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NopStore is used with the marker strategy, where task content is the state.
type NopStore struct{}

// Load returns an empty set.
func (NopStore) Load(context.Context) (models.IdentitySet, error) {
	return make(models.IdentitySet), nil
}

// Save discards the set.
func (NopStore) Save(context.Context, models.IdentitySet) error { return nil }

// Durable is true: nothing is lost because nothing is kept.
func (NopStore) Durable() bool { return true }
