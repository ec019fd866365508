// Package identity recovers which tasks were created for which calendar
// events, either from a marker embedded in task content or from a store.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"icstask/internal/models"
)

// DefaultMarker is appended to task content as "(ICUID:<uid>)".
const DefaultMarker = "ICUID:"

// ErrListing marks a failure to list the task manager's tasks.
var ErrListing = errors.New("could not list tasks")

// Extractor yields the IdentitySet known before a pass.
type Extractor interface {
	Extract(ctx context.Context) (models.IdentitySet, error)
}

// TaskLister lists the tasks of the target collection.
type TaskLister interface {
	ListTasks(ctx context.Context) ([]models.RemoteTask, error)
}

// MarkerExtractor recovers identity by scanning task content for the marker.
// It needs no store, but loses a task whose marker was edited away.
type MarkerExtractor struct {
	lister TaskLister
	marker string
	logger *slog.Logger
}

// NewMarkerExtractor recovers identities from tasks listed by lister.
func NewMarkerExtractor(logger *slog.Logger, lister TaskLister, marker string) *MarkerExtractor {
	return &MarkerExtractor{lister: lister, marker: marker, logger: logger}
}

// Extract lists the tasks and keeps the ones carrying a marker.
func (m *MarkerExtractor) Extract(ctx context.Context) (models.IdentitySet, error) {
	tasks, err := m.lister.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListing, err)
	}
	set := ExtractMarkers(tasks, m.marker)
	m.logger.Info("Recovered synced tasks from content", "tasks", len(tasks), "synced", len(set))
	return set, nil
}

// ExtractMarkers builds an IdentitySet from tasks whose content contains the
// marker followed by a uid. The uid ends at whitespace or ')'. Matching is
// case-insensitive. Tasks without a recognizable marker are ignored; when two
// tasks carry the same uid the later one wins.
func ExtractMarkers(tasks []models.RemoteTask, marker string) models.IdentitySet {
	set := make(models.IdentitySet)
	if strings.TrimSpace(marker) == "" {
		return set
	}
	pattern := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(marker) + `([^\s)]+)`)

	for _, t := range tasks {
		m := pattern.FindStringSubmatch(t.Content)
		if m == nil {
			continue
		}
		uid := strings.TrimSpace(m[1])
		if uid == "" || t.ID == "" {
			continue
		}
		set[uid] = models.SyncedTaskRecord{
			UID:            uid,
			TaskRef:        t.ID,
			DueFingerprint: t.Due.Fingerprint(),
			Content:        t.Content,
		}
	}
	return set
}

// StoreExtractor recovers identity from a Store. A store that cannot be read
// yields an empty set; the pass goes on.
type StoreExtractor struct {
	store  Store
	logger *slog.Logger
}

// NewStoreExtractor recovers identities from store.
func NewStoreExtractor(logger *slog.Logger, store Store) *StoreExtractor {
	return &StoreExtractor{store: store, logger: logger}
}

// Extract loads the stored set. A store that cannot be read yields an
// empty set so the pass can still run.
func (s *StoreExtractor) Extract(ctx context.Context) (models.IdentitySet, error) {
	set, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Warn("Could not read sync state, starting from empty state", "error", err)
		return make(models.IdentitySet), nil
	}
	if set == nil {
		set = make(models.IdentitySet)
	}
	s.logger.Info("Loaded sync state", "synced", len(set))
	return set, nil
}
