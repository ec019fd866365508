package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"icstask/internal/identity"
	"icstask/internal/models"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrPassNotStarted wraps failures that stop a pass before any task is touched.
	ErrPassNotStarted = errors.New("sync pass could not start")
	// ErrStateNotSaved wraps a failure to persist state after effects ran.
	// The next pass may create duplicates.
	ErrStateNotSaved = errors.New("sync state not saved")
	// ErrPassInFlight is returned when Sync is called while a pass is running.
	ErrPassInFlight = errors.New("a sync pass is already running")
	// ErrSinkUnauthorized wraps a rejected token met while applying effects.
	// The remaining effects are abandoned.
	ErrSinkUnauthorized = errors.New("task manager rejected the credentials")
)

// CalendarSource yields the current snapshot of events.
type CalendarSource interface {
	Fetch(ctx context.Context) ([]models.Event, error)
}

// TaskSink applies effects in the task manager.
type TaskSink interface {
	Create(ctx context.Context, p models.TaskPayload) (string, error)
	Update(ctx context.Context, taskRef string, p models.TaskPayload) error
	Delete(ctx context.Context, taskRef string) error
}

// Verifier is implemented by sinks that can check access before a pass
// touches anything.
type Verifier interface {
	Verify(ctx context.Context) error
}

// Sink errors may classify themselves through these methods.
type unauthorizedError interface{ Unauthorized() bool }
type notFoundError interface{ NotFound() bool }

func isUnauthorized(err error) bool {
	var e unauthorizedError
	return errors.As(err, &e) && e.Unauthorized()
}

func isNotFound(err error) bool {
	var e notFoundError
	return errors.As(err, &e) && e.NotFound()
}

// Options controls a pass.
type Options struct {
	Marker      string
	Policy      Policy
	DryRun      bool
	Limit       int // Handle at most this many events; 0 means all
	Concurrency int // Effects in flight at once
}

// Syncer reconciles a calendar with a task list.
type Syncer struct {
	logger     *slog.Logger
	source     CalendarSource
	sink       TaskSink
	identities identity.Extractor
	store      identity.Store
	opts       Options
	running    atomic.Bool
	now        func() time.Time
}

// NewSyncer creates a new Syncer.
func NewSyncer(logger *slog.Logger, source CalendarSource, sink TaskSink, identities identity.Extractor, store identity.Store, opts Options) *Syncer {
	if opts.Marker == "" {
		opts.Marker = identity.DefaultMarker
	}
	if opts.Policy == "" {
		opts.Policy = PolicyDueOnly
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Syncer{
		logger:     logger,
		source:     source,
		sink:       sink,
		identities: identities,
		store:      store,
		opts:       opts,
		now:        time.Now,
	}
}

// Sync performs one pass: fetch, diff, apply, persist.
//
// Errors wrapping ErrPassNotStarted mean nothing was changed. Per-item
// failures do not abort the pass; they are listed in the report. State is
// saved even when some effects failed. A rejected token ends the pass early
// with ErrSinkUnauthorized, after saving what was done.
func (s *Syncer) Sync(ctx context.Context) (*Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrPassInFlight
	}
	defer s.running.Store(false)

	started := s.now()
	report := &Report{Started: started, DryRun: s.opts.DryRun, Errors: []ItemError{}}
	s.logger.Info("Starting sync pass.", "dryRun", s.opts.DryRun, "policy", s.opts.Policy)

	events, err := s.source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch calendar: %w", ErrPassNotStarted, err)
	}
	s.logger.Info("Fetched calendar events.", "count", len(events))

	if v, ok := s.sink.(Verifier); ok {
		if err := v.Verify(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPassNotStarted, err)
		}
	}

	limited := s.opts.Limit > 0 && len(events) > s.opts.Limit
	if limited {
		s.logger.Info("Limiting events handled this pass.", "limit", s.opts.Limit, "total", len(events))
		events = events[:s.opts.Limit]
	}

	prior, err := s.identities.Extract(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPassNotStarted, err)
	}

	plan := Diff(events, prior, s.opts.Policy, s.opts.Marker)
	if limited && len(plan.Delete) > 0 {
		// A truncated snapshot says nothing about the events left out.
		s.logger.Info("Not deleting tasks on a limited pass.", "candidates", len(plan.Delete))
		plan.Delete = nil
	}

	for _, ev := range plan.Skipped {
		s.logger.Warn("Skipping event with no UID.", "summary", ev.Summary)
	}
	if plan.Duplicates > 0 {
		s.logger.Warn("Calendar repeats UIDs; the last occurrence wins.", "duplicates", plan.Duplicates)
	}
	report.Skipped = len(plan.Skipped) + len(plan.Unchanged)
	report.Duplicates = plan.Duplicates

	s.logger.Info("Computed changes.", "create", len(plan.Create), "update", len(plan.Update),
		"delete", len(plan.Delete), "unchanged", len(plan.Unchanged))

	if s.opts.DryRun {
		s.describe(plan, report)
		report.Duration = s.now().Sub(started)
		s.logger.Info("Sync pass finished.", "report", report.String())
		return report, nil
	}

	state := prior.Clone()
	authErr := s.apply(ctx, plan, state, report)
	report.sortErrors()
	if authErr != nil {
		authErr = fmt.Errorf("%w: %w", ErrSinkUnauthorized, authErr)
	}

	// Persist partial progress even if the caller gave up on the pass.
	if err := s.store.Save(context.WithoutCancel(ctx), state); err != nil {
		s.logger.Error("Failed to save sync state; the next pass may create duplicate tasks", "error", err)
		report.Duration = s.now().Sub(started)
		return report, errors.Join(authErr, fmt.Errorf("%w: %w", ErrStateNotSaved, err))
	}

	report.Duration = s.now().Sub(started)
	if authErr != nil {
		s.logger.Error("Sync pass aborted: the task manager rejected the credentials", "error", authErr)
		return report, authErr
	}
	if err := ctx.Err(); err != nil {
		// Effects not yet started were skipped.
		return report, fmt.Errorf("sync pass interrupted: %w", err)
	}
	s.logger.Info("Sync pass finished.", "report", report.String())
	return report, nil
}

// describe logs and counts the plan without touching the task manager.
func (s *Syncer) describe(plan Plan, report *Report) {
	for _, ev := range plan.Create {
		p := Render(ev, s.opts.Marker)
		s.logger.Info("[DRY RUN] Would create task", "uid", ev.UID, "content", p.Content, "due", ev.Start.Fingerprint())
	}
	for _, c := range plan.Update {
		s.logger.Info("[DRY RUN] Would update task", "uid", c.Event.UID, "taskRef", c.Record.TaskRef,
			"content", c.Payload.Content, "due", c.Event.Start.Fingerprint())
	}
	for _, rec := range plan.Delete {
		s.logger.Info("[DRY RUN] Would delete task", "uid", rec.UID, "taskRef", rec.TaskRef)
	}
	report.Created = len(plan.Create)
	report.Updated = len(plan.Update)
	report.Deleted = len(plan.Delete)
}

// apply runs the plan's effects through a bounded pool, one phase at a time.
// A uid is in at most one bucket, so no two effects race on the same task.
// state and report are only touched under mu.
//
// The first rejected-credentials error cancels every effect not yet started
// and is returned; the effects it cut short are not reported as failures.
func (s *Syncer) apply(ctx context.Context, plan Plan, state models.IdentitySet, report *Report) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu      sync.Mutex
		authErr error
	)
	// failed records err for uid. Callers hold mu.
	failed := func(uid string, op Op, err error) {
		switch {
		case authErr != nil && ctx.Err() != nil:
			// Cut short by an earlier rejection.
		case isUnauthorized(err):
			authErr = err
			cancel()
			report.fail(uid, op, err)
		default:
			report.fail(uid, op, err)
		}
	}

	create := func(ev models.Event, payload models.TaskPayload) {
		ref, err := s.sink.Create(ctx, payload)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			s.logger.Error("Failed to create task", "uid", ev.UID, "error", err)
			failed(ev.UID, OpCreate, err)
			return
		}
		state[ev.UID] = models.SyncedTaskRecord{
			UID:            ev.UID,
			TaskRef:        ref,
			DueFingerprint: ev.Start.Fingerprint(),
			Content:        payload.Content,
			SyncedAt:       s.now().UTC(),
		}
		report.Created++
		s.logger.Info("Created task for event", "uid", ev.UID, "taskRef", ref, "summary", ev.Summary)
	}

	s.each(ctx, len(plan.Create), func(i int) {
		ev := plan.Create[i]
		create(ev, Render(ev, s.opts.Marker))
	})

	s.each(ctx, len(plan.Update), func(i int) {
		c := plan.Update[i]
		err := s.sink.Update(ctx, c.Record.TaskRef, c.Payload)

		if isNotFound(err) {
			// Removed by hand. The event still exists, so the task comes back.
			s.logger.Warn("Task to update no longer exists, creating it again", "uid", c.Event.UID, "taskRef", c.Record.TaskRef)
			mu.Lock()
			delete(state, c.Event.UID)
			mu.Unlock()
			create(c.Event, c.Payload)
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			s.logger.Error("Failed to update task", "uid", c.Event.UID, "taskRef", c.Record.TaskRef, "error", err)
			failed(c.Event.UID, OpUpdate, err)
			return
		}
		rec := c.Record
		rec.DueFingerprint = c.Event.Start.Fingerprint()
		rec.Content = c.Payload.Content
		rec.SyncedAt = s.now().UTC()
		state[c.Event.UID] = rec
		report.Updated++
		s.logger.Info("Updated task for event", "uid", c.Event.UID, "taskRef", rec.TaskRef, "due", rec.DueFingerprint)
	})

	s.each(ctx, len(plan.Delete), func(i int) {
		rec := plan.Delete[i]
		err := s.sink.Delete(ctx, rec.TaskRef)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			s.logger.Error("Failed to delete task", "uid", rec.UID, "taskRef", rec.TaskRef, "error", err)
			failed(rec.UID, OpDelete, err)
			return
		}
		delete(state, rec.UID)
		report.Deleted++
		s.logger.Info("Deleted task for removed event", "uid", rec.UID, "taskRef", rec.TaskRef)
	})

	mu.Lock()
	defer mu.Unlock()
	return authErr
}

// each calls fn for 0..n-1 with at most Concurrency calls in flight and
// returns when all have finished. Nothing new starts once ctx is done.
func (s *Syncer) each(ctx context.Context, n int, fn func(i int)) {
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i := 0; i < n && ctx.Err() == nil; i++ {
		i := i
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}
