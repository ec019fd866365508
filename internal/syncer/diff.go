package syncer

import (
	"fmt"
	"strings"

	"icstask/internal/models"
)

// Policy decides which differences make an existing task stale.
type Policy string

const (
	// PolicyDueOnly updates a task only when the event's start moved.
	PolicyDueOnly Policy = "due-only"
	// PolicyContentOrDue also updates when the rendered content changed.
	PolicyContentOrDue Policy = "content-or-due"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyDueOnly, PolicyContentOrDue:
		return p, nil
	case "":
		return PolicyDueOnly, nil
	}
	return "", fmt.Errorf("unknown update policy %q (want %q or %q)", s, PolicyDueOnly, PolicyContentOrDue)
}

// Change is an event whose task must be updated.
type Change struct {
	Event   models.Event
	Record  models.SyncedTaskRecord
	Payload models.TaskPayload
}

// Plan is the outcome of Diff. Every uid of the snapshot and of the prior
// state lands in exactly one of Create, Update, Unchanged, or Delete.
type Plan struct {
	Create     []models.Event
	Update     []Change
	Delete     []models.SyncedTaskRecord
	Unchanged  []string
	Skipped    []models.Event // No uid; never synced
	Duplicates int            // Snapshot entries collapsed into a later one with the same uid
}

// Empty reports whether the plan has no effects.
func (p Plan) Empty() bool {
	return len(p.Create) == 0 && len(p.Update) == 0 && len(p.Delete) == 0
}

// Diff compares the current events to the prior state. Events keep the order
// of their first appearance in the snapshot; a uid that appears twice takes
// the values of its last occurrence. Deletions are ordered by uid.
func Diff(events []models.Event, prior models.IdentitySet, policy Policy, marker string) Plan {
	var plan Plan

	order := make([]string, 0, len(events))
	latest := make(map[string]models.Event, len(events))
	for _, ev := range events {
		if ev.UID == "" {
			plan.Skipped = append(plan.Skipped, ev)
			continue
		}
		if _, seen := latest[ev.UID]; seen {
			plan.Duplicates++
		} else {
			order = append(order, ev.UID)
		}
		latest[ev.UID] = ev
	}

	for _, uid := range order {
		ev := latest[uid]
		rec, known := prior[uid]
		if !known {
			plan.Create = append(plan.Create, ev)
			continue
		}
		payload := Render(ev, marker)
		if stale(rec, ev, payload, policy) {
			plan.Update = append(plan.Update, Change{Event: ev, Record: rec, Payload: payload})
		} else {
			plan.Unchanged = append(plan.Unchanged, uid)
		}
	}

	for _, uid := range prior.UIDs() {
		if _, ok := latest[uid]; !ok {
			plan.Delete = append(plan.Delete, prior[uid])
		}
	}
	return plan
}

func stale(rec models.SyncedTaskRecord, ev models.Event, payload models.TaskPayload, policy Policy) bool {
	if models.NormalizeFingerprint(rec.DueFingerprint) != ev.Start.Fingerprint() {
		return true
	}
	return policy == PolicyContentOrDue && rec.Content != payload.Content
}
