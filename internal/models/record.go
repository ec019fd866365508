package models

import (
	"sort"
	"time"
)

// SyncedTaskRecord is what we remember about one task created for an event.
type SyncedTaskRecord struct {
	UID            string    `json:"uid"`
	TaskRef        string    `json:"task_ref"`
	DueFingerprint string    `json:"due_fingerprint"`
	Content        string    `json:"content,omitempty"` // Rendered content at last sync
	SyncedAt       time.Time `json:"synced_at,omitempty"`
}

// IdentitySet maps event UIDs to their synced task records. It is the whole
// persisted state of the system.
type IdentitySet map[string]SyncedTaskRecord

// Clone returns a shallow copy of the set.
func (s IdentitySet) Clone() IdentitySet {
	out := make(IdentitySet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// UIDs returns the keys in sorted order.
func (s IdentitySet) UIDs() []string {
	uids := make([]string, 0, len(s))
	for uid := range s {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids
}

// RemoteTask is a task as listed from the task manager.
type RemoteTask struct {
	ID      string
	Content string
	Due     *DuePayload
}

// TaskPayload is the rendered effect payload sent to the task manager for
// both create and update.
type TaskPayload struct {
	Content string
	Due     *DuePayload // nil clears or omits the due
}
