package syncer

import (
	"fmt"
	"sort"
	"time"
)

// Op names a task effect.
type Op string

// Task effects, in the order a pass applies them.
const (
	OpCreate Op = "create" // Task created for a new event
	OpUpdate Op = "update" // Task brought in line with its changed event
	OpDelete Op = "delete" // Task removed with its event
)

var opRank = map[Op]int{OpCreate: 0, OpUpdate: 1, OpDelete: 2}

// ItemError is one failed effect. The uid stays unresolved and is retried on
// the next pass.
type ItemError struct {
	UID     string `json:"uid"`
	Op      Op     `json:"op"`
	Message string `json:"message"`
}

// Report summarizes one pass.
type Report struct {
	Created    int           `json:"created"`
	Updated    int           `json:"updated"`
	Deleted    int           `json:"deleted"`
	Skipped    int           `json:"skipped"`
	Duplicates int           `json:"duplicates"`
	DryRun     bool          `json:"dry_run"`
	Errors     []ItemError   `json:"errors"`
	Started    time.Time     `json:"started"`
	Duration   time.Duration `json:"duration"`
}

// OK reports whether every attempted effect succeeded.
func (r *Report) OK() bool {
	return len(r.Errors) == 0
}

func (r *Report) String() string {
	prefix := ""
	if r.DryRun {
		prefix = "[DRY RUN] "
	}
	return fmt.Sprintf("%sCreated=%d, Updated=%d, Deleted=%d, Skipped=%d, Errors=%d",
		prefix, r.Created, r.Updated, r.Deleted, r.Skipped, len(r.Errors))
}

func (r *Report) fail(uid string, op Op, err error) {
	r.Errors = append(r.Errors, ItemError{UID: uid, Op: op, Message: err.Error()})
}

// sortErrors orders errors by operation then uid, so reports do not depend
// on which worker finished first.
func (r *Report) sortErrors() {
	sort.SliceStable(r.Errors, func(i, j int) bool {
		a, b := r.Errors[i], r.Errors[j]
		if opRank[a.Op] != opRank[b.Op] {
			return opRank[a.Op] < opRank[b.Op]
		}
		return a.UID < b.UID
	})
}
