package models

import (
	"strings"
	"time"
)

const (
	dateLayout    = "2006-01-02"
	instantLayout = "2006-01-02T15:04:05Z"
)

// DuePayload is the due part of a task payload. Exactly one of Date and
// DateTime is set.
type DuePayload struct {
	Date     string // YYYY-MM-DD, all-day
	DateTime string // RFC3339 UTC with a trailing Z
}

// Payload renders the due value in the shape the task manager expects.
func (d *Due) Payload() *DuePayload {
	if d == nil {
		return nil
	}
	if d.AllDay {
		return &DuePayload{Date: d.Time.Format(dateLayout)}
	}
	return &DuePayload{DateTime: d.Time.UTC().Format(instantLayout)}
}

// Fingerprint is the normalized form of the due value used for change
// detection. An absent due has an empty fingerprint.
func (d *Due) Fingerprint() string {
	p := d.Payload()
	if p == nil {
		return ""
	}
	if p.Date != "" {
		return p.Date
	}
	return p.DateTime
}

// Fingerprint returns the normalized form of a payload already in the task
// manager's shape. DateTime wins over Date when both are present.
func (p *DuePayload) Fingerprint() string {
	if p == nil {
		return ""
	}
	if p.DateTime != "" {
		return NormalizeFingerprint(p.DateTime)
	}
	return NormalizeFingerprint(p.Date)
}

// NormalizeFingerprint brings a stored or remote due string into canonical
// form: YYYY-MM-DD for dates, second-precision UTC with a Z suffix for
// instants. Strings that are neither are returned trimmed. Normalizing a
// normalized value is a no-op.
func NormalizeFingerprint(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.Format(dateLayout)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC().Format(instantLayout)
	}
	// Floating local times, as some task managers return them, are read as UTC.
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.Format(instantLayout)
	}
	return s
}
