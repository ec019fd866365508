package models

import "time"

// Due is the scheduling of an event. An all-day event carries only a calendar
// date; a timed event carries an instant.
type Due struct {
	Time   time.Time // For all-day events only the year, month and day are meaningful.
	AllDay bool
}

// Event represents one calendar occurrence.
// This is an internal representation, independent of the calendar provider it came from.
type Event struct {
	UID         string // The iCalendar UID, used for syncing
	Summary     string // Title of the event
	Description string
	Location    string
	Start       *Due   // nil when the event has no start
	Source      string // Where the event came from (e.g., "ics", "caldav", "google")
}

// Date returns an all-day Due for the given calendar date.
func Date(year int, month time.Month, day int) *Due {
	return &Due{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), AllDay: true}
}

// Instant returns a timed Due. Zones are kept; they are only normalized when rendered.
func Instant(t time.Time) *Due {
	return &Due{Time: t}
}
