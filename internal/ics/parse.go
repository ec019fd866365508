package ics

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"icstask/internal/models"

	"github.com/emersion/go-ical"
)

// Parse decodes an iCalendar document and returns its VEVENTs in document
// order. Missing optional properties become empty strings; a missing DTSTART
// leaves the event unscheduled. Recurrences are not expanded.
func Parse(r io.Reader) (events []models.Event, err error) {
	// The decoder panics on some malformed parameter lines.
	defer func() {
		if r := recover(); r != nil {
			events, err = nil, fmt.Errorf("failed to decode calendar: %v", r)
		}
	}()

	dec := ical.NewDecoder(r)
	for {
		cal, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode calendar: %w", err)
		}
		events = append(events, FromCalendar(cal, "ics")...)
	}
	return events, nil
}

// FromCalendar converts the VEVENT children of a decoded calendar.
func FromCalendar(cal *ical.Calendar, source string) []models.Event {
	var events []models.Event
	for _, ev := range cal.Events() {
		events = append(events, fromComponent(ev.Component, source))
	}
	return events
}

func fromComponent(comp *ical.Component, source string) models.Event {
	return models.Event{
		UID:         strings.TrimSpace(text(comp, ical.PropUID)),
		Summary:     strings.TrimSpace(text(comp, ical.PropSummary)),
		Description: strings.TrimSpace(text(comp, ical.PropDescription)),
		Location:    strings.TrimSpace(text(comp, ical.PropLocation)),
		Start:       start(comp),
		Source:      source,
	}
}

func text(comp *ical.Component, name string) string {
	v, err := comp.Props.Text(name)
	if err != nil {
		return ""
	}
	return v
}

// start reads DTSTART. Floating times are taken as UTC. A TZID that cannot
// be loaded falls back to reading the wall clock as UTC rather than losing
// the start.
func start(comp *ical.Component) *models.Due {
	prop := comp.Props.Get(ical.PropDateTimeStart)
	if prop == nil || strings.TrimSpace(prop.Value) == "" {
		return nil
	}
	value := strings.TrimSpace(prop.Value)

	if prop.ValueType() == ical.ValueDate || len(value) == len("20060102") {
		t, err := time.ParseInLocation("20060102", value, time.UTC)
		if err != nil {
			return nil
		}
		return models.Date(t.Year(), t.Month(), t.Day())
	}

	t, err := prop.DateTime(time.UTC)
	if err != nil {
		t, err = time.ParseInLocation("20060102T150405", strings.TrimSuffix(value, "Z"), time.UTC)
		if err != nil {
			return nil
		}
	}
	return models.Instant(t)
}
