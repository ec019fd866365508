package google

import (
	"testing"

	"google.golang.org/api/calendar/v3"
)

func TestToInternalEvents(t *testing.T) {
	items := []*calendar.Event{
		{ICalUID: "a@google.com", Summary: " Offsite ", Start: &calendar.EventDateTime{Date: "2024-06-01"}},
		{ICalUID: "b@google.com", Summary: "Call", Location: "Zoom", Start: &calendar.EventDateTime{DateTime: "2024-06-02T11:00:00+02:00"}},
		{ICalUID: "c@google.com", Summary: "Cancelled", Status: "cancelled"},
		{ICalUID: "d@google.com", Summary: "Unscheduled"},
		nil,
	}

	events := toInternalEvents(items)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].UID != "a@google.com" || events[0].Summary != "Offsite" || events[0].Start.Fingerprint() != "2024-06-01" {
		t.Errorf("unexpected all-day event %+v", events[0])
	}
	if events[1].Start.Fingerprint() != "2024-06-02T09:00:00Z" || events[1].Location != "Zoom" {
		t.Errorf("unexpected timed event %+v", events[1])
	}
	if events[2].Start != nil {
		t.Errorf("expected no start, got %+v", events[2].Start)
	}
}

func TestToDueInvalid(t *testing.T) {
	if d := toDue(&calendar.EventDateTime{DateTime: "yesterday"}); d != nil {
		t.Errorf("expected nil for unparseable time, got %+v", d)
	}
	if d := toDue(&calendar.EventDateTime{}); d != nil {
		t.Errorf("expected nil for empty start, got %+v", d)
	}
}
