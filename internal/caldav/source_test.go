package caldav

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
)

func event(uid, summary string, start time.Time, allDay bool) *ical.Component {
	ev := ical.NewEvent()
	ev.Props.SetText(ical.PropUID, uid)
	ev.Props.SetText(ical.PropSummary, summary)
	ev.Props.SetDateTime(ical.PropDateTimeStamp, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	if allDay {
		ev.Props.SetDate(ical.PropDateTimeStart, start)
	} else {
		ev.Props.SetDateTime(ical.PropDateTimeStart, start)
	}
	return ev.Component
}

func calendarOf(children ...*ical.Component) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//icstask//test//EN")
	cal.Children = append(cal.Children, children...)
	return cal
}

func TestToEvents(t *testing.T) {
	objects := []caldav.CalendarObject{
		{Path: "/cal/a.ics", Data: calendarOf(event("a", "All day", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), true))},
		{Path: "/cal/empty.ics"},
		{Path: "/cal/b.ics", Data: calendarOf(event("b", "Timed", time.Date(2024, 6, 2, 9, 30, 0, 0, time.UTC), false))},
	}

	events := toEvents(objects)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].UID != "a" || events[0].Start == nil || !events[0].Start.AllDay || events[0].Start.Fingerprint() != "2024-06-01" {
		t.Errorf("unexpected first event %+v", events[0])
	}
	if events[1].UID != "b" || events[1].Start.Fingerprint() != "2024-06-02T09:30:00Z" {
		t.Errorf("unexpected second event %+v", events[1])
	}
	if events[1].Source != "caldav" {
		t.Errorf("expected caldav source, got %q", events[1].Source)
	}
}

func TestCustomTransport(t *testing.T) {
	var user, pass, agent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ = r.BasicAuth()
		agent = r.UserAgent()
	}))
	defer srv.Close()

	client := &http.Client{Transport: &customTransport{Username: "me", Password: "pw", Transport: http.DefaultTransport}}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if user != "me" || pass != "pw" || agent != "icstask/1.0" {
		t.Errorf("unexpected request credentials %q/%q agent %q", user, pass, agent)
	}
}
