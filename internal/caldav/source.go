package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"icstask/internal/ics"
	"icstask/internal/models"

	"github.com/emersion/go-webdav/caldav"
)

// customTransport handles adding Basic Auth and custom headers to requests.
type customTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Username != "" {
		req.SetBasicAuth(t.Username, t.Password)
	}
	req.Header.Set("User-Agent", "icstask/1.0")
	return t.Transport.RoundTrip(req)
}

// Source reads the events of one calendar collection on a CalDAV server.
type Source struct {
	client       *caldav.Client
	logger       *slog.Logger
	calendarName string
	calendarPath string // Resolved lazily on first fetch
}

// NewSource creates a CalDAV calendar source. Each request is bounded by timeout.
func NewSource(logger *slog.Logger, endpoint, username, password, calendarName string, timeout time.Duration) (*Source, error) {
	httpClient := &http.Client{
		Transport: &customTransport{
			Username:  username,
			Password:  password,
			Transport: http.DefaultTransport,
		},
		Timeout: timeout,
	}

	client, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	return &Source{
		client:       client,
		logger:       logger,
		calendarName: calendarName,
	}, nil
}

// Fetch returns every VEVENT in the collection. Failures are ics.FetchError
// so they stop the pass the same way a failed feed download does.
func (s *Source) Fetch(ctx context.Context) ([]models.Event, error) {
	if s.calendarPath == "" {
		p, err := s.findCalendar(ctx, s.calendarName)
		if err != nil {
			return nil, &ics.FetchError{URL: s.calendarName, Err: err}
		}
		s.calendarPath = p
		s.logger.Info("Found CalDAV calendar", "calendarName", s.calendarName, "path", p)
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     "VCALENDAR",
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name:  "VCALENDAR",
			Comps: []caldav.CompFilter{{Name: "VEVENT"}},
		},
	}

	objects, err := s.client.QueryCalendar(ctx, s.calendarPath, query)
	if err != nil {
		return nil, &ics.FetchError{URL: s.calendarPath, Err: fmt.Errorf("query calendar: %w", err)}
	}

	events := toEvents(objects)
	s.logger.Info("Fetched CalDAV events", "objects", len(objects), "events", len(events))
	return events, nil
}

// toEvents flattens calendar objects into events, in server order.
func toEvents(objects []caldav.CalendarObject) []models.Event {
	var events []models.Event
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		events = append(events, ics.FromCalendar(obj.Data, "caldav")...)
	}
	return events
}

// findCalendar discovers the user's calendars and returns the path of the one with the matching name.
func (s *Source) findCalendar(ctx context.Context, name string) (string, error) {
	principalPath, err := s.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := s.client.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := s.client.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == name || strings.Trim(cal.Path, "/") == strings.Trim(name, "/") {
			return cal.Path, nil
		}
	}

	return "", fmt.Errorf("no calendar found with name '%s'", name)
}
