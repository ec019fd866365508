package google

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"icstask/internal/ics"
	"icstask/internal/models"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Source reads one Google Calendar through the Calendar API. Only public
// calendars readable with an API key are supported; there is no OAuth flow.
type Source struct {
	service    *calendar.Service
	calendarID string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewSource creates a Google Calendar source. Extra options are appended
// after the API key.
func NewSource(ctx context.Context, logger *slog.Logger, apiKey, calendarID string, timeout time.Duration, opts ...option.ClientOption) (*Source, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &Source{service: service, calendarID: calendarID, timeout: timeout, logger: logger}, nil
}

// Fetch pages through all events of the calendar. Recurring events come
// back as their master event, unexpanded.
func (s *Source) Fetch(ctx context.Context) ([]models.Event, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var events []models.Event
	err := s.service.Events.List(s.calendarID).
		ShowDeleted(false).
		SingleEvents(false).
		MaxResults(2500).
		Pages(ctx, func(page *calendar.Events) error {
			events = append(events, toInternalEvents(page.Items)...)
			return nil
		})
	if err != nil {
		return nil, &ics.FetchError{URL: "google:" + s.calendarID, Err: fmt.Errorf("failed to retrieve events: %w", err)}
	}

	s.logger.Info("Successfully fetched events from Google Calendar", "count", len(events), "calendarID", s.calendarID)
	return events, nil
}

// toInternalEvents converts Google Calendar events to the internal Event model.
func toInternalEvents(items []*calendar.Event) []models.Event {
	var out []models.Event
	for _, item := range items {
		if item == nil || item.Status == "cancelled" {
			continue
		}
		out = append(out, models.Event{
			UID:         item.ICalUID, // Use the iCalendar UID for syncing
			Summary:     strings.TrimSpace(item.Summary),
			Description: strings.TrimSpace(item.Description),
			Location:    strings.TrimSpace(item.Location),
			Start:       toDue(item.Start),
			Source:      "google",
		})
	}
	return out
}

func toDue(dt *calendar.EventDateTime) *models.Due {
	if dt == nil {
		return nil
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return nil
		}
		return models.Instant(t)
	}
	if dt.Date != "" {
		t, err := time.Parse("2006-01-02", dt.Date)
		if err != nil {
			return nil
		}
		return models.Date(t.Year(), t.Month(), t.Day())
	}
	return nil
}
