package ics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"icstask/internal/models"
)

// FetchError reports that the calendar document could not be retrieved or read.
type FetchError struct {
	URL    string
	Status int // HTTP status, 0 when the request itself failed
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Source reads events from a calendar published at a URL.
type Source struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSource creates a Source. Each fetch is bounded by timeout.
func NewSource(logger *slog.Logger, url string, timeout time.Duration) *Source {
	return &Source{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// FetchRaw returns the calendar document bytes.
func (s *Source) FetchRaw(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, &FetchError{URL: s.url, Err: err}
	}
	req.Header.Set("Accept", "text/calendar")
	req.Header.Set("User-Agent", "icstask/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: s.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: s.url, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: s.url, Err: fmt.Errorf("read body: %w", err)}
	}
	return data, nil
}

// Fetch retrieves and parses the calendar.
func (s *Source) Fetch(ctx context.Context) ([]models.Event, error) {
	s.logger.Debug("Fetching calendar", "url", s.url)
	data, err := s.FetchRaw(ctx)
	if err != nil {
		return nil, err
	}

	events, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &FetchError{URL: s.url, Err: err}
	}

	s.logger.Info("Parsed calendar", "events", len(events), "bytes", len(data))
	return events, nil
}
