package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"icstask/internal/identity"
	"icstask/internal/syncer"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Source kinds.
const (
	SourceICS    = "ics"
	SourceCalDAV = "caldav"
	SourceGoogle = "google"
)

// Identity strategies.
const (
	IdentityMarker = "marker"
	IdentityStore  = "store"
)

// Store kinds.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// CalDAVConfig locates one calendar collection on a CalDAV server.
type CalDAVConfig struct {
	URL      string
	Username string
	Password string
	Calendar string // Display name of the collection
}

// GoogleConfig names a public Google calendar readable with an API key.
type GoogleConfig struct {
	APIKey     string
	CalendarID string
}

// Config is everything a pass needs, after all layers are applied.
type Config struct {
	Source  string
	ICalURL string
	CalDAV  CalDAVConfig
	Google  GoogleConfig

	TodoistToken string
	ProjectID    string
	APIBase      string

	Marker    string
	Policy    syncer.Policy
	Identity  string
	Store     string
	StatePath string

	DryRun      bool
	Timeout     time.Duration
	Limit       int
	Concurrency int
	RateLimit   float64 // Task manager requests per second
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Source:      SourceICS,
		APIBase:     "https://api.todoist.com/rest/v2",
		Marker:      identity.DefaultMarker,
		Policy:      syncer.PolicyDueOnly,
		Identity:    IdentityStore,
		Store:       StoreFile,
		StatePath:   "icstask-state.json",
		Timeout:     20 * time.Second,
		Concurrency: 4,
		RateLimit:   2,
	}
}

// fileConfig is the on-disk shape. Unset keys leave the current value alone.
type fileConfig struct {
	Source         *string    `json:"source" yaml:"source" toml:"source"`
	ICalURL        *string    `json:"ical_url" yaml:"ical_url" toml:"ical_url"`
	CalDAVURL      *string    `json:"caldav_url" yaml:"caldav_url" toml:"caldav_url"`
	CalDAVUsername *string    `json:"caldav_username" yaml:"caldav_username" toml:"caldav_username"`
	CalDAVPassword *string    `json:"caldav_password" yaml:"caldav_password" toml:"caldav_password"`
	CalDAVCalendar *string    `json:"caldav_calendar" yaml:"caldav_calendar" toml:"caldav_calendar"`
	GoogleAPIKey   *string    `json:"google_api_key" yaml:"google_api_key" toml:"google_api_key"`
	GoogleCalendar *string    `json:"google_calendar_id" yaml:"google_calendar_id" toml:"google_calendar_id"`
	TodoistToken   *string    `json:"todoist_token" yaml:"todoist_token" toml:"todoist_token"`
	ProjectID      *projectID `json:"project_id" yaml:"project_id" toml:"project_id"`
	APIBase        *string    `json:"api_base" yaml:"api_base" toml:"api_base"`
	Marker         *string    `json:"marker" yaml:"marker" toml:"marker"`
	UpdatePolicy   *string    `json:"update_policy" yaml:"update_policy" toml:"update_policy"`
	UpdateExisting *bool      `json:"update_existing" yaml:"update_existing" toml:"update_existing"`
	Identity       *string    `json:"identity" yaml:"identity" toml:"identity"`
	Store          *string    `json:"store" yaml:"store" toml:"store"`
	StatePath      *string    `json:"state_path" yaml:"state_path" toml:"state_path"`
	DryRun         *bool      `json:"dry_run" yaml:"dry_run" toml:"dry_run"`
	Timeout        *string    `json:"timeout" yaml:"timeout" toml:"timeout"`
	Limit          *int       `json:"limit" yaml:"limit" toml:"limit"`
	Concurrency    *int       `json:"concurrency" yaml:"concurrency" toml:"concurrency"`
	RateLimit      *float64   `json:"rate_limit" yaml:"rate_limit" toml:"rate_limit"`
}

// projectID accepts the Todoist project id as a string or a bare number.
type projectID string

func (p *projectID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = projectID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("project_id must be a string or a number: %w", err)
	}
	*p = projectID(n.String())
	return nil
}

func (p *projectID) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("project_id must be a string or a number (line %d)", value.Line)
	}
	*p = projectID(value.Value)
	return nil
}

func (p *projectID) UnmarshalTOML(v interface{}) error {
	switch v := v.(type) {
	case string:
		*p = projectID(v)
	case int64:
		*p = projectID(strconv.FormatInt(v, 10))
	default:
		return fmt.Errorf("project_id must be a string or an integer, got %T", v)
	}
	return nil
}

// LoadFile overlays a JSON, YAML or TOML file onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &fc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	case ".toml":
		err = toml.Unmarshal(data, &fc)
	default:
		return fmt.Errorf("config file must be .json, .yaml, .yml or .toml, got %q", ext)
	}
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return c.apply(fc)
}

func (c *Config) apply(fc fileConfig) error {
	setString(&c.Source, fc.Source)
	setString(&c.ICalURL, fc.ICalURL)
	setString(&c.CalDAV.URL, fc.CalDAVURL)
	setString(&c.CalDAV.Username, fc.CalDAVUsername)
	setString(&c.CalDAV.Password, fc.CalDAVPassword)
	setString(&c.CalDAV.Calendar, fc.CalDAVCalendar)
	setString(&c.Google.APIKey, fc.GoogleAPIKey)
	setString(&c.Google.CalendarID, fc.GoogleCalendar)
	setString(&c.TodoistToken, fc.TodoistToken)
	if fc.ProjectID != nil {
		c.ProjectID = string(*fc.ProjectID)
	}
	setString(&c.APIBase, fc.APIBase)
	setString(&c.Marker, fc.Marker)
	setString(&c.Identity, fc.Identity)
	setString(&c.Store, fc.Store)
	setString(&c.StatePath, fc.StatePath)

	// Older config files only said whether existing tasks should follow
	// their events; that meant comparing content as well as the due.
	if fc.UpdateExisting != nil && *fc.UpdateExisting && fc.UpdatePolicy == nil {
		c.Policy = syncer.PolicyContentOrDue
	}
	if fc.UpdatePolicy != nil {
		c.Policy = syncer.Policy(*fc.UpdatePolicy)
	}
	if fc.DryRun != nil {
		c.DryRun = *fc.DryRun
	}
	if fc.Timeout != nil {
		d, err := time.ParseDuration(*fc.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", *fc.Timeout, err)
		}
		c.Timeout = d
	}
	if fc.Limit != nil {
		c.Limit = *fc.Limit
	}
	if fc.Concurrency != nil {
		c.Concurrency = *fc.Concurrency
	}
	if fc.RateLimit != nil {
		c.RateLimit = *fc.RateLimit
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// ApplyEnv overlays environment variables onto c.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}

	str(&c.Source, "ICSTASK_SOURCE")
	str(&c.ICalURL, "ICAL_URL")
	str(&c.CalDAV.URL, "CALDAV_URL")
	str(&c.CalDAV.Username, "CALDAV_USERNAME")
	str(&c.CalDAV.Password, "CALDAV_PASSWORD")
	str(&c.CalDAV.Calendar, "CALDAV_CALENDAR_NAME")
	str(&c.Google.APIKey, "GOOGLE_API_KEY")
	str(&c.Google.CalendarID, "GOOGLE_CALENDAR_ID")
	str(&c.TodoistToken, "TODOIST_API_TOKEN")
	str(&c.ProjectID, "TODOIST_PROJECT_ID")
	str(&c.APIBase, "TODOIST_API_BASE")
	str(&c.Marker, "TODOIST_MARKER")
	str(&c.Identity, "ICSTASK_IDENTITY")
	str(&c.Store, "ICSTASK_STORE")
	str(&c.StatePath, "ICSTASK_STATE_PATH")

	if v := getenv("UPDATE_POLICY"); v != "" {
		c.Policy = syncer.Policy(v)
	}
	if v := getenv("DRY_RUN"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DRY_RUN must be a boolean: %w", err)
		}
		c.DryRun = b
	}
	if v := getenv("ICSTASK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ICSTASK_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	if v := getenv("ICSTASK_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ICSTASK_LIMIT must be a number: %w", err)
		}
		c.Limit = n
	}
	if v := getenv("ICSTASK_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ICSTASK_CONCURRENCY must be a number: %w", err)
		}
		c.Concurrency = n
	}
	if v := getenv("ICSTASK_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("ICSTASK_RATE_LIMIT must be a number: %w", err)
		}
		c.RateLimit = f
	}
	return nil
}

// Validate checks that a pass can be attempted with c.
func (c *Config) Validate() error {
	switch c.Source {
	case SourceICS:
		if c.ICalURL == "" {
			return fmt.Errorf("calendar URL is required (--ical-url or ICAL_URL)")
		}
	case SourceCalDAV:
		if c.CalDAV.URL == "" || c.CalDAV.Calendar == "" {
			return fmt.Errorf("caldav source needs CALDAV_URL and CALDAV_CALENDAR_NAME")
		}
	case SourceGoogle:
		if c.Google.APIKey == "" || c.Google.CalendarID == "" {
			return fmt.Errorf("google source needs GOOGLE_API_KEY and GOOGLE_CALENDAR_ID")
		}
	default:
		return fmt.Errorf("unknown source %q (want ics, caldav or google)", c.Source)
	}

	if c.TodoistToken == "" {
		return fmt.Errorf("Todoist API token required (pass --todoist-token or set TODOIST_API_TOKEN)")
	}
	if c.ProjectID == "" {
		return fmt.Errorf("project id is required (--project-id or TODOIST_PROJECT_ID)")
	}

	p, err := syncer.ParsePolicy(string(c.Policy))
	if err != nil {
		return err
	}
	c.Policy = p

	switch c.Identity {
	case IdentityMarker, IdentityStore:
	default:
		return fmt.Errorf("unknown identity strategy %q (want marker or store)", c.Identity)
	}
	if c.Identity == IdentityMarker && strings.TrimSpace(c.Marker) == "" {
		return fmt.Errorf("marker strategy needs a non-empty marker")
	}
	switch c.Store {
	case StoreFile, StoreSQLite:
		if c.StatePath == "" {
			return fmt.Errorf("%s store needs a state path", c.Store)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store %q (want file, sqlite or memory)", c.Store)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.Limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", c.Limit)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative, got %v", c.RateLimit)
	}
	return nil
}
