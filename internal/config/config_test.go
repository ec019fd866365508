package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"icstask/internal/syncer"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFileFormats(t *testing.T) {
	files := map[string]string{
		"config.json": `{
	"ical_url": "https://example.com/cal.ics",
	"todoist_token": "tok",
	"project_id": "123",
	"update_policy": "content-or-due",
	"dry_run": true,
	"timeout": "5s",
	"concurrency": 2
}`,
		"config.yaml": `
ical_url: https://example.com/cal.ics
todoist_token: tok
project_id: "123"
update_policy: content-or-due
dry_run: true
timeout: 5s
concurrency: 2
`,
		"config.toml": `
ical_url = "https://example.com/cal.ics"
todoist_token = "tok"
project_id = "123"
update_policy = "content-or-due"
dry_run = true
timeout = "5s"
concurrency = 2
`,
	}

	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			if err := cfg.LoadFile(writeFile(t, name, content)); err != nil {
				t.Fatalf("LoadFile failed: %v", err)
			}
			if cfg.ICalURL != "https://example.com/cal.ics" || cfg.TodoistToken != "tok" || cfg.ProjectID != "123" {
				t.Errorf("unexpected config %+v", cfg)
			}
			if cfg.Policy != syncer.PolicyContentOrDue || !cfg.DryRun || cfg.Timeout != 5*time.Second || cfg.Concurrency != 2 {
				t.Errorf("unexpected options %+v", cfg)
			}
			if cfg.Marker != "ICUID:" || cfg.Store != StoreFile {
				t.Errorf("unset keys must keep defaults, got %+v", cfg)
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate failed: %v", err)
			}
		})
	}
}

func TestLoadFileLegacyUpdateExisting(t *testing.T) {
	cfg := Default()
	path := writeFile(t, "config.json", `{"ical_url":"u","todoist_token":"t","project_id":"p","update_existing":true}`)
	if err := cfg.LoadFile(path); err != nil {
		t.Fatal(err)
	}
	if cfg.Policy != syncer.PolicyContentOrDue {
		t.Errorf("update_existing should select content-or-due, got %q", cfg.Policy)
	}
}

func TestLoadFileNumericProjectID(t *testing.T) {
	files := map[string]string{
		"config.json": `{"project_id": 2203306141}`,
		"config.yaml": "project_id: 2203306141\n",
		"config.toml": "project_id = 2203306141\n",
	}
	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			if err := cfg.LoadFile(writeFile(t, name, content)); err != nil {
				t.Fatalf("LoadFile failed: %v", err)
			}
			if cfg.ProjectID != "2203306141" {
				t.Errorf("ProjectID = %q", cfg.ProjectID)
			}
		})
	}

	cfg := Default()
	if err := cfg.LoadFile(writeFile(t, "config.json", `{"project_id": [1]}`)); err == nil {
		t.Error("expected error for a list project_id")
	}
}

func TestLoadFileErrors(t *testing.T) {
	cfg := Default()
	if err := cfg.LoadFile(writeFile(t, "config.ini", "x=1")); err == nil {
		t.Error("expected error for unsupported extension")
	}
	if err := cfg.LoadFile(writeFile(t, "config.yaml", "timeout: forever\n")); err == nil {
		t.Error("expected error for bad timeout")
	}
	if err := cfg.LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"ICAL_URL":           "https://example.com/env.ics",
		"TODOIST_API_TOKEN":  "envtok",
		"TODOIST_PROJECT_ID": "9",
		"TODOIST_MARKER":     "SYNC:",
		"UPDATE_POLICY":      "content-or-due",
		"DRY_RUN":            "true",
		"ICSTASK_IDENTITY":   "marker",
		"ICSTASK_TIMEOUT":    "3s",
		"ICSTASK_LIMIT":      "10",
		"ICSTASK_RATE_LIMIT": "0.5",
	}
	cfg := Default()
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}
	if cfg.ICalURL != env["ICAL_URL"] || cfg.Marker != "SYNC:" || cfg.Identity != IdentityMarker {
		t.Errorf("unexpected config %+v", cfg)
	}
	if !cfg.DryRun || cfg.Timeout != 3*time.Second || cfg.Limit != 10 || cfg.RateLimit != 0.5 {
		t.Errorf("unexpected options %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}

	bad := Default()
	if err := bad.ApplyEnv(func(k string) string {
		if k == "DRY_RUN" {
			return "maybe"
		}
		return ""
	}); err == nil {
		t.Error("expected error for non-boolean DRY_RUN")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.ICalURL = "https://example.com/cal.ics"
		c.TodoistToken = "tok"
		c.ProjectID = "1"
		return c
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"ok", func(c *Config) {}, ""},
		{"no url", func(c *Config) { c.ICalURL = "" }, "calendar URL"},
		{"no token", func(c *Config) { c.TodoistToken = "" }, "token"},
		{"no project", func(c *Config) { c.ProjectID = "" }, "project"},
		{"bad policy", func(c *Config) { c.Policy = "sometimes" }, "policy"},
		{"bad identity", func(c *Config) { c.Identity = "guess" }, "identity"},
		{"bad store", func(c *Config) { c.Store = "redis" }, "store"},
		{"bad source", func(c *Config) { c.Source = "outlook" }, "source"},
		{"caldav incomplete", func(c *Config) { c.Source = SourceCalDAV }, "caldav"},
		{"google incomplete", func(c *Config) { c.Source = SourceGoogle }, "google"},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, "timeout"},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, "concurrency"},
		{"negative limit", func(c *Config) { c.Limit = -1 }, "limit"},
		{"empty marker", func(c *Config) { c.Identity = IdentityMarker; c.Marker = " " }, "marker"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
