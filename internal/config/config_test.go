package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const fullYAML = `
server:
  port: 9090

openai:
  api_key: sk-file
  model: gpt-4o
  base_url: http://proxy.local/v1
  timeout_seconds: 30

session:
  ttl_seconds: 600
  sweep_schedule: "@every 10s"

intake:
  max_qa_rounds: 3
  max_upload_bytes: 1048576
  legacy_expert_detection: false

postgres:
  url: postgres://medvise@localhost/medvise?sslmode=disable
  notify_channel: intake_events

log:
  level: debug
  format: console
`

func env(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.OpenAI.APIKey != "sk-file" || cfg.OpenAI.Model != "gpt-4o" || cfg.OpenAI.BaseURL != "http://proxy.local/v1" {
		t.Errorf("OpenAI = %+v", cfg.OpenAI)
	}
	if cfg.CompletionTimeout() != 30*time.Second {
		t.Errorf("CompletionTimeout() = %v, want 30s", cfg.CompletionTimeout())
	}
	if cfg.SessionTTL() != 10*time.Minute {
		t.Errorf("SessionTTL() = %v, want 10m", cfg.SessionTTL())
	}
	if cfg.Session.SweepSchedule != "@every 10s" {
		t.Errorf("SweepSchedule = %q", cfg.Session.SweepSchedule)
	}
	if cfg.Intake.MaxQARounds != 3 || cfg.Intake.MaxUploadBytes != 1<<20 {
		t.Errorf("Intake = %+v", cfg.Intake)
	}
	if *cfg.Intake.LegacyExpertDetection {
		t.Error("LegacyExpertDetection = true, want false from file")
	}
	if cfg.Postgres.NotifyChannel != "intake_events" {
		t.Errorf("NotifyChannel = %q", cfg.Postgres.NotifyChannel)
	}
	if cfg.LogLevel() != zerolog.DebugLevel || cfg.Log.Format != "console" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestParse_Empty_AppliesDefaults(t *testing.T) {
	cfg, err := Parse(nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Errorf("OpenAI.Model = %q, want gpt-4o-mini", cfg.OpenAI.Model)
	}
	if cfg.SessionTTL() != time.Hour {
		t.Errorf("SessionTTL() = %v, want 1h", cfg.SessionTTL())
	}
	if cfg.CompletionTimeout() != time.Minute {
		t.Errorf("CompletionTimeout() = %v, want 1m", cfg.CompletionTimeout())
	}
	if cfg.Session.SweepSchedule != "@every 60s" {
		t.Errorf("SweepSchedule = %q", cfg.Session.SweepSchedule)
	}
	if cfg.Intake.MaxQARounds != 4 || cfg.Intake.MaxUploadBytes != 10<<20 {
		t.Errorf("Intake = %+v", cfg.Intake)
	}
	if !*cfg.Intake.LegacyExpertDetection {
		t.Error("LegacyExpertDetection should default to true")
	}
	if cfg.Postgres.URL != "" || cfg.Postgres.NotifyChannel != "medvise_stage" {
		t.Errorf("Postgres = %+v", cfg.Postgres)
	}
	if cfg.LogLevel() != zerolog.InfoLevel || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestParse_EnvOverridesFile(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML), env(map[string]string{
		"OPENAI_API_KEY":          "sk-env",
		"OPENAI_MODEL":            "gpt-4.1-mini",
		"PORT":                    "7000",
		"SESSION_TTL":             "120",
		"DATABASE_URL":            "postgres://other/db",
		"POSTGRES_NOTIFY_CHANNEL": "chan",
		"LOG_LEVEL":               "warn",
		"LOG_FORMAT":              "json",
		"OPENAI_BASE_URL":         "",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-env" || cfg.OpenAI.Model != "gpt-4.1-mini" {
		t.Errorf("OpenAI = %+v", cfg.OpenAI)
	}
	if cfg.OpenAI.BaseURL != "http://proxy.local/v1" {
		t.Errorf("empty env value should not override, BaseURL = %q", cfg.OpenAI.BaseURL)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000", cfg.Server.Port)
	}
	if cfg.SessionTTL() != 2*time.Minute {
		t.Errorf("SessionTTL() = %v, want 2m", cfg.SessionTTL())
	}
	if cfg.Postgres.URL != "postgres://other/db" || cfg.Postgres.NotifyChannel != "chan" {
		t.Errorf("Postgres = %+v", cfg.Postgres)
	}
	if cfg.LogLevel() != zerolog.WarnLevel || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestParse_InvalidEnvInteger(t *testing.T) {
	_, err := Parse(nil, env(map[string]string{"SESSION_TTL": "an hour"}))
	if err == nil || !strings.Contains(err.Error(), "SESSION_TTL") {
		t.Fatalf("error = %v, want SESSION_TTL error", err)
	}
}

func TestParse_EnvRejectsNonPositive(t *testing.T) {
	for _, key := range []string{"SESSION_TTL", "PORT"} {
		for _, v := range []string{"0", "-30"} {
			_, err := Parse(nil, env(map[string]string{key: v}))
			if err == nil || !strings.Contains(err.Error(), key) || !strings.Contains(err.Error(), "must be positive") {
				t.Errorf("%s=%s: error = %v, want positive-value error", key, v, err)
			}
		}
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"port", "server:\n  port: 70000\n", "server.port"},
		{"ttl", "session:\n  ttl_seconds: -1\n", "session.ttl_seconds"},
		{"schedule", "session:\n  sweep_schedule: every minute\n", "session.sweep_schedule"},
		{"rounds", "intake:\n  max_qa_rounds: -2\n", "intake.max_qa_rounds"},
		{"upload", "intake:\n  max_upload_bytes: -5\n", "intake.max_upload_bytes"},
		{"level", "log:\n  level: loud\n", "log.level"},
		{"format", "log:\n  format: xml\n", "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), nil)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("server: [unclosed"), nil); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadWithEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "medvise.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9191\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWithEnv(path, env(nil))
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("Server.Port = %d, want 9191", cfg.Server.Port)
	}

	if _, err := LoadWithEnv(filepath.Join(dir, "missing.yaml"), env(nil)); err == nil {
		t.Error("expected error for missing file")
	}

	cfg, err = LoadWithEnv("", env(map[string]string{"PORT": "8181"}))
	if err != nil {
		t.Fatalf("LoadWithEnv without file: %v", err)
	}
	if cfg.Server.Port != 8181 {
		t.Errorf("Server.Port = %d, want 8181", cfg.Server.Port)
	}
}
