package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullYAML = `
database:
  driver: mysql
  host: db.internal
  port: 3307
  name: uranai_alice
  user: alice

server:
  port: 9000
  idle_timeout: 10m

tarot:
  timezone: Europe/Paris
  reset_schedule: "30 5 * * *"
  reveal_delay: 1500ms

diagnosis:
  questionnaire: ./questions.yaml

history:
  per_page: 5
  max_per_page: 25

feed:
  platform: discord
  channel_id: "998877"
  bot_token: discord-token
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.Driver != "mysql" {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, "mysql")
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "db.internal")
	}
	if cfg.Database.Port != 3307 {
		t.Errorf("Database.Port = %d, want %d", cfg.Database.Port, 3307)
	}
	if cfg.Database.Name != "uranai_alice" {
		t.Errorf("Database.Name = %q, want %q", cfg.Database.Name, "uranai_alice")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}
	if cfg.Server.IdleTimeout != 10*time.Minute {
		t.Errorf("Server.IdleTimeout = %v, want %v", cfg.Server.IdleTimeout, 10*time.Minute)
	}
	if cfg.Tarot.Timezone != "Europe/Paris" {
		t.Errorf("Tarot.Timezone = %q, want %q", cfg.Tarot.Timezone, "Europe/Paris")
	}
	if cfg.Tarot.ResetSchedule != "30 5 * * *" {
		t.Errorf("Tarot.ResetSchedule = %q, want %q", cfg.Tarot.ResetSchedule, "30 5 * * *")
	}
	if cfg.Tarot.RevealDelay != 1500*time.Millisecond {
		t.Errorf("Tarot.RevealDelay = %v, want %v", cfg.Tarot.RevealDelay, 1500*time.Millisecond)
	}
	if cfg.Diagnosis.Questionnaire != "./questions.yaml" {
		t.Errorf("Diagnosis.Questionnaire = %q, want %q", cfg.Diagnosis.Questionnaire, "./questions.yaml")
	}
	if cfg.History.PerPage != 5 || cfg.History.MaxPerPage != 25 {
		t.Errorf("History = %+v, want per_page 5, max 25", cfg.History)
	}
	if cfg.Feed.Platform != "discord" || cfg.Feed.ChannelID != "998877" {
		t.Errorf("Feed = %+v, want discord/998877", cfg.Feed)
	}
}

func TestParse_EmptyConfig_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, "sqlite")
	}
	if cfg.Database.Path != "uranai.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "uranai.db")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Server.IdleTimeout != 30*time.Minute {
		t.Errorf("Server.IdleTimeout = %v, want %v", cfg.Server.IdleTimeout, 30*time.Minute)
	}
	if cfg.Tarot.Timezone != "Asia/Tokyo" {
		t.Errorf("Tarot.Timezone = %q, want %q", cfg.Tarot.Timezone, "Asia/Tokyo")
	}
	if cfg.Tarot.ResetSchedule != "0 0 * * *" {
		t.Errorf("Tarot.ResetSchedule = %q, want %q", cfg.Tarot.ResetSchedule, "0 0 * * *")
	}
	if cfg.Tarot.RevealDelay != 3*time.Second {
		t.Errorf("Tarot.RevealDelay = %v, want %v", cfg.Tarot.RevealDelay, 3*time.Second)
	}
	if cfg.History.PerPage != 10 {
		t.Errorf("History.PerPage = %d, want %d", cfg.History.PerPage, 10)
	}
	if cfg.History.MaxPerPage != 50 {
		t.Errorf("History.MaxPerPage = %d, want %d", cfg.History.MaxPerPage, 50)
	}
	if cfg.Feed.Platform != "" {
		t.Errorf("Feed.Platform = %q, want empty", cfg.Feed.Platform)
	}
}

func TestParse_MySQLDefaults(t *testing.T) {
	cfg, err := Parse([]byte("database:\n  driver: mysql\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Host != "127.0.0.1" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "127.0.0.1")
	}
	if cfg.Database.Port != 3306 {
		t.Errorf("Database.Port = %d, want %d", cfg.Database.Port, 3306)
	}
	if cfg.Database.Name != "uranai" {
		t.Errorf("Database.Name = %q, want %q", cfg.Database.Name, "uranai")
	}
	if cfg.Database.Path != "" {
		t.Errorf("Database.Path = %q, want empty for mysql", cfg.Database.Path)
	}
}

func TestParse_UnknownDriver(t *testing.T) {
	_, err := Parse([]byte("database:\n  driver: postgres\n"))
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if !strings.Contains(err.Error(), "must be sqlite or mysql") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "must be sqlite or mysql")
	}
}

func TestParse_BadTimezone(t *testing.T) {
	_, err := Parse([]byte("tarot:\n  timezone: Mars/Olympus\n"))
	if err == nil {
		t.Fatal("expected error for unknown timezone")
	}
	if !strings.Contains(err.Error(), "not a known zone") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "not a known zone")
	}
}

func TestParse_BadResetSchedule(t *testing.T) {
	_, err := Parse([]byte("tarot:\n  reset_schedule: \"every day\"\n"))
	if err == nil {
		t.Fatal("expected error for bad cron expression")
	}
	if !strings.Contains(err.Error(), "tarot.reset_schedule") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "tarot.reset_schedule")
	}
}

func TestParse_PerPageExceedsMax(t *testing.T) {
	_, err := Parse([]byte("history:\n  per_page: 80\n  max_per_page: 40\n"))
	if err == nil {
		t.Fatal("expected error for per_page > max_per_page")
	}
	if !strings.Contains(err.Error(), "exceeds max_per_page") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "exceeds max_per_page")
	}
}

func TestParse_FeedRequiresTokenAndChannel(t *testing.T) {
	_, err := Parse([]byte("feed:\n  platform: slack\n"))
	if err == nil {
		t.Fatal("expected error for feed without token")
	}
	for _, want := range []string{"feed.bot_token is required", "feed.channel_id is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error = %q, want to contain %q", err.Error(), want)
		}
	}
}

func TestParse_UnknownFeedPlatform(t *testing.T) {
	_, err := Parse([]byte("feed:\n  platform: irc\n"))
	if err == nil {
		t.Fatal("expected error for unknown feed platform")
	}
	if !strings.Contains(err.Error(), "must be slack or discord") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "must be slack or discord")
	}
}

func TestParse_MultipleValidationErrors(t *testing.T) {
	yaml := `
database:
  driver: oracle
tarot:
  timezone: Nowhere/Land
  reveal_delay: -1s
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	for _, want := range []string{"database.driver", "tarot.timezone", "tarot.reveal_delay"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error = %q, want to contain %q", msg, want)
		}
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("{{not yaml"))
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "config: parse") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: parse")
	}
}

func TestConfig_Location(t *testing.T) {
	cfg, err := Parse([]byte("tarot:\n  timezone: America/New_York\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Location().String(); got != "America/New_York" {
		t.Errorf("Location() = %q, want %q", got, "America/New_York")
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "uranai.yaml")
	if err := os.WriteFile(path, []byte(fullYAML), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Name != "uranai_alice" {
		t.Errorf("Database.Name = %q, want %q", cfg.Database.Name, "uranai_alice")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/uranai.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "config: read") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: read")
	}
}

// --- Fixture-based tests using testdata/ files ---

func TestLoad_FullFixture(t *testing.T) {
	cfg, err := Load("testdata/valid_full.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Host != "10.0.0.5" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "10.0.0.5")
	}
	if cfg.Tarot.RevealDelay != 2500*time.Millisecond {
		t.Errorf("Tarot.RevealDelay = %v, want %v", cfg.Tarot.RevealDelay, 2500*time.Millisecond)
	}
	if cfg.Feed.Platform != "slack" {
		t.Errorf("Feed.Platform = %q, want %q", cfg.Feed.Platform, "slack")
	}
}

func TestLoad_MinimalFixture(t *testing.T) {
	cfg, err := Load("testdata/valid_minimal.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, "sqlite")
	}
	if cfg.Database.Path != "/tmp/uranai-test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/uranai-test.db")
	}
}

func TestLoad_InvalidYAMLFixture(t *testing.T) {
	_, err := Load("testdata/invalid_yaml.yaml")
	if err == nil {
		t.Fatal("expected error for invalid YAML fixture")
	}
}
