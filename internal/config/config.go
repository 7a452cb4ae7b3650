// Package config provides YAML-based configuration loading for uranai.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // viewer timezones must resolve on hosts without zoneinfo

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the top-level uranai configuration, loaded from uranai.yaml.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Tarot     TarotConfig     `yaml:"tarot"`
	Diagnosis DiagnosisConfig `yaml:"diagnosis"`
	History   HistoryConfig   `yaml:"history"`
	Feed      FeedConfig      `yaml:"feed"`
}

// DatabaseConfig selects and addresses the backing store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "sqlite" or "mysql"
	Path     string `yaml:"path"`   // sqlite file path
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port        int           `yaml:"port"`
	IdleTimeout time.Duration `yaml:"idle_timeout"` // in-memory sessions untouched this long are closed
}

// TarotConfig holds daily draw settings.
type TarotConfig struct {
	Timezone      string        `yaml:"timezone"`       // default viewer timezone (IANA name)
	ResetSchedule string        `yaml:"reset_schedule"` // 5-field cron marking the start of a new draw day
	RevealDelay   time.Duration `yaml:"reveal_delay"`
}

// DiagnosisConfig points at the questionnaire asset.
type DiagnosisConfig struct {
	Questionnaire string `yaml:"questionnaire"` // optional path; embedded default when empty
}

// HistoryConfig holds pagination defaults.
type HistoryConfig struct {
	PerPage    int `yaml:"per_page"`
	MaxPerPage int `yaml:"max_per_page"`
}

// FeedConfig enables posting finalized readings to a team chat channel.
type FeedConfig struct {
	Platform  string `yaml:"platform"` // "", "slack" or "discord"
	ChannelID string `yaml:"channel_id"`
	BotToken  string `yaml:"bot_token"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Location returns the configured default viewer timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Tarot.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "uranai.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.Name == "" {
			c.Database.Name = "uranai"
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 30 * time.Minute
	}
	if c.Tarot.Timezone == "" {
		c.Tarot.Timezone = "Asia/Tokyo"
	}
	if c.Tarot.ResetSchedule == "" {
		c.Tarot.ResetSchedule = "0 0 * * *"
	}
	if c.Tarot.RevealDelay == 0 {
		c.Tarot.RevealDelay = 3 * time.Second
	}
	if c.History.PerPage == 0 {
		c.History.PerPage = 10
	}
	if c.History.MaxPerPage == 0 {
		c.History.MaxPerPage = 50
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be sqlite or mysql", c.Database.Driver))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.IdleTimeout < 0 {
		errs = append(errs, "server.idle_timeout must not be negative")
	}
	if _, err := time.LoadLocation(c.Tarot.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("tarot.timezone %q is not a known zone", c.Tarot.Timezone))
	}
	if _, err := cron.ParseStandard(c.Tarot.ResetSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("tarot.reset_schedule %q: %v", c.Tarot.ResetSchedule, err))
	}
	if c.Tarot.RevealDelay < 0 {
		errs = append(errs, "tarot.reveal_delay must not be negative")
	}
	if c.History.PerPage < 0 || c.History.MaxPerPage < 0 {
		errs = append(errs, "history page sizes must not be negative")
	}
	if c.History.PerPage > c.History.MaxPerPage {
		errs = append(errs, fmt.Sprintf("history.per_page %d exceeds max_per_page %d", c.History.PerPage, c.History.MaxPerPage))
	}
	switch c.Feed.Platform {
	case "":
	case "slack", "discord":
		if c.Feed.BotToken == "" {
			errs = append(errs, "feed.bot_token is required when feed.platform is set")
		}
		if c.Feed.ChannelID == "" {
			errs = append(errs, "feed.channel_id is required when feed.platform is set")
		}
	default:
		errs = append(errs, fmt.Sprintf("feed.platform %q must be slack or discord", c.Feed.Platform))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
