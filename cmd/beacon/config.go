// Package main provides the Beacon CLI.
package main

import (
	"fmt"
	"net/mail"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/beaconhq/beacon/internal/logging"
)

// smtpPasswordEnv overrides mail.password when set.
const smtpPasswordEnv = "BEACON_SMTP_PASSWORD"

// Config represents the Beacon configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Rules    RulesConfig    `yaml:"rules"`
	Outbound OutboundConfig `yaml:"outbound"`
	Mail     MailConfig     `yaml:"mail"`
	Site     SiteConfig     `yaml:"site"`
	SMS      SMSConfig      `yaml:"sms"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      logging.Config `yaml:"log"`
}

// ServerConfig contains HTTP API settings.
type ServerConfig struct {
	HTTPAddress      string  `yaml:"http_address"`      // default :8080
	Verbose          bool    `yaml:"verbose"`           // log every request
	IngestRate       float64 `yaml:"ingest_rate"`       // events per second, 0 disables
	IngestBurst      int     `yaml:"ingest_burst"`      // default 50
	PurgeInterval    string  `yaml:"purge_interval"`    // default 1h
	HistoryRetention string  `yaml:"history_retention"` // default 720h
}

// DatabaseConfig contains SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"` // default ./data/beacon.db
}

// RulesConfig selects a YAML rules file instead of the database rules.
type RulesConfig struct {
	File  string `yaml:"file"`
	Watch bool   `yaml:"watch"` // reload when the file changes
}

// OutboundConfig controls notification delivery.
type OutboundConfig struct {
	Timeout        string `yaml:"timeout"`         // per request, default 5s
	MaxConcurrency int    `yaml:"max_concurrency"` // 0 means unbounded
}

// MailConfig contains SMTP settings. Email alerts are disabled when Host is empty.
type MailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// SiteConfig identifies this deployment in notifications.
type SiteConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
	Email   string `yaml:"email"` // used as mail.from when that is empty
}

// SMSConfig contains the text message gateway default.
type SMSConfig struct {
	GatewayURL string `yaml:"gateway_url"`
}

// MetricsConfig contains the Prometheus endpoint settings.
type MetricsConfig struct {
	Address string `yaml:"address"` // empty disables the metrics server
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	cfg.setDefaults()
	return cfg
}

func (c *Config) applyEnv() {
	if pw := os.Getenv(smtpPasswordEnv); pw != "" {
		c.Mail.Password = pw
	}
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Server.HTTPAddress == "" {
		c.Server.HTTPAddress = ":8080"
	}
	if c.Server.IngestBurst == 0 {
		c.Server.IngestBurst = 50
	}
	if c.Server.PurgeInterval == "" {
		c.Server.PurgeInterval = "1h"
	}
	if c.Server.HistoryRetention == "" {
		c.Server.HistoryRetention = "720h"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/beacon.db"
	}
	if c.Outbound.Timeout == "" {
		c.Outbound.Timeout = "5s"
	}
	if c.Mail.Port == 0 {
		c.Mail.Port = 587
	}
	if c.Mail.From == "" {
		c.Mail.From = c.Site.Email
	}
	if c.Site.Name == "" {
		c.Site.Name = "Beacon"
	}
	if c.Site.BaseURL == "" {
		c.Site.BaseURL = "http://localhost:8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.IngestRate < 0 {
		return fmt.Errorf("server.ingest_rate must not be negative")
	}
	for name, value := range map[string]string{
		"server.purge_interval":    c.Server.PurgeInterval,
		"server.history_retention": c.Server.HistoryRetention,
		"outbound.timeout":         c.Outbound.Timeout,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Outbound.MaxConcurrency < 0 {
		return fmt.Errorf("outbound.max_concurrency must not be negative")
	}
	if err := checkAbsoluteURL(c.Site.BaseURL); err != nil {
		return fmt.Errorf("site.base_url: %w", err)
	}
	if c.SMS.GatewayURL != "" {
		if err := checkAbsoluteURL(c.SMS.GatewayURL); err != nil {
			return fmt.Errorf("sms.gateway_url: %w", err)
		}
	}
	if c.Mail.Host != "" {
		if c.Mail.From == "" {
			return fmt.Errorf("mail.from or site.email is required when mail.host is set")
		}
		if _, err := mail.ParseAddress(c.Mail.From); err != nil {
			return fmt.Errorf("invalid mail.from: %w", err)
		}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("log.format must be json or console")
	}
	return nil
}

// OutboundTimeout returns the parsed per-request timeout.
func (c *Config) OutboundTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Outbound.Timeout)
	return d
}

// PurgeInterval returns the parsed purge interval.
func (c *Config) PurgeInterval() time.Duration {
	d, _ := time.ParseDuration(c.Server.PurgeInterval)
	return d
}

// HistoryRetention returns the parsed history retention.
func (c *Config) HistoryRetention() time.Duration {
	d, _ := time.ParseDuration(c.Server.HistoryRetention)
	return d
}

func checkAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("must be an absolute http or https URL")
	}
	return nil
}
