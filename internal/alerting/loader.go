package alerting

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/beaconhq/beacon/internal/models"
	"github.com/beaconhq/beacon/internal/notifier"
)

// RuleSpec is one alert rule as written in a rules file.
type RuleSpec struct {
	ID         string          `yaml:"id,omitempty"`
	Name       string          `yaml:"name"`
	Channel    string          `yaml:"channel"`
	Type       string          `yaml:"type"`
	Enabled    *bool           `yaml:"enabled,omitempty"`
	Severity   []string        `yaml:"severity"`
	EventTypes []string        `yaml:"event_types,omitempty"`
	Settings   models.Settings `yaml:"settings,omitempty"`
}

// RulesFile is the top-level structure of a rules file.
type RulesFile struct {
	Rules []RuleSpec `yaml:"rules"`
}

// ruleNamespace derives stable IDs for rules that do not set one.
var ruleNamespace = uuid.MustParse("6f1c6a3e-8f3b-4d61-9b0e-2f7a5c1d9e40")

// ToAlertRule converts the rule definition into a validated alert rule.
func (s RuleSpec) ToAlertRule() (*models.AlertRule, error) {
	severities := make([]models.Severity, 0, len(s.Severity))
	for _, raw := range s.Severity {
		sev, err := models.ParseSeverity(raw)
		if err != nil {
			return nil, err
		}
		severities = append(severities, sev)
	}

	id := s.ID
	if id == "" {
		id = uuid.NewSHA1(ruleNamespace, []byte(s.Channel+"/"+s.Name)).String()
	}

	blob, err := EncodeSettings(nil, s.Type, s.Settings)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	rule := &models.AlertRule{
		ID:         id,
		Name:       s.Name,
		ChannelID:  s.Channel,
		Enabled:    s.Enabled == nil || *s.Enabled,
		Type:       s.Type,
		Settings:   string(blob),
		Severities: severities,
		EventTypes: s.EventTypes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return rule, nil
}

// LoadRulesFromFile loads alert rules from a YAML file.
func LoadRulesFromFile(path string) ([]*models.AlertRule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rules file: %w", err)
	}
	defer f.Close()

	return LoadRules(f)
}

// LoadRulesFromBytes loads alert rules from YAML bytes.
func LoadRulesFromBytes(data []byte) ([]*models.AlertRule, error) {
	return LoadRules(bytes.NewReader(data))
}

// LoadRules loads alert rules from a reader. An empty document yields no rules.
func LoadRules(r io.Reader) ([]*models.AlertRule, error) {
	var file RulesFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse rules YAML: %w", err)
	}

	seen := make(map[string]int, len(file.Rules))
	rules := make([]*models.AlertRule, 0, len(file.Rules))
	for i, spec := range file.Rules {
		rule, err := spec.ToAlertRule()
		if err != nil {
			return nil, fmt.Errorf("invalid rule at index %d: %w", i, err)
		}
		if prev, dup := seen[rule.ID]; dup {
			return nil, fmt.Errorf("invalid rule at index %d: duplicate id %s (also at index %d)", i, rule.ID, prev)
		}
		seen[rule.ID] = i
		rules = append(rules, rule)
	}
	return rules, nil
}

// CheckRules validates each rule's sender type and settings against the
// registry. It returns one error per invalid rule.
func CheckRules(rules []*models.AlertRule, registry *notifier.Registry) []error {
	var errs []error
	for _, rule := range rules {
		settings, err := DecodeSettings([]byte(rule.Settings), rule.Type)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", rule.Name, err))
			continue
		}
		verrs, err := registry.ValidateSettings(rule.Type, settings)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", rule.Name, err))
			continue
		}
		if len(verrs) > 0 {
			errs = append(errs, fmt.Errorf("rule %q: %w", rule.Name, verrs))
		}
	}
	return errs
}
