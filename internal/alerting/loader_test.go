package alerting

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconhq/beacon/internal/models"
	"github.com/beaconhq/beacon/internal/notifier"
)

const sampleRules = `
rules:
  - name: Errors to ops webhook
    channel: chan-1
    type: webhook
    severity: [error, critical]
    settings:
      endpoint: https://hooks.example.com/ops
  - name: Order notices by mail
    channel: chan-1
    type: email
    enabled: false
    severity: [notice]
    event_types: ["order*"]
    settings:
      email: ops@example.com
`

func TestLoadRulesFromBytes(t *testing.T) {
	rules, err := LoadRulesFromBytes([]byte(sampleRules))
	require.NoError(t, err)
	require.Len(t, rules, 2)

	a := rules[0]
	assert.Equal(t, "Errors to ops webhook", a.Name)
	assert.True(t, a.Enabled)
	assert.Equal(t, []models.Severity{models.SeverityError, models.SeverityCritical}, a.Severities)
	settings, err := DecodeSettings([]byte(a.Settings), "webhook")
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/ops", settings.String("endpoint"))

	b := rules[1]
	assert.False(t, b.Enabled)
	assert.Equal(t, []string{"order*"}, b.EventTypes)

	again, err := LoadRulesFromBytes([]byte(sampleRules))
	require.NoError(t, err)
	assert.Equal(t, a.ID, again[0].ID)
}

func TestLoadRulesErrors(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{"bad yaml", "rules: [", "failed to parse rules YAML"},
		{"bad severity", "rules:\n  - {name: x, channel: c, type: webhook, severity: [loud]}", "invalid severity"},
		{"no severity", "rules:\n  - {name: x, channel: c, type: webhook}", "at least one severity"},
		{"no name", "rules:\n  - {channel: c, type: webhook, severity: [error]}", "name is required"},
		{"duplicate", "rules:\n  - {id: r1, name: x, channel: c, type: webhook, severity: [error]}\n  - {id: r1, name: y, channel: c, type: webhook, severity: [error]}", "duplicate id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRulesFromBytes([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadRulesEmptyDocument(t *testing.T) {
	rules, err := LoadRulesFromBytes(nil)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestCheckRules(t *testing.T) {
	rules, err := LoadRulesFromBytes([]byte(sampleRules + `
  - name: Broken slack
    channel: chan-1
    type: slack
    severity: [alert]
    settings:
      endpoint: https://example.com/not-slack
      channel: general
  - name: Pager
    channel: chan-1
    type: pager
    severity: [alert]
`))
	require.NoError(t, err)

	errs := CheckRules(rules, notifier.NewRegistry(notifier.Deps{}))
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), `rule "Broken slack"`)
	assert.Contains(t, errs[0].Error(), "channel: must start with # or @")
	assert.ErrorIs(t, errs[1], notifier.ErrUnknownSenderType)
}

func writeRules(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFileRepositoryFindEnabledRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeRules(t, path, sampleRules)

	repo, err := NewFileRepository(path, nil)
	require.NoError(t, err)
	assert.Len(t, repo.Rules(), 2)

	got, err := repo.FindEnabledRules(context.Background(), "chan-1", models.SeverityCritical)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "webhook", got[0].Type)

	got, err = repo.FindEnabledRules(context.Background(), "chan-1", models.SeverityNotice)
	require.NoError(t, err)
	assert.Empty(t, got, "disabled rules are excluded")

	got, err = repo.FindEnabledRules(context.Background(), "other", models.SeverityError)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFileRepositoryWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeRules(t, path, sampleRules)

	repo, err := NewFileRepository(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, repo.Watch(ctx))

	writeRules(t, path, "rules:\n  - {name: only, channel: chan-2, type: webhook, severity: [info]}\n")

	assert.Eventually(t, func() bool {
		rules := repo.Rules()
		return len(rules) == 1 && rules[0].Name == "only"
	}, 5*time.Second, 20*time.Millisecond)

	writeRules(t, path, "rules: [")
	time.Sleep(300 * time.Millisecond)
	assert.Len(t, repo.Rules(), 1, "invalid file keeps previous rules")
}

func TestNewFileRepositoryMissingFile(t *testing.T) {
	_, err := NewFileRepository(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open rules file")
}
