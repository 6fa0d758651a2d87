package alerting

import (
	"strings"
	"sync"

	"github.com/gobwas/glob"

	"github.com/beaconhq/beacon/internal/models"
)

// Matcher filters alert rules by their event type globs.
//
// A pattern matches the whole event type. "*" matches any run of characters,
// including none; every other character is literal and case-sensitive.
// Severity and enabled state are filtered by the rule repository before
// rules reach the matcher.
type Matcher struct {
	mu    sync.RWMutex
	cache map[string]glob.Glob
}

// NewMatcher creates a new Matcher.
func NewMatcher() *Matcher {
	return &Matcher{cache: make(map[string]glob.Glob)}
}

// MatchingRules returns the rules whose type filter accepts the event.
// Rules keep their input order; callers must not rely on any ordering.
func (m *Matcher) MatchingRules(event *models.Event, rules []*models.AlertRule) []*models.AlertRule {
	var out []*models.AlertRule
	for _, rule := range rules {
		if m.MatchesType(rule, event.Type) {
			out = append(out, rule)
		}
	}
	return out
}

// MatchesType reports whether eventType satisfies the rule's type filter.
// An empty filter accepts every type.
func (m *Matcher) MatchesType(rule *models.AlertRule, eventType string) bool {
	if len(rule.EventTypes) == 0 {
		return true
	}
	for _, pattern := range rule.EventTypes {
		if m.compiled(pattern).Match(eventType) {
			return true
		}
	}
	return false
}

func (m *Matcher) compiled(pattern string) glob.Glob {
	m.mu.RLock()
	g, ok := m.cache[pattern]
	m.mu.RUnlock()
	if ok {
		return g
	}

	g = compileTypeGlob(pattern)

	m.mu.Lock()
	m.cache[pattern] = g
	m.mu.Unlock()
	return g
}

// compileTypeGlob builds a glob where only "*" is special.
func compileTypeGlob(pattern string) glob.Glob {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = glob.QuoteMeta(p)
	}
	// Quoted input always compiles.
	return glob.MustCompile(strings.Join(parts, "*"))
}
