package alerts

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beaconhq/beacon/internal/models"
)

// ValidateName checks an alert rule name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name is required")
	}
	if len(name) > models.MaxAlertNameLength {
		return fmt.Errorf("name must be %d characters or less", models.MaxAlertNameLength)
	}
	return nil
}

// ParseSeverities converts severity names to a de-duplicated set.
func ParseSeverities(names []string) ([]models.Severity, error) {
	if len(names) == 0 {
		return nil, errors.New("at least one severity is required")
	}
	seen := make(map[models.Severity]bool, len(names))
	out := make([]models.Severity, 0, len(names))
	for _, n := range names {
		sev, err := models.ParseSeverity(n)
		if err != nil {
			return nil, err
		}
		if seen[sev] {
			continue
		}
		seen[sev] = true
		out = append(out, sev)
	}
	return out, nil
}

// CleanEventTypes trims filters and drops empty entries.
func CleanEventTypes(types []string) []string {
	var out []string
	for _, t := range types {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
