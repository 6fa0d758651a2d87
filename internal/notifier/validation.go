package notifier

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/beaconhq/beacon/internal/models"
)

// ValidationError describes a problem with one settings field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a list of settings problems.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Err returns v as an error, or nil when empty.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// checkHTTPURL reports whether raw is an absolute http or https URL with a host.
func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("must be a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("must include a host")
	}
	return nil
}

// trimStrings returns a copy of s with surrounding whitespace removed from
// every string value.
func trimStrings(s models.Settings) models.Settings {
	out := make(models.Settings, len(s))
	for k, v := range s {
		if str, ok := v.(string); ok {
			v = strings.TrimSpace(str)
		}
		out[k] = v
	}
	return out
}
