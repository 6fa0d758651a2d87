package channels

import (
	"errors"
	"net/url"
	"strings"
	"unicode"
)

// ValidateName checks a channel name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name is required")
	}
	if len(name) > 100 {
		return errors.New("name must be 100 characters or less")
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return errors.New("name must not contain control characters")
	}
	return nil
}

// ValidateURL checks the optional channel URL.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("url must be an absolute http or https URL")
	}
	return nil
}
