package channels

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("Shop"))
	assert.Error(t, ValidateName(""))
	assert.Error(t, ValidateName(strings.Repeat("x", 101)))
	assert.NoError(t, ValidateName("Boutique Zoé"))

	err := ValidateName("Shop\r\nBcc: attacker@example.com")
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "control characters")
	}
	assert.Error(t, ValidateName("Shop\tOne"))
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"", false},
		{"https://shop.example.com", false},
		{"http://localhost:8080/app", false},
		{"shop.example.com", true},
		{"ftp://shop.example.com", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
