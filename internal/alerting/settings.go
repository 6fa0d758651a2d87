package alerting

import (
	"encoding/json"
	"fmt"

	"github.com/beaconhq/beacon/internal/models"
)

// SettingsBlob holds settings for every sender type a rule has been
// configured with, keyed by type. Switching a rule's type keeps the
// settings of the other types.
type SettingsBlob map[string]models.Settings

// ParseSettingsBlob decodes a stored blob. An empty blob yields an empty map.
func ParseSettingsBlob(blob []byte) (SettingsBlob, error) {
	out := SettingsBlob{}
	if len(blob) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(blob, &out); err != nil {
		return SettingsBlob{}, fmt.Errorf("parse settings: %w", err)
	}
	if out == nil {
		out = SettingsBlob{}
	}
	return out, nil
}

// DecodeSettings returns the settings stored for typeKey, or an empty map
// when none are stored. A malformed blob returns an empty map with the
// parse error so callers can fall back to defaults.
func DecodeSettings(blob []byte, typeKey string) (models.Settings, error) {
	all, err := ParseSettingsBlob(blob)
	if err != nil {
		return models.Settings{}, err
	}
	return all[typeKey].Clone(), nil
}

// EncodeSettings replaces the entry for typeKey in existing and returns the
// new blob. Entries for other types are preserved. A malformed existing blob
// is an error so stored settings are never silently discarded.
func EncodeSettings(existing []byte, typeKey string, settings models.Settings) ([]byte, error) {
	all, err := ParseSettingsBlob(existing)
	if err != nil {
		return nil, err
	}
	all[typeKey] = settings.Clone()

	out, err := json.Marshal(all)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	return out, nil
}
