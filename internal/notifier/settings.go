package notifier

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/beaconhq/beacon/internal/models"
)

// decodeSettings copies settings into the typed struct pointed to by out.
// Scalar values are converted between types where possible.
func decodeSettings(settings models.Settings, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]any(settings)); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	return nil
}
