// Package notifier provides the alert senders and the registry that
// creates them from stored settings.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/beaconhq/beacon/internal/models"
)

// ErrUnknownSenderType is returned when no definition is registered for a type key.
var ErrUnknownSenderType = errors.New("unknown sender type")

// ErrInvalidSettings is returned by Send when a sender was built from settings
// that do not pass its validation.
var ErrInvalidSettings = errors.New("invalid sender settings")

// settingsError wraps the first settings problem found while building a
// sender. Senders report it from Send instead of failing Create.
func settingsError(verrs ValidationErrors, decodeErr error) error {
	if err := verrs.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	if decodeErr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, decodeErr)
	}
	return nil
}

// Sender delivers a single event to one external system.
type Sender interface {
	// Type returns the sender type key (e.g., "slack", "webhook").
	Type() string
	// Send delivers the event. Third-party delivery failures are logged,
	// not returned.
	Send(ctx context.Context, event *models.Event) error
	// Settings returns the effective settings the sender was built with.
	Settings() models.Settings
}

// Field describes one settings input for clients building a settings form.
type Field struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Kind        string `json:"kind"` // text, url, email, tel
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// Definition is the static metadata and factory for one sender type.
type Definition struct {
	Type     string
	Label    string
	Defaults models.Settings
	Schema   []Field

	// Validate returns structural problems with a settings payload.
	Validate func(models.Settings) ValidationErrors
	// Submit normalises accepted settings before they are stored.
	Submit func(models.Settings) models.Settings
	// New builds a sender from fully merged settings.
	New func(settings models.Settings, deps Deps) (Sender, error)
}

// Site identifies the deployment in outbound messages.
type Site struct {
	Name    string
	BaseURL string
}

// Deps are the collaborators handed to sender factories.
type Deps struct {
	Mail       MailTransport
	Site       Site
	SMSGateway string
	Logger     *zap.Logger
}

// Registry maps sender type keys to definitions. It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
	deps Deps
}

// NewEmptyRegistry creates a registry with no definitions.
func NewEmptyRegistry(deps Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Registry{
		defs: make(map[string]Definition),
		deps: deps,
	}
}

// NewRegistry creates a registry with every built-in sender registered.
func NewRegistry(deps Deps) *Registry {
	r := NewEmptyRegistry(deps)
	r.Register(EmailDefinition())
	r.Register(SlackDefinition())
	r.Register(WebhookDefinition())
	r.Register(TextMessageDefinition(deps.SMSGateway))
	return r
}

// Register adds or replaces a definition.
func (r *Registry) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Type] = def
}

// Definition returns the definition for a type key.
func (r *Registry) Definition(typeKey string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[typeKey]
	return def, ok
}

// Definitions returns all definitions sorted by type key.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

func (r *Registry) lookup(typeKey string) (Definition, error) {
	def, ok := r.Definition(typeKey)
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownSenderType, typeKey)
	}
	return def, nil
}

// Create builds a sender whose settings are the type's defaults merged with
// override. Override values win.
func (r *Registry) Create(typeKey string, override models.Settings) (Sender, error) {
	def, err := r.lookup(typeKey)
	if err != nil {
		return nil, err
	}

	settings := def.Defaults.Clone()
	for k, v := range override {
		settings[k] = v
	}

	sender, err := def.New(settings, r.deps)
	if err != nil {
		return nil, fmt.Errorf("create %s sender: %w", typeKey, err)
	}
	return sender, nil
}

// DefaultSettings returns a copy of the type's default settings.
func (r *Registry) DefaultSettings(typeKey string) (models.Settings, error) {
	def, err := r.lookup(typeKey)
	if err != nil {
		return nil, err
	}
	return def.Defaults.Clone(), nil
}

// SettingsSchema returns the settings fields for a type.
func (r *Registry) SettingsSchema(typeKey string) ([]Field, error) {
	def, err := r.lookup(typeKey)
	if err != nil {
		return nil, err
	}
	out := make([]Field, len(def.Schema))
	copy(out, def.Schema)
	return out, nil
}

// ValidateSettings checks values merged over the type's defaults.
func (r *Registry) ValidateSettings(typeKey string, values models.Settings) (ValidationErrors, error) {
	def, err := r.lookup(typeKey)
	if err != nil {
		return nil, err
	}
	if def.Validate == nil {
		return nil, nil
	}
	merged := def.Defaults.Clone()
	for k, v := range values {
		merged[k] = v
	}
	return def.Validate(merged), nil
}

// SubmitSettings normalises values for storage. Keys not in the type's
// defaults are dropped.
func (r *Registry) SubmitSettings(typeKey string, values models.Settings) (models.Settings, error) {
	def, err := r.lookup(typeKey)
	if err != nil {
		return nil, err
	}
	out := make(models.Settings, len(def.Defaults))
	for k, v := range def.Defaults {
		out[k] = v
		if nv, ok := values[k]; ok {
			out[k] = nv
		}
	}
	if def.Submit != nil {
		out = def.Submit(out)
	}
	return out, nil
}

func (d Deps) log() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}
