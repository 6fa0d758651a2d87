package alerting

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/beaconhq/beacon/internal/models"
)

// reloadDelay coalesces the burst of events editors emit on save.
const reloadDelay = 100 * time.Millisecond

// FileRepository serves alert rules from a YAML rules file.
type FileRepository struct {
	path   string
	logger *zap.Logger

	mu    sync.RWMutex
	rules []*models.AlertRule
}

// NewFileRepository loads the rules file at path.
func NewFileRepository(path string, logger *zap.Logger) (*FileRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	r := &FileRepository{path: absPath, logger: logger}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the rules file. On error the previous rules are kept.
func (r *FileRepository) Reload() error {
	rules, err := LoadRulesFromFile(r.path)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.rules = rules
	r.mu.Unlock()

	r.logger.Info("alert rules loaded", zap.String("path", r.path), zap.Int("count", len(rules)))
	return nil
}

// Rules returns every loaded rule.
func (r *FileRepository) Rules() []*models.AlertRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.AlertRule, len(r.rules))
	copy(out, r.rules)
	return out
}

// FindEnabledRules implements RuleRepository.
func (r *FileRepository) FindEnabledRules(ctx context.Context, channelID string, severity models.Severity) ([]*models.AlertRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.AlertRule
	for _, rule := range r.rules {
		if rule.Enabled && rule.ChannelID == channelID && rule.MatchesSeverity(severity) {
			out = append(out, rule)
		}
	}
	return out, nil
}

// Watch reloads the rules whenever the file changes, until ctx is done.
// The parent directory is watched so atomic replaces are seen.
func (r *FileRepository) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch directory: %w", err)
	}

	go r.run(ctx, watcher)
	return nil
}

func (r *FileRepository) run(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Name != r.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = time.After(reloadDelay)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("rules watcher error", zap.Error(err))
		case <-pending:
			pending = nil
			if err := r.Reload(); err != nil {
				r.logger.Error("failed to reload alert rules, keeping previous set",
					zap.String("path", r.path),
					zap.Error(err),
				)
			}
		}
	}
}
