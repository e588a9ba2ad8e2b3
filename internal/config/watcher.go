package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
)

const defaultReloadDebounce = 250 * time.Millisecond

// Watcher reloads the config file when it changes on disk and hands every
// valid result to a callback. Invalid edits are logged and skipped so the
// running config stays in place.
type Watcher struct {
	opts     LoadOptions
	log      logger.Logger
	onChange func(*Config)
	debounce time.Duration
}

// NewWatcher creates a Watcher for opts.ConfigFile.
func NewWatcher(opts LoadOptions, log logger.Logger, onChange func(*Config)) (*Watcher, error) {
	if opts.ConfigFile == "" {
		return nil, errors.NewInvalidArgumentError("config watching requires an explicit config file")
	}
	return &Watcher{
		opts:     opts,
		log:      log.WithComponent("config-watcher"),
		onChange: onChange,
		debounce: defaultReloadDebounce,
	}, nil
}

// Run blocks until ctx is cancelled. The parent directory is watched rather
// than the file so editors that replace the file by rename are handled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WrapError(err, constants.ErrCodeInternal, "failed to create file watcher")
	}
	defer fw.Close()

	target := filepath.Clean(w.opts.ConfigFile)
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return errors.WrapError(err, constants.ErrCodeInternal, "failed to watch config directory")
	}
	w.log.Info(ctx, "Watching config file", logger.String("path", target))

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			pending = timer.C
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn(ctx, "Config watcher error", logger.Error(err))
		case <-pending:
			pending = nil
			w.reload(ctx)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	cfg, err := LoadConfig(w.opts, w.log)
	if err != nil {
		w.log.Warn(ctx, "Config reload rejected, keeping current config", logger.Error(err))
		return
	}
	w.onChange(cfg)
}
