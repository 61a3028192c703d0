package config

import (
	"context"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	gethlog "github.com/ethereum/go-ethereum/log"
)

// Reloadable is the subset of Config that may change without restarting
// the process: everything that identifies an on-chain address or a
// signing key is fixed at startup and never revisited here.
type Reloadable struct {
	PollInterval time.Duration
	TrustedRate  float64
}

// WatchConfigFile watches path for writes and calls onReload with the
// freshly decoded Reloadable values each time the file changes, until ctx
// is canceled. A no-op if path is empty: CLI-only configuration has
// nothing to watch.
func WatchConfigFile(ctx context.Context, log gethlog.Logger, path string, onReload func(Reloadable)) error {
	if path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("config: watching %s: %w", path, err)
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			reloaded, err := reloadFile(path)
			if err != nil {
				log.Warn("config: reload failed, keeping previous values", "path", path, "err", err)
				continue
			}
			log.Info("config: reloaded from disk", "path", path, "poll_interval", reloaded.PollInterval, "trusted_rate_limit", reloaded.TrustedRate)
			onReload(reloaded)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("config: file watcher error", "err", err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func reloadFile(path string) (Reloadable, error) {
	var file fileConfig
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return Reloadable{}, fmt.Errorf("decoding %s: %w", path, err)
	}

	out := Reloadable{TrustedRate: file.TrustedRate}
	if file.PollInterval != "" {
		d, err := time.ParseDuration(file.PollInterval)
		if err != nil {
			return Reloadable{}, fmt.Errorf("parsing poll_interval: %w", err)
		}
		out.PollInterval = d
	}
	return out, nil
}
