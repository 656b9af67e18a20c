package relay

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/beacon/internal/config"
)

// reloadDebounce coalesces editor write bursts into one reload.
const reloadDebounce = 300 * time.Millisecond

// WatchSettings reloads the service's configuration whenever the settings
// file changes. It watches the parent directory, since the file may be
// replaced rather than rewritten in place, and returns when ctx is canceled.
func (s *Service) WatchSettings(ctx context.Context) error {
	settingsPath := filepath.Clean(config.SettingsPath())

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(settingsPath)); err != nil {
		return err
	}
	log.Debug().Str("path", settingsPath).Msg("Watching settings file")

	var (
		debounce *time.Timer
		fire     <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != settingsPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(reloadDebounce)
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(reloadDebounce)
			}
			fire = debounce.C

		case <-fire:
			fire = nil
			cfg, err := config.Load()
			if err != nil {
				log.Warn().Err(err).Msg("Settings changed but reload failed, keeping previous configuration")
				continue
			}
			s.Reload(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Settings watcher error")
		}
	}
}
