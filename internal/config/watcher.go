package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// settingsFile is the on-disk shape of the hot-reloadable subset of
// Config: the cycle interval and the role->operation permission map.
// Everything else (DSNs, upstream URL) requires a restart, matching
// the teacher's own split between .env (restart-required credentials)
// and a watched JSON settings file (hot-reloadable operational knobs).
type settingsFile struct {
	CycleIntervalSeconds int                         `json:"cycleIntervalSeconds,omitempty"`
	RoleMap              map[Role]map[Operation]bool `json:"roleMap,omitempty"`
}

// Watcher re-reads settingsPath whenever fsnotify reports it changed
// and atomically republishes the subset of Config it governs, letting
// an operator edit permissions without a restart (spec.md §9's "a
// mutation that commits... is observed" discipline extended to config,
// not just thresholds). The cycle interval is republished into Config
// too, but a running evaluation loop keeps the interval it started with.
type Watcher struct {
	settingsPath string
	cfg          *Config
	fsWatcher    *fsnotify.Watcher
	stop         chan struct{}
}

// NewWatcher starts watching settingsPath for changes. A missing file
// at construction time is not an error — it simply means the defaults
// already loaded into cfg stay in effect until the file appears.
func NewWatcher(cfg *Config, settingsPath string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		settingsPath: settingsPath,
		cfg:          cfg,
		fsWatcher:    fsWatcher,
		stop:         make(chan struct{}),
	}

	if _, err := os.Stat(settingsPath); err == nil {
		w.reload()
	}

	if err := fsWatcher.Add(pathDir(settingsPath)); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Name != w.settingsPath {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, w.reload)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("config watcher error")
		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) reload() {
	data, err := os.ReadFile(w.settingsPath)
	if err != nil {
		log.Warn().Err(err).Str("path", w.settingsPath).Msg("failed to read settings file")
		return
	}

	var parsed settingsFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		log.Warn().Err(err).Str("path", w.settingsPath).Msg("malformed settings file, keeping prior values")
		return
	}

	if parsed.CycleIntervalSeconds > 0 {
		w.cfg.SetCycleInterval(time.Duration(parsed.CycleIntervalSeconds) * time.Second)
	}
	if parsed.RoleMap != nil {
		w.cfg.SetRoleMap(parsed.RoleMap)
	}
	log.Info().Str("path", w.settingsPath).Msg("reloaded hot-reloadable settings")
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	close(w.stop)
	return w.fsWatcher.Close()
}

func pathDir(p string) string {
	dir := p
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			dir = p[:i]
			break
		}
	}
	if dir == p {
		return "."
	}
	return dir
}
