// Package daemon hosts the relay: it owns the PID file, reacts to signals
// and watches the settings file for edits made by other processes.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"ryco/config/models"
	"ryco/internal/relay"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ErrAlreadyRunning is returned when another daemon holds the PID file
var ErrAlreadyRunning = errors.New("daemon already running")

// reloadDelay collapses the burst of events an atomic rename produces
const reloadDelay = 100 * time.Millisecond

// SettingsLoader reads the current settings
type SettingsLoader interface {
	Load() (*models.Settings, error)
}

// Daemon serves the relay until its context ends or it receives SIGINT or
// SIGTERM. SIGHUP reloads the settings.
type Daemon struct {
	addr         string
	pidPath      string
	settingsPath string
	settings     SettingsLoader
	handler      relay.Handler
	log          logrus.FieldLogger

	server *relay.Server

	mu    sync.Mutex
	theme string

	debouncer  *time.Timer
	debounceMu sync.Mutex
}

// New creates a Daemon that keeps its PID file in home
func New(home, addr, settingsPath string, settings SettingsLoader, handler relay.Handler, log logrus.FieldLogger) *Daemon {
	return &Daemon{
		addr:         addr,
		pidPath:      PIDPath(home),
		settingsPath: settingsPath,
		settings:     settings,
		handler:      handler,
		log:          log,
	}
}

// PIDPath returns the PID file location under home
func PIDPath(home string) string {
	return filepath.Join(home, "ryco.pid")
}

// Run serves until ctx is cancelled or a termination signal arrives
func (d *Daemon) Run(ctx context.Context) error {
	if pid, running := Status(d.pidPath); running {
		return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	defer d.cleanup()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.reload(); err != nil {
		d.log.WithError(err).Warn("settings not readable, serving anyway")
	}

	d.server = relay.NewServer(ctx, d.handler, d.log)

	watcher, err := d.startWatcher(ctx)
	if err != nil {
		// edits made elsewhere still apply; only the broadcast is lost
		d.log.WithError(err).Warn("settings watcher unavailable")
	} else {
		defer watcher.Close()
	}
	d.handleHangup(ctx)

	d.log.WithFields(logrus.Fields{"pid": os.Getpid(), "addr": d.addr}).Info("daemon started")
	err = d.server.ListenAndServe(ctx, d.addr)
	d.log.Info("daemon stopped")
	return err
}

func (d *Daemon) writePIDFile() error {
	if err := os.MkdirAll(filepath.Dir(d.pidPath), 0700); err != nil {
		return err
	}
	return os.WriteFile(d.pidPath, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func (d *Daemon) cleanup() {
	if _, err := os.Stat(d.pidPath); err == nil {
		os.Remove(d.pidPath)
	}
}

// reload reads the settings and tells connected tabs when the theme moved
func (d *Daemon) reload() error {
	s, err := d.settings.Load()
	if err != nil {
		return err
	}

	d.mu.Lock()
	changed := d.theme != "" && d.theme != s.Theme
	d.theme = s.Theme
	d.mu.Unlock()

	d.log.WithFields(logrus.Fields{
		"active_provider": s.ActiveProvider,
		"theme":           s.Theme,
	}).Debug("settings loaded")

	if changed && d.server != nil {
		n := d.server.Broadcast(relay.Message{Type: relay.TypeSettingsChanged, Theme: s.Theme})
		d.log.WithFields(logrus.Fields{"theme": s.Theme, "tabs": n}).Info("theme changed")
	}
	return nil
}

func (d *Daemon) startWatcher(ctx context.Context) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(d.settingsPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		watcher.Close()
		return nil, err
	}
	// the directory is watched since the file is replaced by rename
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	name := filepath.Base(d.settingsPath)
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != name {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					d.debouncedReload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				d.log.WithError(err).Warn("watcher error")
			case <-ctx.Done():
				d.stopDebouncer()
				return
			}
		}
	}()

	d.log.WithField("dir", dir).Debug("watching settings directory")
	return watcher, nil
}

func (d *Daemon) debouncedReload() {
	d.debounceMu.Lock()
	defer d.debounceMu.Unlock()

	if d.debouncer != nil {
		d.debouncer.Stop()
	}
	d.debouncer = time.AfterFunc(reloadDelay, func() {
		if err := d.reload(); err != nil {
			d.log.WithError(err).Warn("failed to reload settings")
		}
	})
}

func (d *Daemon) stopDebouncer() {
	d.debounceMu.Lock()
	defer d.debounceMu.Unlock()
	if d.debouncer != nil {
		d.debouncer.Stop()
	}
}

func (d *Daemon) handleHangup(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)

	go func() {
		defer signal.Stop(sigChan)
		for {
			select {
			case <-sigChan:
				d.log.Info("received SIGHUP, reloading settings")
				if err := d.reload(); err != nil {
					d.log.WithError(err).Warn("failed to reload settings")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// IsRunning reports whether this daemon's PID file names a live process
func (d *Daemon) IsRunning() bool {
	_, running := Status(d.pidPath)
	return running
}

// Status reads pidPath and reports the PID and whether it is alive
func Status(pidPath string) (int, bool) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return pid, false
	}

	// Send signal 0 to check if process exists
	return pid, process.Signal(syscall.Signal(0)) == nil
}
