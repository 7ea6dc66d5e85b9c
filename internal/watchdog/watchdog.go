// Package watchdog detects hung verification processes.
//
// The verification process runs a Heartbeat that rewrites a file in its
// group directory at a fixed interval. The orchestrating process runs a
// Monitor on the same file: when no heartbeat arrives within the timeout it
// calls the kill function once. Both sides are driven only through
// Start(directory, name) and Stop().
package watchdog

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watchdog is the start/stop contract both sides implement.
type Watchdog interface {
	Start(dir, name string) error
	Stop() error
}

// Heartbeat periodically writes a heartbeat file.
type Heartbeat struct {
	interval time.Duration
	log      *zap.Logger

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

var _ Watchdog = (*Heartbeat)(nil)

// NewHeartbeat creates a heartbeat writer.
func NewHeartbeat(interval time.Duration, log *zap.Logger) *Heartbeat {
	if log == nil {
		log = zap.NewNop()
	}
	return &Heartbeat{interval: interval, log: log.Named("heartbeat")}
}

// Start writes the first beat synchronously, then keeps beating until Stop.
func (h *Heartbeat) Start(dir, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stop != nil {
		return fmt.Errorf("heartbeat already started")
	}

	path := filepath.Join(dir, name)
	if err := beat(path); err != nil {
		return err
	}

	h.stop = make(chan struct{})
	h.wg.Add(1)
	go h.loop(path, h.stop)
	return nil
}

func (h *Heartbeat) loop(path string, stop <-chan struct{}) {
	defer h.wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := beat(path); err != nil {
				h.log.Warn("writing heartbeat", zap.String("path", path), zap.Error(err))
			}
		}
	}
}

// Stop ends the heartbeat and waits for the writer to exit.
func (h *Heartbeat) Stop() error {
	h.mu.Lock()
	stop := h.stop
	h.stop = nil
	h.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	h.wg.Wait()
	return nil
}

func beat(path string) error {
	stamp := strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := os.WriteFile(path, []byte(stamp), 0o644); err != nil {
		return fmt.Errorf("writing heartbeat: %w", err)
	}
	return nil
}

// Monitor watches a heartbeat file and calls onTimeout once when it goes
// quiet for longer than the timeout.
type Monitor struct {
	timeout   time.Duration
	poll      time.Duration
	onTimeout func()
	log       *zap.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	path     string
	lastBeat time.Time
	fired    bool
	stop     chan struct{}
	wg       sync.WaitGroup
}

var _ Watchdog = (*Monitor)(nil)

// NewMonitor creates a monitor. onTimeout runs on the monitor's goroutine.
func NewMonitor(timeout time.Duration, onTimeout func(), log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	poll := timeout / 4
	if poll <= 0 || poll > time.Second {
		poll = time.Second
	}
	if poll < 10*time.Millisecond {
		poll = 10 * time.Millisecond
	}
	return &Monitor{timeout: timeout, poll: poll, onTimeout: onTimeout, log: log.Named("watchdog")}
}

// Start begins watching dir/name. The timeout counts from Start, so a
// process that never beats is also caught.
func (m *Monitor) Start(dir, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		return fmt.Errorf("watchdog already started")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating heartbeat directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching heartbeat directory: %w", err)
	}

	m.watcher = watcher
	m.path = filepath.Join(dir, name)
	m.lastBeat = time.Now()
	m.fired = false
	m.stop = make(chan struct{})
	m.wg.Add(1)
	go m.loop(watcher, m.stop)
	return nil
}

func (m *Monitor) loop(watcher *fsnotify.Watcher, stop <-chan struct{}) {
	defer m.wg.Done()

	// Poll as a backup for missed events.
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) == m.path && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				m.touch(time.Now())
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.log.Debug("watcher error", zap.Error(err))
		case now := <-ticker.C:
			if info, err := os.Stat(m.path); err == nil {
				m.touch(info.ModTime())
			}
			if m.expired(now) {
				m.log.Warn("heartbeat timed out",
					zap.String("path", m.path), zap.Duration("timeout", m.timeout))
				if m.onTimeout != nil {
					m.onTimeout()
				}
				return
			}
		}
	}
}

func (m *Monitor) touch(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.After(m.lastBeat) {
		m.lastBeat = t
	}
}

// expired marks the monitor fired when the deadline passed.
func (m *Monitor) expired(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fired || now.Sub(m.lastBeat) <= m.timeout {
		return false
	}
	m.fired = true
	return true
}

// Fired reports whether the timeout was reached.
func (m *Monitor) Fired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fired
}

// Stop ends monitoring.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	stop, watcher := m.stop, m.watcher
	m.stop, m.watcher = nil, nil
	m.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	m.wg.Wait()
	return watcher.Close()
}
