package detect

import (
	"context"
	"sync"
	"time"

	"github.com/helixpos/periph-core/internal/device"
)

// DefaultPollInterval is the hot-plug poll period when none is configured.
const DefaultPollInterval = 2 * time.Second

// PollWatcher turns interval polls of a detector into attach and detach
// signals by diffing consecutive vid:pid sets. The first poll only seeds
// the baseline; devices present at startup are the initial full scan's
// business, not the watcher's.
type PollWatcher struct {
	detector device.Detector
	interval time.Duration
	logger   Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewPollWatcher creates a watcher over the given detector. A
// non-positive interval falls back to DefaultPollInterval.
func NewPollWatcher(detector device.Detector, interval time.Duration) *PollWatcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollWatcher{detector: detector, interval: interval, logger: noopLogger{}}
}

// SetLogger sets the logger for the watcher.
func (w *PollWatcher) SetLogger(logger Logger) {
	w.logger = logger
}

// Watch starts the poll loop. onAttach fires once per newly seen vid:pid;
// onDetach fires once per poll in which anything vanished. Calling Watch
// on a running watcher is a no-op.
func (w *PollWatcher) Watch(onAttach func(vid, pid string), onDetach func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	w.started = true

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(ctx, onAttach, onDetach)
	return nil
}

// Stop ends the poll loop and waits for it to exit. Idempotent.
func (w *PollWatcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done
}

func (w *PollWatcher) loop(ctx context.Context, onAttach func(vid, pid string), onDetach func()) {
	defer close(w.done)

	known := w.snapshot(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		current := w.snapshot(ctx)
		if current == nil {
			continue // poll failed, keep the old baseline
		}

		for id, pair := range current {
			if _, ok := known[id]; !ok {
				onAttach(pair.vid, pair.pid)
			}
		}

		detached := false
		for id := range known {
			if _, ok := current[id]; !ok {
				detached = true
				break
			}
		}
		if detached {
			onDetach()
		}

		known = current
	}
}

type vidPid struct {
	vid, pid string
}

// snapshot returns the current vid:pid set, or nil when detection failed.
func (w *PollWatcher) snapshot(ctx context.Context) map[string]vidPid {
	hardware, err := w.detector.Detect(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("hot-plug poll failed", "error", err)
		}
		return nil
	}

	set := make(map[string]vidPid, len(hardware))
	for _, hw := range hardware {
		id, err := device.DeviceID(hw.VID, hw.PID)
		if err != nil {
			continue
		}
		set[id] = vidPid{vid: hw.VID, pid: hw.PID}
	}
	return set
}
