package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tunebridge/tunebridge/spotifyapi"
	"github.com/tunebridge/tunebridge/telemetry"
)

// Notifier consumes track-change events, typically to announce them in chat.
type Notifier interface {
	TrackChanged(userID string, track spotifyapi.Track)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(userID string, track spotifyapi.Track)

func (f NotifierFunc) TrackChanged(userID string, track spotifyapi.Track) {
	f(userID, track)
}

type monitorTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Monitor runs one cancellable polling loop per opted-in user, watching the
// currently-playing track and emitting a change event whenever its identity
// differs from the last observed one. Prefs, when set, persists opt-in state
// across restarts.
type Monitor struct {
	mgr      *Manager
	notifier Notifier
	interval time.Duration
	max      int

	// Prefs persists the per-user opt-in; nil disables persistence.
	Prefs Store

	mu      sync.Mutex
	running map[string]*monitorTask
}

// NewMonitor creates a monitor. max caps the number of concurrent per-user
// loops; Start returns ErrMonitorLimit beyond it.
func NewMonitor(mgr *Manager, notifier Notifier, interval time.Duration, max int) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{
		mgr:      mgr,
		notifier: notifier,
		interval: interval,
		max:      max,
		running:  make(map[string]*monitorTask),
	}
}

// Start begins monitoring a user. If a loop is already running for this user
// it is cancelled and replaced, never stacked. The new loop starts with no
// last-seen track, so whatever is playing on the first poll is announced.
func (mo *Monitor) Start(ctx context.Context, userID string) error {
	mo.mu.Lock()
	old, replacing := mo.running[userID]
	if replacing {
		old.cancel()
		delete(mo.running, userID)
	} else if mo.max > 0 && len(mo.running) >= mo.max {
		mo.mu.Unlock()
		return ErrMonitorLimit
	}

	loopCtx, cancel := context.WithCancel(ctx)
	task := &monitorTask{cancel: cancel, done: make(chan struct{})}
	mo.running[userID] = task
	telemetry.SetMonitorsActive(len(mo.running))
	mo.mu.Unlock()

	// Wait for the replaced loop to finish any in-flight poll before the new
	// one starts, so the two never announce concurrently.
	if replacing {
		<-old.done
	}

	mo.persistPref(ctx, userID, true)
	go mo.loop(loopCtx, userID, task)
	slog.Info("track monitor started", slog.String("user", userID), slog.String("component", "monitor"))
	return nil
}

// Stop cancels a user's monitor. Returns false if none was running.
func (mo *Monitor) Stop(userID string) bool {
	mo.mu.Lock()
	task, ok := mo.running[userID]
	if ok {
		task.cancel()
		delete(mo.running, userID)
		telemetry.SetMonitorsActive(len(mo.running))
	}
	mo.mu.Unlock()
	if !ok {
		return false
	}
	mo.persistPref(context.Background(), userID, false)
	<-task.done
	slog.Info("track monitor stopped", slog.String("user", userID), slog.String("component", "monitor"))
	return true
}

// StopAll cancels every running monitor and waits for the loops to exit.
// Opt-in preferences are left untouched so monitors resume on next boot.
func (mo *Monitor) StopAll() {
	mo.mu.Lock()
	tasks := make([]*monitorTask, 0, len(mo.running))
	for _, t := range mo.running {
		t.cancel()
		tasks = append(tasks, t)
	}
	mo.running = make(map[string]*monitorTask)
	telemetry.SetMonitorsActive(0)
	mo.mu.Unlock()
	for _, t := range tasks {
		<-t.done
	}
}

// Running returns the users with an active monitor.
func (mo *Monitor) Running() []string {
	mo.mu.Lock()
	defer mo.mu.Unlock()
	users := make([]string, 0, len(mo.running))
	for u := range mo.running {
		users = append(users, u)
	}
	return users
}

// IsRunning reports whether a user has an active monitor.
func (mo *Monitor) IsRunning(userID string) bool {
	mo.mu.Lock()
	defer mo.mu.Unlock()
	_, ok := mo.running[userID]
	return ok
}

func (mo *Monitor) persistPref(ctx context.Context, userID string, enabled bool) {
	if mo.Prefs == nil {
		return
	}
	if err := mo.Prefs.SetMonitorEnabled(ctx, userID, enabled); err != nil {
		slog.Warn("failed to persist monitor preference", slog.String("user", userID), slog.Any("err", err))
	}
}

// remove clears the registry entry on loop exit, but only if it still points
// at this task: a replacing Start may already own the slot.
func (mo *Monitor) remove(userID string, task *monitorTask) {
	mo.mu.Lock()
	if cur, ok := mo.running[userID]; ok && cur == task {
		delete(mo.running, userID)
		telemetry.SetMonitorsActive(len(mo.running))
	}
	mo.mu.Unlock()
}

func (mo *Monitor) loop(ctx context.Context, userID string, task *monitorTask) {
	defer close(task.done)
	defer mo.remove(userID, task)

	lastTrackID := ""
	ticker := time.NewTicker(mo.interval)
	defer ticker.Stop()

	// Poll once immediately so a fresh start picks up the current track
	// without waiting a full interval.
	mo.pollOnce(ctx, userID, &lastTrackID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			mo.pollOnce(ctx, userID, &lastTrackID)
		}
	}
}

// pollOnce performs a single currently-playing check. Every error kind is
// logged and swallowed; one bad poll never terminates the loop.
func (mo *Monitor) pollOnce(ctx context.Context, userID string, lastTrackID *string) {
	if ctx.Err() != nil {
		return
	}
	client, err := mo.mgr.Client(ctx, userID)
	if err != nil {
		telemetry.IncMonitorPoll(true)
		slog.Debug("monitor poll: no client", slog.String("user", userID), slog.Any("err", err))
		return
	}
	cp, err := client.GetCurrentlyPlaying(ctx)
	if err != nil {
		telemetry.IncMonitorPoll(true)
		slog.Debug("monitor poll failed", slog.String("user", userID), slog.Any("err", err))
		return
	}
	telemetry.IncMonitorPoll(false)
	if cp == nil {
		// Nothing playing: keep the last-seen id so resuming the same
		// track does not re-announce it.
		return
	}
	if cp.Track.ID != *lastTrackID {
		*lastTrackID = cp.Track.ID
		telemetry.IncTrackChange()
		if mo.notifier != nil {
			mo.notifier.TrackChanged(userID, cp.Track)
		}
	}
}
