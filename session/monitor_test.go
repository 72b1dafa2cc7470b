package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tunebridge/tunebridge/spotifyapi"
)

// chanNotifier forwards change events to a channel.
type chanNotifier struct {
	events chan spotifyapi.Track
}

func (n *chanNotifier) TrackChanged(_ string, track spotifyapi.Track) {
	n.events <- track
}

// playbackServer serves a mutable currently-playing response.
type playbackServer struct {
	mu      sync.Mutex
	trackID string
	name    string
	fail    bool
	srv     *httptest.Server
}

func newPlaybackServer(t *testing.T) *playbackServer {
	t.Helper()
	p := &playbackServer{}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		trackID, name, fail := p.trackID, p.name, p.fail
		p.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if trackID == "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"is_playing":  true,
			"progress_ms": 1000,
			"item": map[string]interface{}{
				"id":          trackID,
				"name":        name,
				"duration_ms": 200000,
				"artists":     []map[string]string{{"name": "Artist"}},
			},
		})
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *playbackServer) set(trackID, name string) {
	p.mu.Lock()
	p.trackID, p.name, p.fail = trackID, name, false
	p.mu.Unlock()
}

func (p *playbackServer) setFailing(fail bool) {
	p.mu.Lock()
	p.fail = fail
	p.mu.Unlock()
}

func newTestMonitor(t *testing.T, srv *playbackServer, max int) (*Monitor, *chanNotifier, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	_ = store.UpsertToken(context.Background(), "u", "tok", "r", time.Now().Add(time.Hour), "")
	m := NewManager(store, &fakeAuth{})
	m.APIBase = srv.srv.URL
	n := &chanNotifier{events: make(chan spotifyapi.Track, 16)}
	mo := NewMonitor(m, n, 10*time.Millisecond, max)
	t.Cleanup(mo.StopAll)
	return mo, n, store
}

func waitEvent(t *testing.T, n *chanNotifier, wantID string) {
	t.Helper()
	select {
	case got := <-n.events:
		if got.ID != wantID {
			t.Fatalf("event track = %q, want %q", got.ID, wantID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for track %q", wantID)
	}
}

func assertNoEvent(t *testing.T, n *chanNotifier, within time.Duration) {
	t.Helper()
	select {
	case got := <-n.events:
		t.Fatalf("unexpected event for track %q", got.ID)
	case <-time.After(within):
	}
}

func TestMonitor_EmitsOnlyOnChange(t *testing.T) {
	srv := newPlaybackServer(t)
	srv.set("track-a", "Song A")
	mo, n, _ := newTestMonitor(t, srv, 0)

	if err := mo.Start(context.Background(), "u"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitEvent(t, n, "track-a")

	// Same track keeps polling without further events.
	assertNoEvent(t, n, 100*time.Millisecond)

	srv.set("track-b", "Song B")
	waitEvent(t, n, "track-b")
}

func TestMonitor_NothingPlayingNoEvent(t *testing.T) {
	srv := newPlaybackServer(t)
	mo, n, _ := newTestMonitor(t, srv, 0)

	if err := mo.Start(context.Background(), "u"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	assertNoEvent(t, n, 100*time.Millisecond)

	// Playback begins: one event.
	srv.set("track-a", "Song A")
	waitEvent(t, n, "track-a")
}

func TestMonitor_PollErrorKeepsLoopAlive(t *testing.T) {
	srv := newPlaybackServer(t)
	srv.setFailing(true)
	mo, n, _ := newTestMonitor(t, srv, 0)

	if err := mo.Start(context.Background(), "u"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	assertNoEvent(t, n, 100*time.Millisecond)
	if !mo.IsRunning("u") {
		t.Fatal("monitor died on poll errors")
	}

	srv.set("track-a", "Song A")
	waitEvent(t, n, "track-a")
}

func TestMonitor_ReplaceSemantics(t *testing.T) {
	srv := newPlaybackServer(t)
	srv.set("track-a", "Song A")
	mo, n, _ := newTestMonitor(t, srv, 0)

	if err := mo.Start(context.Background(), "u"); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}
	waitEvent(t, n, "track-a")
	if err := mo.Start(context.Background(), "u"); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	if got := len(mo.Running()); got != 1 {
		t.Errorf("running monitors = %d, want 1 after double start", got)
	}
	// The replacement loop starts with no last-seen track and re-announces.
	waitEvent(t, n, "track-a")
}

func TestMonitor_ReplaceWaitsForOldLoop(t *testing.T) {
	// Slow polls plus repeated replacement: at most one loop may ever be
	// mid-poll, or a replaced loop could announce concurrently with its
	// successor.
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	store := newFakeStore()
	_ = store.UpsertToken(context.Background(), "u", "tok", "r", time.Now().Add(time.Hour), "")
	m := NewManager(store, &fakeAuth{})
	m.APIBase = srv.URL
	mo := NewMonitor(m, nil, 5*time.Millisecond, 0)
	t.Cleanup(mo.StopAll)

	for i := 0; i < 5; i++ {
		if err := mo.Start(context.Background(), "u"); err != nil {
			t.Fatalf("Start() #%d error = %v", i+1, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	mo.StopAll()

	mu.Lock()
	defer mu.Unlock()
	if maxInFlight > 1 {
		t.Errorf("max concurrent polls = %d, want 1", maxInFlight)
	}
}

func TestMonitor_StopStartDoesNotMissChange(t *testing.T) {
	srv := newPlaybackServer(t)
	srv.set("track-a", "Song A")
	mo, n, _ := newTestMonitor(t, srv, 0)

	if err := mo.Start(context.Background(), "u"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitEvent(t, n, "track-a")

	if !mo.Stop("u") {
		t.Fatal("Stop() = false for running monitor")
	}
	// Track changes while stopped; restarting must pick it up.
	srv.set("track-b", "Song B")
	if err := mo.Start(context.Background(), "u"); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	waitEvent(t, n, "track-b")
}

func TestMonitor_StopUnknownUser(t *testing.T) {
	srv := newPlaybackServer(t)
	mo, _, _ := newTestMonitor(t, srv, 0)
	if mo.Stop("nobody") {
		t.Error("Stop() = true for user with no monitor")
	}
}

func TestMonitor_Cap(t *testing.T) {
	srv := newPlaybackServer(t)
	mo, _, store := newTestMonitor(t, srv, 1)
	_ = store.UpsertToken(context.Background(), "v", "tok2", "r2", time.Now().Add(time.Hour), "")

	if err := mo.Start(context.Background(), "u"); err != nil {
		t.Fatalf("Start(u) error = %v", err)
	}
	if err := mo.Start(context.Background(), "v"); !errors.Is(err, ErrMonitorLimit) {
		t.Errorf("Start(v) error = %v, want ErrMonitorLimit", err)
	}
	// Restarting an already-monitored user is a replace, not a new slot.
	if err := mo.Start(context.Background(), "u"); err != nil {
		t.Errorf("replace Start(u) error = %v", err)
	}
	// Freeing the slot admits the next user.
	mo.Stop("u")
	if err := mo.Start(context.Background(), "v"); err != nil {
		t.Errorf("Start(v) after free error = %v", err)
	}
}

func TestMonitor_PersistsOptIn(t *testing.T) {
	srv := newPlaybackServer(t)
	mo, _, store := newTestMonitor(t, srv, 0)
	mo.Prefs = store

	if err := mo.Start(context.Background(), "u"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	store.mu.Lock()
	enabled := store.monitors["u"]
	store.mu.Unlock()
	if !enabled {
		t.Error("opt-in not persisted on Start")
	}

	mo.Stop("u")
	store.mu.Lock()
	enabled = store.monitors["u"]
	store.mu.Unlock()
	if enabled {
		t.Error("opt-out not persisted on Stop")
	}
}
