// Package oauth provides maintenance scheduling for the per-user Spotify
// tokens persisted in the spotify_tokens table. It performs jittered sweeps
// and refreshes every user whose token expiry falls within a configured window.
package oauth

import (
	"context"
	"database/sql"
	"log/slog"
	"math/rand"
	"time"

	"github.com/tunebridge/tunebridge/db"
)

// Refresher performs the per-user refresh. Its implementation serializes
// against live commands for the same user, so a sweep never races a refresh
// that a command is already performing. *session.Manager satisfies it.
type Refresher interface {
	RefreshUser(ctx context.Context, userID string) error
}

// StartSweeper launches a goroutine that periodically lists users whose token
// expires within window and refreshes each one.
// interval: how often to wake up and sweep.
// window: refresh when remaining lifetime <= window.
func StartSweeper(ctx context.Context, dbx *sql.DB, r Refresher, interval, window time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	if window <= 0 {
		window = 90 * time.Minute
	}
	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(interval / 2)))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			// Add per-iteration jitter (±20% of interval) for scheduling diversity.
			jitterRange := int64(interval / 5)
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			nextSleep := interval + jitter
			if nextSleep < interval/2 {
				nextSleep = interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}
			SweepOnce(ctx, dbx, r, window)
		}
	}()
}

// SweepOnce refreshes every user whose token expires within window. Failures
// are logged per user and never abort the sweep.
func SweepOnce(ctx context.Context, dbx *sql.DB, r Refresher, window time.Duration) {
	users, err := db.ListTokenUsersNearExpiry(ctx, dbx, window)
	if err != nil {
		slog.Warn("token sweep query failed", slog.Any("err", err))
		return
	}
	defer func() {
		if _, err := dbx.ExecContext(ctx, `INSERT INTO kv(key,value,updated_at) VALUES('job_token_sweep_last',$1,NOW())
			ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`, time.Now().UTC().Format(time.RFC3339)); err != nil {
			slog.Debug("failed to record sweep timestamp", slog.Any("err", err))
		}
	}()
	if len(users) == 0 {
		return
	}
	slog.Info("token sweep starting", slog.Int("users", len(users)))
	for _, userID := range users {
		if ctx.Err() != nil {
			return
		}
		// Small pre-refresh jitter to avoid stampedes when many pods see same expiry
		//nolint:gosec // G404: math/rand is sufficient for jitter, not used for security
		pre := time.Duration(rand.Int63n(int64(2 * time.Second)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(pre):
		}
		ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := r.RefreshUser(ctx2, userID)
		cancel()
		if err != nil {
			slog.Warn("sweep refresh failed", slog.String("user", userID), slog.Any("err", err))
			continue
		}
		slog.Debug("sweep refreshed token", slog.String("user", userID))
	}
}
