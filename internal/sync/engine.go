// Package sync drives the per-user refresh loop: fetch, normalize,
// persist, reconcile, emit, sleep, repeat. It also provides the
// synchronous rebuild path that foreground event edits go through.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"roostersync/internal/events"
	"roostersync/internal/jouwloon"
	"roostersync/internal/logging"
	"roostersync/internal/model"
	"roostersync/internal/reconcile"
	"roostersync/internal/schedule"
	"roostersync/internal/userstore"
)

// Emitter is the calendar output sink consumed by the engine.
type Emitter interface {
	Emit(username string, perSummary [][]model.Event) error
}

// Engine owns one full sync pipeline. Users are fully isolated: a
// failure in one user's cycle never affects another's.
type Engine struct {
	users      *userstore.Store
	events     *events.Store
	client     jouwloon.Client
	normalizer *schedule.Normalizer
	emitter    Emitter

	now func() time.Time
}

// NewEngine wires the pipeline together.
func NewEngine(users *userstore.Store, evs *events.Store, client jouwloon.Client, normalizer *schedule.Normalizer, emitter Emitter) *Engine {
	return &Engine{
		users:      users,
		events:     evs,
		client:     client,
		normalizer: normalizer,
		emitter:    emitter,
		now:        time.Now,
	}
}

// RefreshUser runs one full cycle for the user. Credentials and the
// network round trips stay outside the user lock; the persist,
// reconcile and emit stages run as one locked read-modify-write so a
// concurrent foreground edit is never lost.
func (e *Engine) RefreshUser(ctx context.Context, username string) error {
	cfg, err := e.users.Load(username)
	if err != nil {
		return err
	}

	slog.Info("logging in", logging.User(username))
	session, err := e.client.Login(ctx, cfg.Username, cfg.Password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	slog.Info("getting schedule", logging.User(username))
	payload, err := e.client.FetchSchedule(ctx, session)
	if err != nil {
		return err
	}

	opts := schedule.Options{}
	if cfg.Descriptions {
		opts.Describe = func(date time.Time) (string, error) {
			return e.client.FetchShiftDescription(ctx, session, date)
		}
	}

	slog.Info("parsing schedule", logging.User(username))
	fetched, err := e.normalizer.Normalize(payload, opts)
	if err != nil {
		return fmt.Errorf("normalize schedule: %w", err)
	}
	slog.Info("parsed schedule", logging.User(username), slog.Int(logging.KeyCount, len(fetched)))

	var perSummary [][]model.Event
	err = e.users.Update(username, func(cfg *userstore.UserConfig) error {
		// The fetch replaces the cached set wholesale and never touches
		// the overrides; expired overrides are purged before the merge.
		cfg.CachedEvents = fetched
		cfg.CustomEvents = events.PurgeExpired(cfg.CustomEvents, e.now())
		perSummary = reconcile.FanOut(reconcile.Merge(cfg.CachedEvents, cfg.CustomEvents), cfg.Summaries)
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist schedule: %w", err)
	}

	return e.emitter.Emit(username, perSummary)
}

// Rebuild purges expired overrides, reconciles and re-emits the user's
// calendars from persisted state alone. Foreground event mutations call
// this synchronously so a subsequent read observes the write.
func (e *Engine) Rebuild(username string) error {
	var perSummary [][]model.Event
	err := e.users.Update(username, func(cfg *userstore.UserConfig) error {
		cfg.CustomEvents = events.PurgeExpired(cfg.CustomEvents, e.now())
		perSummary = reconcile.FanOut(reconcile.Merge(cfg.CachedEvents, cfg.CustomEvents), cfg.Summaries)
		return nil
	})
	if err != nil {
		rebuilds.WithLabelValues(username, "error").Inc()
		return err
	}

	if err := e.emitter.Emit(username, perSummary); err != nil {
		rebuilds.WithLabelValues(username, "error").Inc()
		return err
	}
	rebuilds.WithLabelValues(username, "success").Inc()
	return nil
}

// AddCustomEvent appends an override and rebuilds the calendars.
func (e *Engine) AddCustomEvent(username string, start, end time.Time, description string) error {
	if err := e.events.Add(username, start, end, description); err != nil {
		return err
	}
	return e.Rebuild(username)
}

// UpdateCustomEvent edits or materializes an override and rebuilds.
func (e *Engine) UpdateCustomEvent(username string, origStart, origEnd, newStart, newEnd time.Time) (events.UpdateOutcome, error) {
	outcome, err := e.events.Update(username, origStart, origEnd, newStart, newEnd)
	if err != nil {
		return outcome, err
	}
	return outcome, e.Rebuild(username)
}

// RemoveCustomEvent deletes an override and rebuilds.
func (e *Engine) RemoveCustomEvent(username string, start, end time.Time) error {
	if err := e.events.Remove(username, start, end); err != nil {
		return err
	}
	return e.Rebuild(username)
}

// RefreshAll runs one cycle for every known user sequentially. Used by
// `sync --once`.
func (e *Engine) RefreshAll(ctx context.Context) error {
	usernames, err := e.users.Usernames()
	if err != nil {
		return err
	}
	var firstErr error
	for _, username := range usernames {
		if err := e.runUser(ctx, username); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// runUser wraps one cycle with logging and metrics. Every failure mode
// ends here: logged with the username and cause, counted, and retried
// at the next scheduled run with the same interval.
func (e *Engine) runUser(ctx context.Context, username string) error {
	started := e.now()
	err := e.RefreshUser(ctx, username)
	refreshDuration.WithLabelValues(username).Observe(time.Since(started).Seconds())

	if err != nil {
		status := "error"
		var authErr *jouwloon.AuthError
		if errors.As(err, &authErr) {
			status = "auth_error"
		}
		refreshCycles.WithLabelValues(username, status).Inc()
		slog.Error("failed to write schedule, trying again later", logging.User(username), logging.Err(err))
		return err
	}

	refreshCycles.WithLabelValues(username, "success").Inc()
	return nil
}

// Start launches the background refresh scheduler: one fixed-cadence
// cron entry per known user, plus an immediate first run. Jobs for one
// user never overlap; there is no backoff, no jitter and no terminal
// state, by design. Blocks until ctx is done, then waits for running
// jobs to finish.
func (e *Engine) Start(ctx context.Context) error {
	usernames, err := e.users.Usernames()
	if err != nil {
		return err
	}
	if len(usernames) == 0 {
		return errors.New("no registered users found")
	}

	logger := &cronLogger{}
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(logger),
		cron.Recover(logger),
	))

	for _, username := range usernames {
		cfg, err := e.users.Load(username)
		if err != nil {
			slog.Error("failed to load user record, skipping", logging.User(username), logging.Err(err))
			continue
		}

		username := username
		spec := fmt.Sprintf("@every %ds", cfg.RefreshSeconds)
		if _, err := c.AddFunc(spec, func() {
			_ = e.runUser(ctx, username)
			slog.Info("waiting for next cycle", logging.User(username), slog.Int("seconds", cfg.RefreshSeconds))
		}); err != nil {
			return fmt.Errorf("schedule refresh for %s: %w", username, err)
		}

		// First cycle runs immediately; the cron entry only fires after
		// one full interval.
		go func() { _ = e.runUser(ctx, username) }()

		slog.Info("scheduled refresh", logging.User(username), slog.Int("seconds", cfg.RefreshSeconds))
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// cronLogger adapts slog to the cron logger interface.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{logging.Err(err)}, keysAndValues...)
	slog.Error("cron: "+msg, args...)
}
