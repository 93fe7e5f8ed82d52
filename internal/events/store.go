// Package events implements CRUD and purge over user-authored override
// events. Every operation is a locked read-modify-write on the user's
// persisted record; callers that need the calendars to reflect the
// change synchronously run the engine's rebuild afterwards.
package events

import (
	"log/slog"
	"time"

	"roostersync/internal/logging"
	"roostersync/internal/model"
	"roostersync/internal/userstore"
)

// UpdateOutcome reports what an Update call did.
type UpdateOutcome int

const (
	// UpdateNoMatch means neither an override nor a cached event matched
	// the original span; nothing changed.
	UpdateNoMatch UpdateOutcome = iota
	// UpdatedOverride means an existing override was edited in place.
	UpdatedOverride
	// MaterializedCached means a cached event matching the original span
	// was copied into a new override carrying its description and
	// content hash, with the new span.
	MaterializedCached
)

// Store provides the custom-event operations over a user store.
type Store struct {
	users *userstore.Store
}

// NewStore wraps the given user store.
func NewStore(users *userstore.Store) *Store {
	return &Store{users: users}
}

// List returns the user's overrides.
func (s *Store) List(username string) ([]model.Event, error) {
	var out []model.Event
	err := s.users.View(username, func(cfg *userstore.UserConfig) error {
		out = append(out, cfg.CustomEvents...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Add appends a new override. No hash is assigned: a freshly authored
// event has no provenance and can never supersede a cached shift.
func (s *Store) Add(username string, start, end time.Time, description string) error {
	return s.users.Update(username, func(cfg *userstore.UserConfig) error {
		cfg.CustomEvents = append(cfg.CustomEvents, model.Event{
			Start:       start,
			End:         end,
			Description: description,
		})
		return nil
	})
}

// Update edits the override matching (origStart, origEnd) in place. When
// no override matches but a cached event does, the cached event is
// materialized as a new override with the new span, keeping its
// description and content hash so dedup still recognizes it. When
// neither matches the call is a logged no-op.
func (s *Store) Update(username string, origStart, origEnd, newStart, newEnd time.Time) (UpdateOutcome, error) {
	outcome := UpdateNoMatch
	err := s.users.Update(username, func(cfg *userstore.UserConfig) error {
		for i := range cfg.CustomEvents {
			if cfg.CustomEvents[i].MatchesSpan(origStart, origEnd) {
				cfg.CustomEvents[i].Start = newStart
				cfg.CustomEvents[i].End = newEnd
				outcome = UpdatedOverride
				return nil
			}
		}
		for _, cached := range cfg.CachedEvents {
			if cached.MatchesSpan(origStart, origEnd) {
				cfg.CustomEvents = append(cfg.CustomEvents, model.Event{
					Start:       newStart,
					End:         newEnd,
					Description: cached.Description,
					ContentHash: cached.ContentHash,
				})
				outcome = MaterializedCached
				return nil
			}
		}
		slog.Info("update matched no event, nothing to do",
			logging.User(username), slog.Time("orig_start", origStart), slog.Time("orig_end", origEnd))
		return nil
	})
	return outcome, err
}

// Remove deletes any override matching (start, end) exactly. Removing a
// non-existent override is a no-op, not an error.
func (s *Store) Remove(username string, start, end time.Time) error {
	return s.users.Update(username, func(cfg *userstore.UserConfig) error {
		kept := cfg.CustomEvents[:0]
		for _, ev := range cfg.CustomEvents {
			if !ev.MatchesSpan(start, end) {
				kept = append(kept, ev)
			}
		}
		if len(kept) == len(cfg.CustomEvents) {
			slog.Info("remove matched no override, nothing to do",
				logging.User(username), slog.Time("start", start), slog.Time("end", end))
		}
		cfg.CustomEvents = kept
		return nil
	})
}

// Purge drops expired overrides from the user's record. It runs before
// every reconciliation and is also exposed as a maintenance operation.
func (s *Store) Purge(username string, now time.Time) error {
	return s.users.Update(username, func(cfg *userstore.UserConfig) error {
		before := len(cfg.CustomEvents)
		cfg.CustomEvents = PurgeExpired(cfg.CustomEvents, now)
		if dropped := before - len(cfg.CustomEvents); dropped > 0 {
			slog.Info("purged old custom events", logging.User(username), slog.Int(logging.KeyCount, dropped))
		}
		return nil
	})
}

// PurgeExpired returns the overrides that are still current: everything
// starting before the first day of the previous calendar month is
// dropped. time.Date normalizes month zero, so the boundary behaves
// across the January wrap.
func PurgeExpired(evs []model.Event, now time.Time) []model.Event {
	cutoff := time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, now.Location())

	kept := make([]model.Event, 0, len(evs))
	for _, ev := range evs {
		if ev.Start.Before(cutoff) {
			continue
		}
		kept = append(kept, ev)
	}
	return kept
}
