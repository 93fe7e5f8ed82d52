// Package model holds the central event type shared by the normalizer,
// the custom event store, the reconciler and the emitter.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// hashLayout is the time format used as hash input. Second precision,
// no zone offset: a shift's identity is its local wall-clock span, so
// re-fetching identical remote data yields identical hashes across runs
// and machines.
const hashLayout = "2006-01-02T15:04:05"

// Event is a single shift, either derived from the remote schedule
// (cached) or authored by the user (custom).
type Event struct {
	Start time.Time `yaml:"start" json:"start"`
	End   time.Time `yaml:"end" json:"end"`

	// Summary is the calendar label. It is empty in persisted state and
	// only assigned during per-summary fan-out.
	Summary string `yaml:"-" json:"summary,omitempty"`

	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// ContentHash identifies the logical shift. Present on cached
	// events; present on a custom event only when it was materialized
	// from a cached event it overrides. Two events with equal non-empty
	// hashes are the same logical shift.
	ContentHash string `yaml:"content_hash,omitempty" json:"contentHash,omitempty"`
}

// ContentHashFor computes the stable digest identifying a shift span.
func ContentHashFor(start, end time.Time) string {
	sum := sha256.Sum256([]byte(start.Format(hashLayout) + "|" + end.Format(hashLayout)))
	return hex.EncodeToString(sum[:16])
}

// MatchesSpan reports whether the event covers exactly the given span.
// This is the structural match used for direct remove/update addressing;
// hash-based supersession is a separate mechanism.
func (e Event) MatchesSpan(start, end time.Time) bool {
	return e.Start.Equal(start) && e.End.Equal(end)
}
