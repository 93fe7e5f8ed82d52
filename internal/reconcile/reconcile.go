// Package reconcile merges the cached remote schedule with the user's
// overrides into the final per-summary event sets.
package reconcile

import "roostersync/internal/model"

// Merge produces the deduplicated event set: cached events first, in
// order, skipping any whose content hash is claimed by an override; then
// every override, in order. An override with no hash is purely additive
// and never displaces a cached event, whatever its time span.
func Merge(cached, custom []model.Event) []model.Event {
	overridden := make(map[string]struct{}, len(custom))
	for _, ev := range custom {
		if ev.ContentHash != "" {
			overridden[ev.ContentHash] = struct{}{}
		}
	}

	merged := make([]model.Event, 0, len(cached)+len(custom))
	for _, ev := range cached {
		if ev.ContentHash != "" {
			if _, ok := overridden[ev.ContentHash]; ok {
				continue
			}
		}
		merged = append(merged, ev)
	}
	merged = append(merged, custom...)
	return merged
}

// FanOut clones the merged set once per summary label, applying the
// label to every clone. The clones share content and ordering and differ
// only by title, so one physical shift can appear under several named
// calendars at once. Ordering is stable, which keeps emission
// byte-idempotent.
func FanOut(merged []model.Event, summaries []string) [][]model.Event {
	out := make([][]model.Event, len(summaries))
	for i, summary := range summaries {
		set := make([]model.Event, len(merged))
		copy(set, merged)
		for j := range set {
			set[j].Summary = summary
		}
		out[i] = set
	}
	return out
}
