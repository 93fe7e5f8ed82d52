package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestContentHashForIsStable(t *testing.T) {
	start := time.Date(2024, 3, 10, 22, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 11, 6, 0, 0, 0, time.UTC)

	first := ContentHashFor(start, end)
	second := ContentHashFor(start, end)

	assert.NotEmpty(t, first)
	assert.Equal(t, first, second, "same span must always hash identically")
}

func TestContentHashForDistinguishesSpans(t *testing.T) {
	start := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

	a := ContentHashFor(start, start.Add(8*time.Hour))
	b := ContentHashFor(start, start.Add(9*time.Hour))

	assert.NotEqual(t, a, b)
}

func TestContentHashForIgnoresSubSecond(t *testing.T) {
	start := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(8 * time.Hour)

	assert.Equal(t,
		ContentHashFor(start, end),
		ContentHashFor(start.Add(500*time.Millisecond), end),
		"hash input is second precision")
}

func TestMatchesSpan(t *testing.T) {
	start := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(8 * time.Hour)
	ev := Event{Start: start, End: end}

	assert.True(t, ev.MatchesSpan(start, end))
	// Equal instants in another zone still match; Equal compares instants.
	assert.True(t, ev.MatchesSpan(start.In(time.FixedZone("CET", 3600)), end))
	assert.False(t, ev.MatchesSpan(start.Add(time.Minute), end))
	assert.False(t, ev.MatchesSpan(start, end.Add(time.Minute)))
}
