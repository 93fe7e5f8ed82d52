package userstore

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roostersync/internal/model"
)

func testUser() *UserConfig {
	return &UserConfig{
		Username:       "jan",
		Password:       "geheim",
		Summaries:      []string{"Werken", "Bijbaan"},
		RefreshSeconds: 1800,
	}
}

func TestRegisterAndLoadRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Register(testUser()))

	cfg, err := s.Load("jan")
	require.NoError(t, err)
	assert.Equal(t, "jan", cfg.Username)
	assert.Equal(t, "geheim", cfg.Password)
	assert.Equal(t, []string{"Werken", "Bijbaan"}, cfg.Summaries)
	assert.Equal(t, 1800, cfg.RefreshSeconds)
}

func TestRegisterDuplicate(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Register(testUser()))

	err := s.Register(testUser())
	assert.ErrorIs(t, err, ErrExists)
}

func TestRegisterRejectsPathyUsernames(t *testing.T) {
	s := New(t.TempDir())

	for _, name := range []string{"", "../jan", "a/b", `a\b`} {
		cfg := testUser()
		cfg.Username = name
		assert.Error(t, s.Register(cfg), "username %q must be rejected", name)
	}
}

func TestLoadUnknownUser(t *testing.T) {
	s := New(t.TempDir())

	_, err := s.Load("nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUsernames(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	names, err := s.Usernames()
	require.NoError(t, err)
	assert.Empty(t, names, "missing directory means no users, not an error")

	require.NoError(t, s.Register(testUser()))
	piet := testUser()
	piet.Username = "piet"
	require.NoError(t, s.Register(piet))

	// Stray files are not user records.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	names, err = s.Usernames()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"jan", "piet"}, names)
}

func TestUpdatePersists(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Register(testUser()))

	ev := model.Event{
		Start: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 10, 17, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.Update("jan", func(cfg *UserConfig) error {
		cfg.CachedEvents = []model.Event{ev}
		return nil
	}))

	cfg, err := s.Load("jan")
	require.NoError(t, err)
	require.Len(t, cfg.CachedEvents, 1)
	assert.True(t, cfg.CachedEvents[0].MatchesSpan(ev.Start, ev.End))
}

func TestUpdateErrorLeavesPreviousStateIntact(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Register(testUser()))

	sentinel := errors.New("mutation failed")
	err := s.Update("jan", func(cfg *UserConfig) error {
		cfg.Password = "clobbered"
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	cfg, err := s.Load("jan")
	require.NoError(t, err)
	assert.Equal(t, "geheim", cfg.Password, "a failed update must not be written")
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := &UserConfig{Username: "jan"}
	cfg.Normalize()

	assert.Equal(t, 3600, cfg.RefreshSeconds)
	assert.Equal(t, []string{"Werken"}, cfg.Summaries)
}

// TestConcurrentRefreshAndAdd interleaves the two real write paths: the
// background refresh replacing the cached set and foreground edits
// appending overrides. Neither write may be lost.
func TestConcurrentRefreshAndAdd(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Register(testUser()))

	const rounds = 50

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			day := i%27 + 1
			ev := model.Event{
				Start: time.Date(2024, 3, day, 9, 0, 0, 0, time.UTC),
				End:   time.Date(2024, 3, day, 17, 0, 0, 0, time.UTC),
			}
			ev.ContentHash = model.ContentHashFor(ev.Start, ev.End)
			_ = s.Update("jan", func(cfg *UserConfig) error {
				cfg.CachedEvents = []model.Event{ev}
				return nil
			})
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			start := time.Date(2024, 4, 1, i, 0, 0, 0, time.UTC)
			_ = s.Update("jan", func(cfg *UserConfig) error {
				cfg.CustomEvents = append(cfg.CustomEvents, model.Event{Start: start, End: start.Add(time.Hour)})
				return nil
			})
		}
	}()

	wg.Wait()

	cfg, err := s.Load("jan")
	require.NoError(t, err)
	assert.Len(t, cfg.CustomEvents, rounds, "every foreground add must survive the refresh churn")
	assert.Len(t, cfg.CachedEvents, 1, "the cached set is replaced wholesale")
}
