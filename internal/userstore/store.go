// Package userstore persists one record per registered user and enforces
// the per-user exclusive-access discipline every mutation path goes
// through. Records are YAML files named <username>.yaml under the store
// directory, written atomically so an interrupted write never destroys
// the previous valid state.
package userstore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"roostersync/internal/config"
	"roostersync/internal/logging"
	"roostersync/internal/model"
)

// ErrNotFound is returned when no record exists for the requested user.
var ErrNotFound = errors.New("user not found")

// ErrExists is returned by Register when the username is already taken.
var ErrExists = errors.New("user already exists")

// UserConfig is the durable per-user record.
type UserConfig struct {
	Username string `yaml:"username"`
	// Password is the provider credential. It is stored as entered and
	// must never appear in logs.
	Password string `yaml:"password"`

	// Summaries are the calendar labels; each produces one output file.
	Summaries []string `yaml:"summaries"`

	// Descriptions toggles the per-shift description lookup during
	// normalization. It costs one extra request per shift.
	Descriptions bool `yaml:"descriptions"`

	// RefreshSeconds is the polling period for the background refresh.
	RefreshSeconds int `yaml:"frequency"`

	// CachedEvents is the last successful normalization of remote data.
	// It is replaced wholesale on every successful fetch.
	CachedEvents []model.Event `yaml:"events"`

	// CustomEvents are user-authored overrides. A fetch never touches them.
	CustomEvents []model.Event `yaml:"custom_events"`
}

// Normalize fills defaults for records written by older versions.
func (u *UserConfig) Normalize() {
	if u.RefreshSeconds <= 0 {
		u.RefreshSeconds = 3600
	}
	if len(u.Summaries) == 0 {
		u.Summaries = []string{"Werken"}
	}
}

// Store manages the per-user record files. All read-modify-write cycles
// go through Update, which holds the user's lock for the whole cycle and
// re-reads the file from disk, so concurrent writers (background refresh
// vs. foreground event edits) never lose each other's changes. Locks are
// per user; two different users never contend.
type Store struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Store rooted at dir.
func New(dir string) *Store {
	return &Store{
		dir:   dir,
		locks: make(map[string]*sync.Mutex),
	}
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) userLock(username string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[username]
	if !ok {
		l = &sync.Mutex{}
		s.locks[username] = l
	}
	return l
}

func (s *Store) path(username string) string {
	return filepath.Join(s.dir, username+".yaml")
}

// Usernames scans the store directory and returns every registered
// username, one per record file.
func (s *Store) Usernames() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	return names, nil
}

// load reads and unmarshals a record without taking the lock. Callers
// must hold the user's lock.
func (s *Store) load(username string) (*UserConfig, error) {
	data, err := os.ReadFile(s.path(username))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, username)
		}
		return nil, err
	}

	var cfg UserConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode user record %s: %w", username, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// save marshals and atomically writes a record. Callers must hold the
// user's lock.
func (s *Store) save(username string, cfg *UserConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode user record %s: %w", username, err)
	}
	if err := config.WriteFileAtomic(s.path(username), data, 0o600); err != nil {
		return fmt.Errorf("write user record %s: %w", username, err)
	}
	return nil
}

// Load returns a copy of the user's record.
func (s *Store) Load(username string) (*UserConfig, error) {
	l := s.userLock(username)
	l.Lock()
	defer l.Unlock()
	return s.load(username)
}

// View runs fn with the user's record under the lock, without writing.
func (s *Store) View(username string, fn func(cfg *UserConfig) error) error {
	l := s.userLock(username)
	l.Lock()
	defer l.Unlock()

	cfg, err := s.load(username)
	if err != nil {
		return err
	}
	return fn(cfg)
}

// Update runs fn as a locked read-modify-write cycle: the record is
// re-read from disk, mutated by fn, and written back atomically before
// the lock is released. If fn returns an error nothing is written and
// the previous on-disk state remains intact.
func (s *Store) Update(username string, fn func(cfg *UserConfig) error) error {
	l := s.userLock(username)
	l.Lock()
	defer l.Unlock()

	cfg, err := s.load(username)
	if err != nil {
		return err
	}
	if err := fn(cfg); err != nil {
		return err
	}
	return s.save(username, cfg)
}

// Register creates a new record. The username must be usable as a file
// stem; path separators are rejected.
func (s *Store) Register(cfg *UserConfig) error {
	if cfg == nil || cfg.Username == "" {
		return errors.New("username is empty")
	}
	if strings.ContainsAny(cfg.Username, "/\\") || cfg.Username != filepath.Base(cfg.Username) {
		return fmt.Errorf("invalid username %q", cfg.Username)
	}

	l := s.userLock(cfg.Username)
	l.Lock()
	defer l.Unlock()

	if _, err := os.Stat(s.path(cfg.Username)); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, cfg.Username)
	}

	cfg.Normalize()
	if err := s.save(cfg.Username, cfg); err != nil {
		return err
	}
	slog.Info("user registered", logging.User(cfg.Username), slog.Int("summaries", len(cfg.Summaries)))
	return nil
}
