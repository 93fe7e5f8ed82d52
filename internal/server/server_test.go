package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roostersync/internal/events"
	"roostersync/internal/ics"
	"roostersync/internal/model"
	"roostersync/internal/schedule"
	"roostersync/internal/sync"
	"roostersync/internal/userstore"
)

// newTestServer wires a server around a real engine with no provider
// client; only the rebuild paths run here, never a network fetch.
func newTestServer(t *testing.T) (*Server, *userstore.Store) {
	t.Helper()
	t.Setenv("TZ", "Europe/Amsterdam")

	users := userstore.New(t.TempDir())
	outDir := t.TempDir()
	engine := sync.NewEngine(users, events.NewStore(users), nil, schedule.NewNormalizer(), ics.NewEmitter(outDir))
	return NewServer(users, engine, outDir), users
}

func registerJan(t *testing.T, users *userstore.Store) {
	t.Helper()
	require.NoError(t, users.Register(&userstore.UserConfig{
		Username:       "jan",
		Password:       "geheim",
		Summaries:      []string{"Werken"},
		RefreshSeconds: 3600,
	}))
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegister(t *testing.T) {
	s, users := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/",
		`{"username":"jan","password":"geheim","summaries":["Werken","Bijbaan"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cfg, err := users.Load("jan")
	require.NoError(t, err)
	assert.Equal(t, []string{"Werken", "Bijbaan"}, cfg.Summaries)
}

func TestRegisterDuplicate(t *testing.T) {
	s, users := newTestServer(t)
	registerJan(t, users)

	rec := doJSON(t, s, http.MethodPost, "/", `{"username":"jan","password":"geheim"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterMissingFields(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/", `{"username":"jan"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin(t *testing.T) {
	s, users := newTestServer(t)
	registerJan(t, users)

	rec := doJSON(t, s, http.MethodPost, "/login", "jan")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/login", "nobody")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewEventAndList(t *testing.T) {
	s, users := newTestServer(t)
	registerJan(t, users)

	rec := doJSON(t, s, http.MethodPost, "/new",
		`{"username":"jan","start":"2024-03-20T09:00:00Z","end":"2024-03-20T17:00:00Z","description":"extra"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodGet, "/api/events?username=jan", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var evs []model.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &evs))
	require.Len(t, evs, 1)
	assert.Equal(t, "extra", evs[0].Description)
}

func TestNewEventRejectsInvertedSpan(t *testing.T) {
	s, users := newTestServer(t)
	registerJan(t, users)

	rec := doJSON(t, s, http.MethodPost, "/new",
		`{"username":"jan","start":"2024-03-20T17:00:00Z","end":"2024-03-20T09:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNewEventUnknownUser(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/new",
		`{"username":"nobody","start":"2024-03-20T09:00:00Z","end":"2024-03-20T17:00:00Z"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRemoveEvent(t *testing.T) {
	s, users := newTestServer(t)
	registerJan(t, users)

	body := `{"username":"jan","start":"2024-03-20T09:00:00Z","end":"2024-03-20T17:00:00Z"}`
	require.Equal(t, http.StatusOK, doJSON(t, s, http.MethodPost, "/new", body).Code)
	require.Equal(t, http.StatusOK, doJSON(t, s, http.MethodPost, "/remove", body).Code)

	cfg, err := users.Load("jan")
	require.NoError(t, err)
	assert.Empty(t, cfg.CustomEvents)
}

func TestUpdateEvent(t *testing.T) {
	s, users := newTestServer(t)
	registerJan(t, users)

	require.Equal(t, http.StatusOK, doJSON(t, s, http.MethodPost, "/new",
		`{"username":"jan","start":"2024-03-20T09:00:00Z","end":"2024-03-20T17:00:00Z"}`).Code)

	rec := doJSON(t, s, http.MethodPost, "/update",
		`{"username":"jan","origStart":"2024-03-20T09:00:00Z","origEnd":"2024-03-20T17:00:00Z",`+
			`"start":"2024-03-20T10:00:00Z","end":"2024-03-20T18:00:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"updated"`)

	cfg, err := users.Load("jan")
	require.NoError(t, err)
	require.Len(t, cfg.CustomEvents, 1)
	want := time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)
	assert.True(t, cfg.CustomEvents[0].Start.Equal(want))
}

func TestUpdateEventNoMatch(t *testing.T) {
	s, users := newTestServer(t)
	registerJan(t, users)

	rec := doJSON(t, s, http.MethodPost, "/update",
		`{"username":"jan","origStart":"2024-03-20T09:00:00Z","origEnd":"2024-03-20T17:00:00Z",`+
			`"start":"2024-03-20T10:00:00Z","end":"2024-03-20T18:00:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"no_match"`)
}

func TestMutationsRebuildCalendarSynchronously(t *testing.T) {
	s, users := newTestServer(t)
	registerJan(t, users)

	require.Equal(t, http.StatusOK, doJSON(t, s, http.MethodPost, "/new",
		`{"username":"jan","start":"2024-03-20T09:00:00Z","end":"2024-03-20T17:00:00Z","description":"extra"}`).Code)

	// Read-after-write: the calendar already reflects the add.
	rec := doJSON(t, s, http.MethodGet, "/jan.ics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "BEGIN:VEVENT")
	assert.Contains(t, rec.Body.String(), "DESCRIPTION:extra")
}

func TestCalendarFileServing(t *testing.T) {
	s, users := newTestServer(t)
	registerJan(t, users)

	for _, path := range []string{"/nope.ics", "/jan.yaml", "/"} {
		rec := doJSON(t, s, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, fmt.Sprintf("path %s", path))
	}
}
