package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digitalhuman/internal/api"
	"digitalhuman/internal/audit"
)

type fakePersona struct {
	id       string
	name     string
	sessions int
}

func (p fakePersona) ID() string          { return p.id }
func (p fakePersona) Name() string        { return p.name }
func (p fakePersona) ActiveSessions() int { return p.sessions }

type fakeConnections struct {
	active int
}

func (c fakeConnections) ActiveConnections() int { return c.active }

func newTestServer(t *testing.T, store audit.Store) *httptest.Server {
	t.Helper()
	s := api.New(
		fakePersona{id: "p-1", name: "Maya", sessions: 2},
		fakeConnections{active: 3},
		store,
		nil,
	)
	server := httptest.NewServer(s.Router())
	t.Cleanup(server.Close)
	return server
}

func getJSON(t *testing.T, url string, wantStatus int) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, wantStatus, resp.StatusCode)
	if wantStatus != http.StatusOK {
		return nil
	}

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealth(t *testing.T) {
	server := newTestServer(t, audit.NewMemoryStore())

	body := getJSON(t, server.URL+"/api/v1/health", http.StatusOK)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "digital-human", body["service"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestPersonaInfo(t *testing.T) {
	server := newTestServer(t, audit.NewMemoryStore())

	body := getJSON(t, server.URL+"/api/v1/persona/info", http.StatusOK)
	assert.Equal(t, "p-1", body["id"])
	assert.Equal(t, "Maya", body["name"])
	assert.Equal(t, float64(2), body["active_sessions"])
	assert.Equal(t, float64(3), body["active_connections"])
}

func TestModerationRecent(t *testing.T) {
	store := audit.NewMemoryStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, outcome := range []string{"allow", "warn", "ignore"} {
		require.NoError(t, store.Record(context.Background(), audit.Decision{
			EventID:   string(rune('a' + i)),
			SessionID: "s1",
			UserID:    "u1",
			Outcome:   outcome,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}
	server := newTestServer(t, store)

	body := getJSON(t, server.URL+"/api/v1/moderation/recent", http.StatusOK)
	decisions := body["decisions"].([]any)
	require.Len(t, decisions, 3)
	newest := decisions[0].(map[string]any)
	assert.Equal(t, "ignore", newest["outcome"], "newest decision comes first")

	body = getJSON(t, server.URL+"/api/v1/moderation/recent?limit=1", http.StatusOK)
	assert.Len(t, body["decisions"].([]any), 1)

	// A bogus limit falls back to the default instead of failing.
	body = getJSON(t, server.URL+"/api/v1/moderation/recent?limit=bananas", http.StatusOK)
	assert.Len(t, body["decisions"].([]any), 3)
}

func TestModerationStats(t *testing.T) {
	store := audit.NewMemoryStore()
	for _, outcome := range []string{"allow", "allow", "warn"} {
		require.NoError(t, store.Record(context.Background(), audit.Decision{
			EventID: outcome + time.Now().String(),
			Outcome: outcome,
		}))
	}
	server := newTestServer(t, store)

	body := getJSON(t, server.URL+"/api/v1/moderation/stats", http.StatusOK)
	outcomes := body["outcomes"].(map[string]any)
	assert.Equal(t, float64(2), outcomes["allow"])
	assert.Equal(t, float64(1), outcomes["warn"])
}

func TestModerationWithoutStoreIs404(t *testing.T) {
	server := newTestServer(t, nil)

	getJSON(t, server.URL+"/api/v1/moderation/recent", http.StatusNotFound)
	getJSON(t, server.URL+"/api/v1/moderation/stats", http.StatusNotFound)
}

func TestUnknownRouteIs404(t *testing.T) {
	server := newTestServer(t, audit.NewMemoryStore())

	getJSON(t, server.URL+"/api/v1/nope", http.StatusNotFound)
}

func TestMethodNotAllowed(t *testing.T) {
	server := newTestServer(t, audit.NewMemoryStore())

	resp, err := http.Post(server.URL+"/api/v1/health", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
