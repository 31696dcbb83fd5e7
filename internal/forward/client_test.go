package forward

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siemagent/agent/internal/config"
	"github.com/siemagent/agent/internal/event"
	"github.com/siemagent/agent/internal/health"
)

type fakeReporter struct {
	successes int
	failures  int
}

func (f *fakeReporter) ObserveSuccess() { f.successes++ }
func (f *fakeReporter) ObserveFailure() { f.failures++ }

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *fakeReporter) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	reporter := &fakeReporter{}
	c := New(config.ForwarderConfig{APIBaseURL: srv.URL, APIKey: "secret-key"}, "agent-1", "1.0.0", reporter, nil)
	t.Cleanup(c.Close)
	return c, reporter
}

func TestClient_ForwardOne_SendsAuthAndHeaders(t *testing.T) {
	var gotAuth, gotAgentID, gotAgentVersion, gotUA string
	client, reporter := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAgentID = r.Header.Get("X-Agent-Id")
		gotAgentVersion = r.Header.Get("X-Agent-Version")
		gotUA = r.Header.Get("User-Agent")
		assert.Equal(t, "/api/siem/events", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	e := event.New("host-1", event.TypeFileLog, time.Now())
	err := client.ForwardOne(context.Background(), e)
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, "agent-1", gotAgentID)
	assert.Equal(t, "1.0.0", gotAgentVersion)
	assert.Equal(t, "SiemAgent/1.0.0", gotUA)
	assert.Equal(t, 1, reporter.successes)
	assert.Equal(t, 0, reporter.failures)
}

func TestClient_ForwardBatch_SerializesArray(t *testing.T) {
	var receivedCount int
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/siem/events/batch", r.URL.Path)
		var events []event.Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&events))
		receivedCount = len(events)
		w.WriteHeader(http.StatusOK)
	})

	events := []event.Event{
		event.New("host-1", event.TypeFileLog, time.Now()),
		event.New("host-1", event.TypeFileLog, time.Now()),
	}
	require.NoError(t, client.ForwardBatch(context.Background(), events))
	assert.Equal(t, 2, receivedCount)
}

func TestClient_NonTwoXX_ReportsFailure(t *testing.T) {
	client, reporter := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := client.ForwardOne(context.Background(), event.New("host-1", event.TypeFileLog, time.Now()))
	require.Error(t, err)
	assert.Equal(t, 1, reporter.failures)
	assert.Equal(t, 0, reporter.successes)
}

func TestClient_SendHealth_PostsToAgentPath(t *testing.T) {
	var gotPath string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	})

	err := client.SendHealth(context.Background(), health.Snapshot{Status: health.StatusRunning})
	require.NoError(t, err)
	assert.Equal(t, "/api/siem/agents/agent-1/health", gotPath)
}

func TestClient_FetchConfig_ParsesResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/siem/agents/agent-1/configuration", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(config.AgentConfig{AgentID: "agent-1", BatchSize: 250})
	})

	cfg, err := client.FetchConfig(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 250, cfg.BatchSize)
}

func TestClient_Probe_ReportsSupervisorTransitions(t *testing.T) {
	client, reporter := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.Probe(context.Background()))
	assert.Equal(t, 1, reporter.successes)
}
