package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_IndependentInstancesDontCollide(t *testing.T) {
	require.NotPanics(t, func() {
		NewRegistry()
		NewRegistry()
	})
}

func TestRegistry_Handler_ExposesCounters(t *testing.T) {
	r := NewRegistry()
	r.Collected.Inc()
	r.Forwarded.Add(3)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "siemagent_events_collected_total 1")
	assert.Contains(t, body, "siemagent_events_forwarded_total 3")
}
