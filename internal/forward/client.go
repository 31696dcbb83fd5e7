// Package forward implements the HTTPS client that posts normalized events,
// health snapshots, and configuration pulls to the remote collector, per
// §4.4. Every call is synchronous, safe for concurrent use from any
// goroutine, and never retries internally — retry is the queue/drainer's
// responsibility (§4.6).
package forward

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/siemagent/agent/internal/config"
	"github.com/siemagent/agent/internal/event"
	"github.com/siemagent/agent/internal/health"
)

// ConnectivityReporter receives the pass/fail outcome of every outbound
// call, so the connectivity supervisor can drive its state machine (§4.5)
// without the forwarder needing to know about supervisor internals.
type ConnectivityReporter interface {
	ObserveSuccess()
	ObserveFailure()
}

const (
	clientTimeout = 30 * time.Second
	userAgent     = "SiemAgent/"
)

// Client is the forwarder's HTTPS client, built the way the teacher's
// WebhookHTTPClient configures its *http.Client (internal/infrastructure/
// publishing/webhook_client.go): connection pooling, enforced TLS 1.2+,
// explicit dial/handshake/response-header timeouts.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	agentID      string
	agentVersion string
	logger       *slog.Logger
	reporter     ConnectivityReporter
}

// New builds a Client for the given forwarder settings.
func New(fwd config.ForwarderConfig, agentID, agentVersion string, reporter ConnectivityReporter, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: clientTimeout,
			Transport: &http.Transport{
				TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       30 * time.Second,
				ForceAttemptHTTP2:     true,
				DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
				TLSHandshakeTimeout:   5 * time.Second,
				ResponseHeaderTimeout: clientTimeout,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		baseURL:      fwd.APIBaseURL,
		apiKey:       fwd.APIKey,
		agentID:      agentID,
		agentVersion: agentVersion,
		logger:       logger,
		reporter:     reporter,
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Agent-Id", c.agentID)
	req.Header.Set("X-Agent-Version", c.agentVersion)
	req.Header.Set("User-Agent", userAgent+c.agentVersion)
	return req, nil
}

// do executes req and reports the outcome to the connectivity reporter:
// 2xx is success, anything else (transport error or non-2xx) is failure,
// per §4.4/§4.5.
func (c *Client) do(req *http.Request) (*http.Response, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.reportFailure()
		return nil, nil, fmt.Errorf("transport error calling %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		c.reportFailure()
		return resp, nil, fmt.Errorf("read response body from %s: %w", req.URL.Path, readErr)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.reportSuccess()
		return resp, body, nil
	}
	c.reportFailure()
	return resp, body, fmt.Errorf("%s returned HTTP %d: %s", req.URL.Path, resp.StatusCode, truncate(body, 200))
}

func (c *Client) reportSuccess() {
	if c.reporter != nil {
		c.reporter.ObserveSuccess()
	}
}

func (c *Client) reportFailure() {
	if c.reporter != nil {
		c.reporter.ObserveFailure()
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "…"
}

// ForwardOne posts a single normalized event.
func (c *Client) ForwardOne(ctx context.Context, e event.Event) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/siem/events", e)
	if err != nil {
		return err
	}
	_, _, err = c.do(req)
	return err
}

// ForwardBatch posts a batch of normalized events.
func (c *Client) ForwardBatch(ctx context.Context, events []event.Event) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/siem/events/batch", events)
	if err != nil {
		return err
	}
	_, _, err = c.do(req)
	return err
}

// SendHealth posts the agent's current health snapshot.
func (c *Client) SendHealth(ctx context.Context, snapshot health.Snapshot) error {
	path := fmt.Sprintf("/api/siem/agents/%s/health", c.agentID)
	req, err := c.newRequest(ctx, http.MethodPost, path, snapshot)
	if err != nil {
		return err
	}
	_, _, err = c.do(req)
	return err
}

// FetchConfig pulls the authoritative configuration for this agent.
func (c *Client) FetchConfig(ctx context.Context) (*config.AgentConfig, error) {
	path := fmt.Sprintf("/api/siem/agents/%s/configuration", c.agentID)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	_, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var cfg config.AgentConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, fmt.Errorf("parse fetched config: %w", err)
	}
	return &cfg, nil
}

// Probe checks remote liveness.
func (c *Client) Probe(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	_, _, err = c.do(req)
	return err
}

// Close releases idle connections.
func (c *Client) Close() {
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
