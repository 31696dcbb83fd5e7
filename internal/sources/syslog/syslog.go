// Package syslog implements the Syslog source runner of §4.3: a UDP or TCP
// listener on a configured port (default 514), parsing RFC3164-style
// framing (PRI, timestamp, hostname, tag) and mapping priority to
// facility/severity per §6. RFC5424's version, app-name, procid, msgid and
// structured-data fields are not decoded separately. The TCP
// accept loop is rate-limited with golang.org/x/time/rate to bound the
// cost of a connection-flood against a single listener, the same library
// the retrieved pack's sync worker uses for outbound throttling.
package syslog

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/siemagent/agent/internal/config"
	"github.com/siemagent/agent/internal/event"
	"github.com/siemagent/agent/internal/health"
	"github.com/siemagent/agent/internal/metrics"
	"github.com/siemagent/agent/internal/sources"
)

func init() {
	sources.Register("Syslog", New)
}

const (
	defaultPort  = 514
	maxTCPLine   = 4096
	udpReadBytes = 64 * 1024
)

// Runner listens for syslog traffic on UDP or TCP.
type Runner struct {
	cfg      config.SourceConfig
	out      chan<- event.Event
	reporter *health.Reporter
	metrics  *metrics.Registry
	logger   *slog.Logger

	protocol string
	port     int
	limiter  *rate.Limiter

	mu       sync.Mutex
	udpConn  net.PacketConn
	tcpLis   net.Listener
	stopped  bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New builds a syslog Runner. Settings recognized: "protocol" ("udp" or
// "tcp", default "udp"), "port" (int, default 514).
func New(cfg config.SourceConfig, out chan<- event.Event, reporter *health.Reporter, reg *metrics.Registry, logger *slog.Logger) (sources.Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	protocol := "udp"
	if p, ok := cfg.Settings["protocol"].(string); ok && p != "" {
		protocol = strings.ToLower(p)
	}
	port := defaultPort
	if v, ok := cfg.Settings["port"]; ok {
		if n, ok := toInt(v); ok && n > 0 {
			port = n
		}
	}
	return &Runner{
		cfg:      cfg,
		out:      out,
		reporter: reporter,
		metrics:  reg,
		logger:   logger,
		protocol: protocol,
		port:     port,
		limiter:  rate.NewLimiter(rate.Limit(200), 50),
		stopCh:   make(chan struct{}),
	}, nil
}

func (r *Runner) Name() string  { return r.cfg.Name }
func (r *Runner) Type() string  { return "Syslog" }
func (r *Runner) Enabled() bool { return r.cfg.Enabled }

// Initialize binds the configured socket.
func (r *Runner) Initialize(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", r.port)
	switch r.protocol {
	case "tcp":
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("bind syslog tcp listener: %w", err)
		}
		r.tcpLis = lis
	default:
		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return fmt.Errorf("bind syslog udp listener: %w", err)
		}
		r.udpConn = conn
	}
	return nil
}

// Run services the bound socket until ctx is canceled.
func (r *Runner) Run(ctx context.Context) {
	switch r.protocol {
	case "tcp":
		r.runTCP(ctx)
	default:
		r.runUDP(ctx)
	}
}

// Stop idempotently closes the listener/connection, unblocking Run.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		if r.udpConn != nil {
			_ = r.udpConn.Close()
		}
		if r.tcpLis != nil {
			_ = r.tcpLis.Close()
		}
	})
}

func (r *Runner) runUDP(ctx context.Context) {
	buf := make([]byte, udpReadBytes)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		default:
		}

		_ = r.udpConn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, addr, err := r.udpConn.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			default:
				r.logger.Error("syslog: udp read failed", "error", err)
				return
			}
		}
		msg := string(buf[:n])
		r.handleMessage(ctx, msg, peerHost(addr), "udp")
	}
}

func (r *Runner) runTCP(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		default:
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return
		}

		conn, err := r.tcpLis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			default:
				r.logger.Error("syslog: tcp accept failed", "error", err)
				return
			}
		}
		go r.handleConn(ctx, conn)
	}
}

func (r *Runner) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	peer := peerHost(conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, maxTCPLine), maxTCPLine)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		default:
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		r.handleMessage(ctx, line, peer, "tcp")
	}
}

var priorityRE = regexp.MustCompile(`^<(\d{1,3})>`)

// parsed is the result of decoding one syslog message.
type parsed struct {
	facility       int
	syslogSeverity int
	hostname       string
	tag            string
	description    string
}

// parseMessage decodes the leading <priority> and attempts to recover
// timestamp/hostname/tag per RFC3164's header layout, falling back to the
// whole remainder as description when no tag is recognized. An RFC5424
// header is not recognized as such: its version digit is taken as the
// hostname.
func parseMessage(raw string, now time.Time) (parsed, time.Time, bool) {
	rest := raw
	facility, severity := 1, 5 // default: user-level notice, if no PRI present
	if m := priorityRE.FindStringSubmatch(raw); m != nil {
		pri, _ := strconv.Atoi(m[1])
		facility = pri / 8
		severity = pri % 8
		rest = raw[len(m[0]):]
	}

	ts, hasTS := event.ExtractTimestamp(rest, now)
	if hasTS {
		rest = stripLeadingTimestamp(rest)
	} else {
		ts = now
	}

	rest = strings.TrimSpace(rest)
	hostname, remainder := splitField(rest)
	tag, description := splitTag(remainder)

	return parsed{
		facility:       facility,
		syslogSeverity: severity,
		hostname:       hostname,
		tag:            tag,
		description:    description,
	}, ts, hasTS
}

func stripLeadingTimestamp(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02 15:04:05", "01/02/2006 15:04:05"} {
		if len(s) >= len(layout) {
			if _, err := time.Parse(layout, s[:len(layout)]); err == nil {
				return s[len(layout):]
			}
		}
		n := strings.Count(layout, " ") + 1
		if fields := strings.SplitN(s, " ", n+1); len(fields) >= n {
			if _, err := time.Parse(layout, strings.Join(fields[:n], " ")); err == nil {
				return strings.Join(fields[n:], " ")
			}
		}
	}
	if m := rfc3164TimestampRE.FindStringIndex(s); m != nil {
		return s[m[1]:]
	}
	return s
}

var rfc3164TimestampRE = regexp.MustCompile(`^[A-Z][a-z]{2}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2}`)

func splitField(s string) (field, rest string) {
	s = strings.TrimSpace(s)
	idx := strings.IndexByte(s, ' ')
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimSpace(s[idx+1:])
}

// splitTag recognizes a leading "tag:" or "tag[pid]:" prefix, per RFC3164's
// TAG field convention.
func splitTag(s string) (tag, description string) {
	idx := strings.IndexByte(s, ':')
	if idx < 0 || idx > 32 {
		return "", s
	}
	candidate := s[:idx]
	if strings.ContainsAny(candidate, " \t") {
		return "", s
	}
	return strings.TrimSuffix(candidate, "]"), strings.TrimSpace(s[idx+1:])
}

func (r *Runner) handleMessage(ctx context.Context, raw, peerHost, protocol string) {
	now := time.Now().UTC()
	p, ts, _ := parseMessage(raw, now)

	sourceSystem := p.hostname
	if sourceSystem == "" {
		sourceSystem = peerHost
	}

	e := event.New(sourceSystem, event.TypeSyslog, now)
	e.Timestamp = ts
	e.Description = event.ClampDescription(p.description)
	e.RawPayload = raw
	e.Severity = event.NormalizeSyslogSeverity(p.syslogSeverity)
	e.SourceIP, e.DestinationIP = event.ExtractIPs(raw)
	e.CustomFields["sourcePort"] = r.port
	e.CustomFields["protocol"] = protocol
	e.CustomFields["facility"] = p.facility
	e.CustomFields["syslogSeverity"] = p.syslogSeverity
	if p.tag != "" {
		e.CustomFields["tag"] = p.tag
	}

	r.reporter.IncCollected()
	if r.metrics != nil {
		r.metrics.Collected.Inc()
	}
	sources.Emit(ctx, r.cfg, e, r.out, r.reporter, r.metrics)
}

func peerHost(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
