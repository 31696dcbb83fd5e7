package event

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSeverity_Canonicalization(t *testing.T) {
	cases := map[string]Severity{
		"1": SeverityLow, "low": SeverityLow, "info": SeverityLow,
		"2": SeverityMedium, "medium": SeverityMedium, "warn": SeverityMedium,
		"3": SeverityHigh, "high": SeverityHigh, "error": SeverityHigh,
		"4": SeverityCritical, "critical": SeverityCritical, "fatal": SeverityCritical,
		"bogus": SeverityLow,
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeSeverity(raw), "raw=%q", raw)
	}
}

func TestNormalizeFileLogSeverity(t *testing.T) {
	assert.Equal(t, SeverityHigh, NormalizeFileLogSeverity("2024-01-01 ERROR disk full"))
	assert.Equal(t, SeverityHigh, NormalizeFileLogSeverity("FATAL: unrecoverable"))
	assert.Equal(t, SeverityMedium, NormalizeFileLogSeverity("WARN: retrying"))
	assert.Equal(t, SeverityLow, NormalizeFileLogSeverity("INFO: started"))
	assert.Equal(t, SeverityLow, NormalizeFileLogSeverity("nothing special"))
}

func TestNormalizeOsEventSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, NormalizeOsEventSeverity(1))
	assert.Equal(t, SeverityHigh, NormalizeOsEventSeverity(2))
	assert.Equal(t, SeverityMedium, NormalizeOsEventSeverity(3))
	assert.Equal(t, SeverityLow, NormalizeOsEventSeverity(4))
	assert.Equal(t, SeverityLow, NormalizeOsEventSeverity(5))
	assert.Equal(t, SeverityMedium, NormalizeOsEventSeverity(99))
}

func TestNormalizeSyslogSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, NormalizeSyslogSeverity(0))
	assert.Equal(t, SeverityCritical, NormalizeSyslogSeverity(2))
	assert.Equal(t, SeverityHigh, NormalizeSyslogSeverity(3))
	assert.Equal(t, SeverityMedium, NormalizeSyslogSeverity(4))
	assert.Equal(t, SeverityLow, NormalizeSyslogSeverity(5))
	assert.Equal(t, SeverityLow, NormalizeSyslogSeverity(7))
}

func TestClampDescription(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, ClampDescription(short))

	long := strings.Repeat("a", 600)
	clamped := ClampDescription(long)
	assert.Equal(t, descriptionLimit, len([]rune(clamped)))
	assert.True(t, strings.HasSuffix(clamped, "…"))
}

func TestNormalizeIP(t *testing.T) {
	assert.Equal(t, "192.168.1.1", NormalizeIP("192.168.1.1"))
	assert.Equal(t, "", NormalizeIP("not-an-ip"))
	assert.Equal(t, "", NormalizeIP("::1"), "only dotted-quad IPv4 is normalized")
}

func TestExtractIPs(t *testing.T) {
	src, dst := ExtractIPs("connection from 10.0.0.1 to 10.0.0.2 refused")
	assert.Equal(t, "10.0.0.1", src)
	assert.Equal(t, "10.0.0.2", dst)

	src, dst = ExtractIPs("no addresses here")
	assert.Equal(t, "", src)
	assert.Equal(t, "", dst)

	src, dst = ExtractIPs("single 172.16.0.5 address")
	assert.Equal(t, "172.16.0.5", src)
	assert.Equal(t, "", dst)
}

func TestExtractTimestamp(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	ts, ok := ExtractTimestamp("2026-07-30T10:11:12Z some payload", now)
	require.True(t, ok)
	assert.Equal(t, 2026, ts.Year())

	ts, ok = ExtractTimestamp("2026-07-30 10:11:12 disk full", now)
	require.True(t, ok)
	assert.Equal(t, time.Month(7), ts.Month())

	ts, ok = ExtractTimestamp("07/30/2026 10:11:12 disk full", now)
	require.True(t, ok)
	assert.Equal(t, 30, ts.Day())

	ts, ok = ExtractTimestamp("Oct 11 22:14:15 myhost sshd: accepted", now)
	require.True(t, ok)
	assert.Equal(t, time.October, ts.Month())
	assert.Equal(t, 11, ts.Day())

	_, ok = ExtractTimestamp("no timestamp at all here", now)
	assert.False(t, ok)
}
