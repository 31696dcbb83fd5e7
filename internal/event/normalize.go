package event

import (
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// NormalizeSeverity maps a source-specific raw level onto the four
// normalized severities per the §6 canonicalization table. Unknown values
// fall back to Low rather than failing — extractors are total.
func NormalizeSeverity(raw string) Severity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "low", "info", "information":
		return SeverityLow
	case "2", "medium", "warn", "warning":
		return SeverityMedium
	case "3", "high", "error":
		return SeverityHigh
	case "4", "critical", "fatal":
		return SeverityCritical
	default:
		return SeverityLow
	}
}

// NormalizeFileLogSeverity maps the keyword found in a tailed log line per
// the FileLog row of the §6 table.
func NormalizeFileLogSeverity(line string) Severity {
	upper := strings.ToUpper(line)
	switch {
	case strings.Contains(upper, "ERROR"), strings.Contains(upper, "FATAL"):
		return SeverityHigh
	case strings.Contains(upper, "WARN"):
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// NormalizeOsEventSeverity maps a host event log level (1-5) per §6.
func NormalizeOsEventSeverity(level int) Severity {
	switch level {
	case 1:
		return SeverityCritical
	case 2:
		return SeverityHigh
	case 3:
		return SeverityMedium
	case 4, 5:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// NormalizeSyslogSeverity maps priority%8 per §6.
func NormalizeSyslogSeverity(syslogSeverity int) Severity {
	switch syslogSeverity {
	case 0, 1, 2:
		return SeverityCritical
	case 3:
		return SeverityHigh
	case 4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ClampDescription trims text to at most 500 code points, appending an
// ellipsis when truncated. It never fails.
func ClampDescription(text string) string {
	if utf8.RuneCountInString(text) <= descriptionLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:descriptionLimit-1]) + "…"
}

var dottedQuadRE = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|[01]?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|[01]?\d?\d)\b`)

// NormalizeIP parses and canonicalizes a dotted-quad IPv4 string, returning
// "" when it does not parse as one. Never fails — only populates on success.
func NormalizeIP(text string) string {
	ip := net.ParseIP(strings.TrimSpace(text))
	if ip == nil {
		return ""
	}
	v4 := ip.To4()
	if v4 == nil {
		return ""
	}
	return v4.String()
}

// ExtractIPs scans text for dotted-quad addresses, returning the first two
// distinct matches as (sourceIP, destinationIP). Either or both may be "".
func ExtractIPs(text string) (sourceIP, destinationIP string) {
	matches := dottedQuadRE.FindAllString(text, -1)
	var found []string
	seen := make(map[string]bool)
	for _, m := range matches {
		ip := NormalizeIP(m)
		if ip == "" || seen[ip] {
			continue
		}
		seen[ip] = true
		found = append(found, ip)
		if len(found) == 2 {
			break
		}
	}
	switch len(found) {
	case 0:
		return "", ""
	case 1:
		return found[0], ""
	default:
		return found[0], found[1]
	}
}

// timestamp layouts tried, in order, by ExtractTimestamp.
var timestampLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"01/02/2006 15:04:05",
}

var rfc3164RE = regexp.MustCompile(`^([A-Z][a-z]{2})\s+(\d{1,2})\s+(\d{2}):(\d{2}):(\d{2})`)

// ExtractTimestamp tries, in order, ISO-8601, "YYYY-MM-DD HH:MM:SS",
// "MM/DD/YYYY HH:MM:SS", and RFC3164 "Mon _2 15:04:05". It never fails —
// callers fall back to receipt time when ok is false.
func ExtractTimestamp(text string, now time.Time) (ts time.Time, ok bool) {
	trimmed := strings.TrimSpace(text)
	for _, layout := range timestampLayouts {
		// Match against the prefix of the text since the timestamp is
		// usually followed by other fields: first the layout-length prefix,
		// then the leading space-separated fields the layout spans (which
		// covers a "Z" zone or fractional seconds, whose width differs from
		// the layout's).
		candidateLen := len(layout)
		if candidateLen > len(trimmed) {
			candidateLen = len(trimmed)
		}
		if t, err := time.Parse(layout, trimmed[:candidateLen]); err == nil {
			return t.UTC(), true
		}
		n := strings.Count(layout, " ") + 1
		if fields := strings.SplitN(trimmed, " ", n+1); len(fields) >= n {
			if t, err := time.Parse(layout, strings.Join(fields[:n], " ")); err == nil {
				return t.UTC(), true
			}
		}
	}
	if m := rfc3164RE.FindStringSubmatch(trimmed); m != nil {
		month := m[1]
		day, _ := strconv.Atoi(m[2])
		hour, _ := strconv.Atoi(m[3])
		min, _ := strconv.Atoi(m[4])
		sec, _ := strconv.Atoi(m[5])
		layout := "Jan 2 15:04:05 2006"
		candidate := month + " " + strconv.Itoa(day) + " " +
			pad2(hour) + ":" + pad2(min) + ":" + pad2(sec) + " " + strconv.Itoa(now.Year())
		if t, err := time.Parse(layout, candidate); err == nil {
			if t.After(now) {
				t = t.AddDate(-1, 0, 0)
			}
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
