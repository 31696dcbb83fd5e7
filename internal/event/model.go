// Package event defines the normalized record produced by source runners and
// consumed by the dispatcher, queue, and forwarder.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Severity is the normalized severity level shared by every source.
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// Valid reports whether s is one of the four recognized severity levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// Type tags the source runner that produced an event.
type Type string

const (
	TypeFileLog Type = "FileLog"
	TypeOsEvent Type = "OsEvent"
	TypeSyslog  Type = "Syslog"
)

// descriptionLimit is the clampDescription code-point budget from §4.1.
const descriptionLimit = 500

// Event is the normalized record. Once enqueued in the durable queue its ID
// is immutable and uniquely identifies it for removal.
type Event struct {
	ID            uuid.UUID         `json:"id"`
	Timestamp     time.Time         `json:"timestamp"`
	SourceSystem  string            `json:"sourceSystem"`
	EventType     Type              `json:"eventType"`
	Severity      Severity          `json:"severity"`
	Description   string            `json:"description"`
	SourceIP      string            `json:"sourceIp,omitempty"`
	DestinationIP string            `json:"destinationIp,omitempty"`
	RawPayload    string            `json:"rawPayload"`
	CustomFields  map[string]any    `json:"customFields,omitempty"`

	// Envelope fields, set at forward time: AgentID/AgentVersion by the
	// dispatcher, RetryCount/Cached by the drainer for queued events.
	AgentID      string `json:"agentId"`
	AgentVersion string `json:"agentVersion"`
	RetryCount   int    `json:"retryCount"`
	Cached       bool   `json:"cached"`
}

// New builds an Event with a fresh identifier and the given receipt time as
// fallback timestamp; callers overwrite Timestamp when extraction succeeds.
func New(sourceSystem string, eventType Type, receivedAt time.Time) Event {
	return Event{
		ID:           uuid.New(),
		Timestamp:    receivedAt.UTC(),
		SourceSystem: sourceSystem,
		EventType:    eventType,
		Severity:     SeverityLow,
		CustomFields: make(map[string]any),
	}
}
