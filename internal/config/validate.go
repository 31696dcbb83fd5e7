package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ValidationError describes one field that failed validation, mirroring the
// teacher's structured validator error reporting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning is a non-fatal observation surfaced alongside errors —
// e.g. a source whose type is unrecognized is disabled rather than
// rejecting the whole document.
type ValidationWarning struct {
	Field   string
	Message string
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Errors          []ValidationError
	Warnings        []ValidationWarning
	RestartRequired bool
}

// OK reports whether the configuration may be applied.
func (r ValidationResult) OK() bool {
	return len(r.Errors) == 0
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// knownSourceTypes is the closed set of source runner types the registry
// recognizes (§4.3).
var knownSourceTypes = map[string]bool{
	"FileLog": true,
	"OsEvent": true,
	"Syslog":  true,
}

// Validate runs struct-tag validation plus the cross-field and source-type
// checks described in §3/§4.8, and computes RestartRequired by diffing
// against previous (which may be nil for the very first apply).
func Validate(c AgentConfig, previous *AgentConfig) ValidationResult {
	result := ValidationResult{}

	if err := structValidator.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				result.Errors = append(result.Errors, ValidationError{
					Field:   fe.Namespace(),
					Message: fe.Tag(),
				})
			}
		} else {
			result.Errors = append(result.Errors, ValidationError{Field: "<root>", Message: err.Error()})
		}
	}

	seenNames := make(map[string]bool)
	for i, src := range c.Sources {
		if seenNames[src.Name] {
			result.Errors = append(result.Errors, ValidationError{
				Field:   fmt.Sprintf("Sources[%d].Name", i),
				Message: "duplicate source name " + src.Name,
			})
		}
		seenNames[src.Name] = true

		if !knownSourceTypes[src.Type] {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Field:   fmt.Sprintf("Sources[%d].Type", i),
				Message: "unrecognized source type " + src.Type + "; source will be disabled",
			})
		}
	}

	if previous != nil {
		result.RestartRequired = c.Forwarder.APIBaseURL != previous.Forwarder.APIBaseURL ||
			c.Forwarder.APIKey != previous.Forwarder.APIKey ||
			c.HealthCheckIntervalSec != previous.HealthCheckIntervalSec ||
			c.ConfigRefreshIntervalSec != previous.ConfigRefreshIntervalSec
	}

	return result
}
