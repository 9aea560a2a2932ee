package domain

import "fmt"

// DiagnosticKind classifies a data-level problem that was tolerated rather
// than returned as an error.
type DiagnosticKind string

const (
	MalformedInput       DiagnosticKind = "MalformedInput"
	IncompatibleOverride DiagnosticKind = "IncompatibleOverride"
	PolicyViolation      DiagnosticKind = "PolicyViolation"
	StoreConflict        DiagnosticKind = "StoreConflict"
	MissingDependency    DiagnosticKind = "MissingDependency"
)

// Diagnostic is attached to resolver, decoder, engine, ingester and merger
// results so callers can see what was skipped and why.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	Subject string         `json:"subject,omitempty"` // offending path, segment, event or record
	Message string         `json:"message"`
}

func (d Diagnostic) String() string {
	if d.Subject == "" {
		return fmt.Sprintf("%s: %s", d.Kind, d.Message)
	}
	return fmt.Sprintf("%s [%s]: %s", d.Kind, d.Subject, d.Message)
}

// Diagnosef builds a Diagnostic with a formatted message.
func Diagnosef(kind DiagnosticKind, subject, format string, args ...any) Diagnostic {
	return Diagnostic{Kind: kind, Subject: subject, Message: fmt.Sprintf(format, args...)}
}
