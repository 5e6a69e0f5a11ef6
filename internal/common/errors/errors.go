// Package errors provides the coordinator's error-kind taxonomy (§7 of the
// design) plus a generic CoordError carrier that bridges an internal failure
// to the policy that governs it: fatal to the offending session, reported
// to the UI as an `error` event, or suppressed and logged.
package errors

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds named by the design's error-handling
// section.
type Kind string

const (
	// Protocol carries malformed/unrecognized wire input. Fatal to the
	// session that sent it.
	Protocol Kind = "PROTOCOL"
	// Parse carries a well-tagged message with missing/mistyped fields.
	// Fatal to the session that sent it.
	Parse Kind = "PARSE"
	// AgentProtocol is out-of-order or invalid input from the agent
	// (e.g. an event with no active run). Fatal to the agent session.
	AgentProtocol Kind = "AGENT_PROTOCOL"
	// UIProtocol is a semantically invalid UI command. Reported via an
	// `error` event; the session continues.
	UIProtocol Kind = "UI_PROTOCOL"
	// VersionMismatch is a UIProtocol variant for import version skew.
	VersionMismatch Kind = "VERSION_MISMATCH"
	// Summarizer failures are suppressed: logged, summary left empty.
	Summarizer Kind = "SUMMARIZER"
	// Persistence failures are logged; the core keeps serving and keeps
	// the run in memory history. The run store does not report them to
	// the UI.
	Persistence Kind = "PERSISTENCE"
	// Transport failures are treated as a disconnect for that channel.
	Transport Kind = "TRANSPORT"

	// NoActiveRun is returned by the run store when an operation that
	// requires an active run finds none.
	NoActiveRun Kind = "NO_ACTIVE_RUN"
	// UnknownEvent is returned when a breakpoint references an event id
	// not present in the active run.
	UnknownEvent Kind = "UNKNOWN_EVENT"
	// ActiveRun is returned when an operation (delete) targets the run
	// store's active run, which it may not touch.
	ActiveRun Kind = "ACTIVE_RUN"
)

// Policy describes how the controller must react to an error of a given
// kind.
type Policy int

const (
	// PolicyFatalAgent closes the agent channel with a close reason.
	PolicyFatalAgent Policy = iota
	// PolicyFatalUI closes the UI channel with a close reason.
	PolicyFatalUI
	// PolicyReportUI emits an `error` event to the UI; no state change.
	PolicyReportUI
	// PolicySuppress logs and otherwise ignores the error.
	PolicySuppress
)

// PolicyFor returns the handling policy for a given Kind.
func PolicyFor(k Kind) Policy {
	switch k {
	case Protocol, Parse, AgentProtocol:
		return PolicyFatalAgent
	case UIProtocol, VersionMismatch, NoActiveRun, UnknownEvent, ActiveRun:
		return PolicyReportUI
	case Summarizer:
		return PolicySuppress
	case Persistence:
		return PolicyReportUI
	case Transport:
		return PolicyFatalAgent
	default:
		return PolicyReportUI
	}
}

// CoordError is the coordinator's structured error type. It is compatible
// with errors.As/errors.Is via Unwrap.
type CoordError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *CoordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CoordError) Unwrap() error { return e.Err }

// New creates a CoordError of the given kind.
func New(kind Kind, message string) *CoordError {
	return &CoordError{Kind: kind, Message: message}
}

// Wrap creates a CoordError of the given kind wrapping an underlying error.
func Wrap(kind Kind, message string, err error) *CoordError {
	return &CoordError{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from err, returning ok=false if err is not (or
// does not wrap) a *CoordError.
func KindOf(err error) (Kind, bool) {
	var ce *CoordError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}

// Is reports whether err is a CoordError of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
