package corevm

import "fmt"

// Location is one entry of an exception's call-stack snapshot.
type Location struct {
	MethodName string
	IP         int
}

// LanguageException is the language-level exception surfaced by
// execute: the boundary between host-level Go failures and the
// exception objects the rest of the runtime understands.
type LanguageException struct {
	Kind    string // "type_error", "interpreter_error", or a forwarded kind
	Message string

	ExpectedType string
	ActualObject Value
	Reason       string

	Locations []Location
}

func (e *LanguageException) Error() string { return e.Message }

// HasLocation reports whether a location snapshot has already been
// attached, so Execute only attaches one when none is present.
func (e *LanguageException) HasLocation() bool { return len(e.Locations) > 0 }

// MakeTypeError builds the language-level type-error exception a
// host TypeError panic is translated into.
func MakeTypeError(expectedType string, actual Value, reason string) *LanguageException {
	return &LanguageException{
		Kind:         "type_error",
		Message:      fmt.Sprintf("no implicit conversion: expected %s (%s)", expectedType, reason),
		ExpectedType: expectedType,
		ActualObject: actual,
		Reason:       reason,
	}
}

// MakeInterpreterError builds the generic exception any unidentified
// host failure is translated into.
func MakeInterpreterError(message string) *LanguageException {
	return &LanguageException{Kind: "interpreter_error", Message: message}
}

// AttachLocations stamps locs onto e if it has none yet.
func (e *LanguageException) AttachLocations(locs []Location) {
	if !e.HasLocation() {
		e.Locations = locs
	}
}

// ---------------------------------------------------------------------
// Host-failure panic payloads.
//
// Handlers signal a host failure the same way the host interpreter
// does: by panicking with one of these payload types. execute's outer
// recover (dispatcher.go) is the single boundary that interprets them,
// per the "trapped at exactly one boundary" propagation policy.
// ---------------------------------------------------------------------

// HostTypeError is the panic payload for a type error: (expected_type,
// actual_object, reason).
type HostTypeError struct {
	ExpectedType string
	ActualObject Value
	Reason       string
}

// RaiseHostTypeError panics with a HostTypeError, the handler-facing
// entry point for reporting a type mismatch.
func RaiseHostTypeError(expectedType string, actual Value, reason string) {
	panic(HostTypeError{ExpectedType: expectedType, ActualObject: actual, Reason: reason})
}

// HostLanguageException wraps an in-flight LanguageException a
// handler wants forwarded unchanged (aside from a location snapshot
// if it has none).
type HostLanguageException struct {
	Exception *LanguageException
}

// RaiseLanguageException panics with an in-flight language exception.
func RaiseLanguageException(exc *LanguageException) {
	panic(HostLanguageException{Exception: exc})
}

// locationsFromCallStack builds a one-entry call-stack snapshot from
// the frame currently executing. A fuller implementation would walk
// the caller chain; the core only guarantees the invariant that every
// surfaced exception has a non-empty location (SPEC_FULL.md §8).
func locationsFromCallStack(frame *CallFrame) []Location {
	name := ""
	if frame != nil && frame.MachineCode != nil && frame.MachineCode.Source != nil {
		name = frame.MachineCode.Source.Name
	}
	ip := 0
	if frame != nil {
		ip = frame.IP
	}
	return []Location{{MethodName: name, IP: ip}}
}
