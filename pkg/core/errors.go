package core

import "fmt"

// ErrorType categorizes engine-level errors so handlers can decide whether
// to retry, apologize to the user, or tear the session down.
type ErrorType string

const (
	ErrTransport     ErrorType = "transport_error"
	ErrProvider      ErrorType = "provider_error"
	ErrTool          ErrorType = "tool_error"
	ErrProtocol      ErrorType = "protocol_error"
	ErrConfiguration ErrorType = "configuration_error"
	ErrTimeout       ErrorType = "timeout_error"
	ErrInvalidState  ErrorType = "invalid_state_error"
)

// Error is the typed error returned across every port boundary in the
// engine. It never crosses the EventBus directly: handlers translate it
// into an event (a TTS apology, a warning frame, a fatal teardown) per the
// propagation policy in SPEC_FULL.md #7.
type Error struct {
	Type      ErrorType
	Message   string
	Code      string
	SessionID string
	Cause     error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func NewTransportError(sessionID, message string, cause error) *Error {
	return &Error{Type: ErrTransport, Message: message, SessionID: sessionID, Cause: cause}
}

func NewProviderError(sessionID, code, message string, cause error) *Error {
	return &Error{Type: ErrProvider, Code: code, Message: message, SessionID: sessionID, Cause: cause}
}

func NewToolError(sessionID, tool, message string) *Error {
	return &Error{Type: ErrTool, Code: tool, Message: message, SessionID: sessionID}
}

func NewProtocolError(message string) *Error {
	return &Error{Type: ErrProtocol, Message: message}
}

func NewConfigurationError(sessionID, message string, cause error) *Error {
	return &Error{Type: ErrConfiguration, Message: message, SessionID: sessionID, Cause: cause}
}

func NewTimeoutError(sessionID, message string) *Error {
	return &Error{Type: ErrTimeout, Message: message, SessionID: sessionID}
}

// IsFatal reports whether an error of this type should tear the session
// down rather than be absorbed as a spoken apology.
func (e *Error) IsFatal() bool {
	switch e.Type {
	case ErrConfiguration, ErrTransport:
		return true
	default:
		return false
	}
}
