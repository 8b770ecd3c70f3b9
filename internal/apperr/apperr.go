// Package apperr defines the closed set of error kinds the orchestrator
// core raises, so callers (the IPC hub, the CLI, adapters) can dispatch
// on kind with errors.As instead of matching error strings.
package apperr

import "fmt"

// Kind is one of the error taxonomy entries from the design doc.
type Kind string

const (
	KindConfig            Kind = "config_error"
	KindAgentNotFound     Kind = "agent_not_found"
	KindSessionSpawn      Kind = "session_spawn_error"
	KindSessionNotFound   Kind = "session_not_found"
	KindChannelConnection Kind = "channel_connection_error"
	KindChannelSend       Kind = "channel_send_error"
	KindStore             Kind = "store_error"
)

// Error is a typed application error carrying a Kind and an optional
// wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// ConfigError wraps a config parse/validation failure.
func ConfigError(message string, cause error) *Error {
	return newErr(KindConfig, message, cause)
}

// AgentNotFound reports a lookup against an unregistered agent slug.
func AgentNotFound(slug string) *Error {
	return newErr(KindAgentNotFound, fmt.Sprintf("agent %q is not registered", slug), nil)
}

// SessionSpawnError wraps an LLM subprocess failure (non-zero exit or timeout).
func SessionSpawnError(message string, cause error) *Error {
	return newErr(KindSessionSpawn, message, cause)
}

// SessionNotFound reports a lookup against an unknown conversation id.
func SessionNotFound(conversationID string) *Error {
	return newErr(KindSessionNotFound, fmt.Sprintf("no session for conversation %q", conversationID), nil)
}

// ChannelConnectionError wraps an adapter connect failure.
func ChannelConnectionError(channel string, cause error) *Error {
	return newErr(KindChannelConnection, fmt.Sprintf("channel %q failed to connect", channel), cause)
}

// ChannelSendError wraps an adapter outbound-send failure.
func ChannelSendError(channel string, cause error) *Error {
	return newErr(KindChannelSend, fmt.Sprintf("channel %q failed to send", channel), cause)
}

// StoreError wraps a persistent-store operation failure.
func StoreError(message string, cause error) *Error {
	return newErr(KindStore, message, cause)
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if ok := AsError(err, &e); ok {
		return e.Kind == kind
	}
	return false
}

// AsError is a small errors.As wrapper kept local to avoid importing
// "errors" in every call site that only wants the Kind check above.
func AsError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
