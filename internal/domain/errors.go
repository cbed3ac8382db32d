package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks malformed local input, as opposed to a remote rejection.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSessionClosed is returned when a result arrives for a session that was already torn down.
	ErrSessionClosed = errors.New("session closed")
	// ErrNoActiveSession is logged when speech arrives while no session is live.
	ErrNoActiveSession = errors.New("no active session")
)

// remote is implemented by errors that originate from the remote service.
type remote interface {
	Remote() bool
}

// RemoteMessage returns the message the remote service attached to err, if any.
func RemoteMessage(err error) string {
	var r interface{ RemoteMessage() string }
	if errors.As(err, &r) {
		return r.RemoteMessage()
	}
	return ""
}

// IsRemote reports whether err (or anything it wraps) is a rejection by the remote service.
func IsRemote(err error) bool {
	var r remote
	return errors.As(err, &r) && r.Remote()
}

type AuthReason string

const (
	AuthMissingCredential AuthReason = "missing_credential"
	AuthRemoteRejected    AuthReason = "remote_rejected"
	AuthUnavailable       AuthReason = "unavailable"
)

type AuthError struct {
	Reason  AuthReason
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	switch e.Reason {
	case AuthMissingCredential:
		return "auth: missing API credential"
	case AuthUnavailable:
		return "auth: token request failed: " + e.detail()
	default:
		return "auth: remote service rejected token request: " + e.detail()
	}
}

func (e *AuthError) detail() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "no token in response"
}

func (e *AuthError) Unwrap() error { return e.Err }

type NegotiationStep string

const (
	StepSessionCreate     NegotiationStep = "session_create"
	StepEndpointSetup     NegotiationStep = "endpoint_setup"
	StepRemoteDescription NegotiationStep = "remote_description"
	StepLocalDescription  NegotiationStep = "local_description"
)

type NegotiationError struct {
	Step    NegotiationStep
	Message string
	Err     error
}

func (e *NegotiationError) Error() string {
	var what string
	switch e.Step {
	case StepSessionCreate:
		what = "session create rejected"
	case StepEndpointSetup:
		what = "local media endpoint setup failed"
	case StepRemoteDescription:
		what = "remote description rejected"
	case StepLocalDescription:
		what = "local description failed"
	default:
		what = string(e.Step)
	}
	switch {
	case e.Message != "":
		return fmt.Sprintf("negotiation: %s: %s", what, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("negotiation: %s: %v", what, e.Err)
	}
	return "negotiation: " + what
}

func (e *NegotiationError) Unwrap() error { return e.Err }

type SpeechReason string

const (
	SpeechRemoteRejected  SpeechReason = "remote_rejected"
	SpeechNoActiveSession SpeechReason = "no_active_session"
	SpeechUnavailable     SpeechReason = "unavailable"
)

type SpeechError struct {
	Reason  SpeechReason
	Message string
	Err     error
}

func (e *SpeechError) Error() string {
	if e.Reason == SpeechNoActiveSession {
		return "speak: no active session"
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Reason == SpeechUnavailable {
		return "speak: request failed: " + msg
	}
	return "speak: remote service rejected utterance: " + msg
}

func (e *SpeechError) Unwrap() error { return e.Err }

// RelayError is never propagated; it only exists to be logged.
type RelayError struct {
	SessionID string
	Candidate string
	Err       error
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("relay candidate for session %s: %v", e.SessionID, e.Err)
}

func (e *RelayError) Unwrap() error { return e.Err }

// TeardownError is never propagated; teardown cannot fail from the caller's perspective.
type TeardownError struct {
	Step string
	Err  error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("teardown %s: %v", e.Step, e.Err)
}

func (e *TeardownError) Unwrap() error { return e.Err }
