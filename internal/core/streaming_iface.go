package core

import (
	"context"

	"github.com/dkeye/Avatar/internal/domain"
	"github.com/pion/webrtc/v4"
)

// CreatedSession is the remote service's answer to a session creation request.
// SessionID is empty when the service refused to open one; Message then carries its reason.
type CreatedSession struct {
	SessionID  string
	Offer      webrtc.SessionDescription
	ICEServers []webrtc.ICEServer
	Message    string
}

// StreamingAPI is the remote avatar rendering service.
// Every call except CreateToken authenticates with the session token.
type StreamingAPI interface {
	CreateToken(ctx context.Context, apiKey string) (string, error)
	CreateSession(ctx context.Context, token string, sel domain.AvatarSelection) (*CreatedSession, error)
	RelayCandidate(ctx context.Context, token, sessionID string, cand domain.Candidate) error
	StartSession(ctx context.Context, token, sessionID string, answer webrtc.SessionDescription) error
	Speak(ctx context.Context, token, sessionID, text string) error
	StopSession(ctx context.Context, token, sessionID string) error
}
