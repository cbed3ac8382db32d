package core

import (
	"context"

	"github.com/dkeye/Avatar/internal/domain"
	"github.com/pion/webrtc/v4"
)

// MediaEndpoint is the local real-time media connection owned by one avatar session.
// Callbacks must be registered before SetRemoteDescription.
type MediaEndpoint interface {
	// SetRemoteDescription applies the remote offer.
	SetRemoteDescription(offer webrtc.SessionDescription) error
	// CreateAnswer generates an answer and applies it as the local description.
	// It does not wait for candidate gathering; candidates trickle through OnCandidate.
	CreateAnswer() (*webrtc.SessionDescription, error)
	// OnCandidate sets a callback for newly gathered local candidates.
	OnCandidate(func(domain.Candidate))
	// OnTransportState sets a callback for transport connectivity changes.
	OnTransportState(func(domain.TransportState))
	// OnTrack sets a callback invoked when a remote media track arrives.
	OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	// Close releases the endpoint. Safe to call more than once.
	Close() error
}

// EndpointFactory builds a MediaEndpoint for one session from connectivity hints.
type EndpointFactory interface {
	NewEndpoint(sessionID string, iceServers []webrtc.ICEServer) (MediaEndpoint, error)
}

// TrackBinder hands inbound media to the rendering collaborator.
type TrackBinder interface {
	Bind(ctx context.Context, sessionID string, track *webrtc.TrackRemote)
	// Release stops consuming the tracks of sessionID.
	Release(sessionID string)
}
