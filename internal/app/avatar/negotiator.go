package avatar

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Avatar/internal/core"
	"github.com/dkeye/Avatar/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// endpointEvents receives what the media endpoint reports for a session.
type endpointEvents interface {
	transportChanged(s *Session, ts domain.TransportState)
	trackReceived(ctx context.Context, s *Session, track *webrtc.TrackRemote)
}

// Negotiator runs the strictly ordered open sequence:
// token, remote session, local endpoint, remote offer, local answer, start.
type Negotiator struct {
	api        core.StreamingAPI
	auth       *Authenticator
	endpoints  core.EndpointFactory
	machine    *StateMachine
	teardown   *Teardown
	credential string
	selection  domain.AvatarSelection
	fallback   []webrtc.ICEServer
}

func (n *Negotiator) Open(ctx context.Context, s *Session, events endpointEvents) error {
	logger := log.With().Str("module", "avatar.negotiator").Str("attempt", s.attempt).Logger()

	n.machine.Diagnose(s.gen, "Getting token...")
	token, err := n.auth.AcquireToken(ctx, n.credential)
	if cerr := s.checkpoint(); cerr != nil {
		return cerr
	}
	if err != nil {
		return err
	}
	s.setToken(token)
	logger.Info().Msg("token received")

	if err := n.machine.Advance(s.gen, domain.StateNegotiating, "Creating avatar..."); err != nil {
		return err
	}

	created, err := n.api.CreateSession(ctx, token, n.selection)
	if cerr := s.checkpoint(); cerr != nil {
		if err == nil && created != nil && created.SessionID != "" {
			// The remote session was opened for nobody; stop it rather than leak it.
			n.teardown.stopRemote(token, created.SessionID)
		}
		return cerr
	}
	if err != nil {
		return &domain.NegotiationError{Step: domain.StepSessionCreate, Message: domain.RemoteMessage(err), Err: err}
	}
	if created == nil || created.SessionID == "" {
		msg := "response carries no session id"
		if created != nil && created.Message != "" {
			msg = created.Message
		}
		return &domain.NegotiationError{Step: domain.StepSessionCreate, Message: msg}
	}
	s.setID(created.SessionID)
	n.machine.SetSessionID(s.gen, created.SessionID)
	n.machine.Diagnose(s.gen, "Session: "+created.SessionID)
	logger = logger.With().Str("session_id", created.SessionID).Logger()
	logger.Info().Msg("session created")

	ep, relay, err := n.setupEndpoint(s, token, created, events, &logger)
	if err != nil {
		return err
	}

	if err := ep.SetRemoteDescription(created.Offer); err != nil {
		return &domain.NegotiationError{Step: domain.StepRemoteDescription, Err: err}
	}
	relay.Arm()
	n.machine.Diagnose(s.gen, "Remote SDP set")

	answer, err := ep.CreateAnswer()
	if cerr := s.checkpoint(); cerr != nil {
		return cerr
	}
	if err != nil {
		return &domain.NegotiationError{Step: domain.StepLocalDescription, Err: err}
	}
	n.machine.Diagnose(s.gen, "Local SDP set")
	if err := n.machine.Advance(s.gen, domain.StateStarting, "Starting session..."); err != nil {
		return err
	}

	err = n.api.StartSession(ctx, token, created.SessionID, *answer)
	if cerr := s.checkpoint(); cerr != nil {
		return cerr
	}
	if err != nil {
		// The media transport is authoritative; a refused start is not fatal.
		logger.Warn().Err(err).Bool("remote", domain.IsRemote(err)).Msg("start session not acknowledged")
	}

	if err := n.machine.Advance(s.gen, domain.StateConnecting, "Avatar started!"); err != nil {
		return err
	}
	if s.isTransportUp() {
		n.machine.AdvanceFrom(s.gen, domain.StateConnecting, domain.StateLive, "Avatar connected!")
	}
	return nil
}

// setupEndpoint builds the media endpoint and its relay and wires callbacks
// before any description is applied, so no candidate or state change is missed.
func (n *Negotiator) setupEndpoint(
	s *Session,
	token string,
	created *core.CreatedSession,
	events endpointEvents,
	logger *zerolog.Logger,
) (core.MediaEndpoint, *CandidateRelay, error) {
	servers := created.ICEServers
	if len(servers) == 0 {
		servers = n.fallback
		logger.Info().Msg("no connectivity hints, using fallback ICE servers")
	}

	ep, err := n.endpoints.NewEndpoint(created.SessionID, servers)
	if err != nil {
		return nil, nil, &domain.NegotiationError{Step: domain.StepEndpointSetup, Err: err}
	}
	relay := NewCandidateRelay(s.ctx, n.api, token, created.SessionID)

	ep.OnCandidate(relay.Enqueue)
	ep.OnTransportState(func(ts domain.TransportState) { events.transportChanged(s, ts) })
	ep.OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		events.trackReceived(ctx, s, track)
	})

	if !s.attach(ep, relay) {
		relay.Stop()
		if err := ep.Close(); err != nil {
			logger.Warn().Err(err).Msg("close endpoint of discarded session")
		}
		return nil, nil, domain.ErrSessionClosed
	}
	return ep, relay, nil
}

// describe renders err as the single human-readable status string.
func describe(err error) string {
	var (
		authErr *domain.AuthError
		negErr  *domain.NegotiationError
	)
	switch {
	case errors.As(err, &authErr), errors.As(err, &negErr):
		return "Error: " + err.Error()
	case domain.IsRemote(err):
		return "Error: remote service rejected request: " + err.Error()
	}
	return fmt.Sprintf("Error: %v", err)
}
