package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Avatar/internal/core"
	"github.com/dkeye/Avatar/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotAnOffer = errors.New("remote description is not an offer")
	ErrNoMedia    = errors.New("offer carries no media sections")
)

func DefaultICEServers() []webrtc.ICEServer {
	return []webrtc.ICEServer{
		{
			URLs: []string{"stun:stun.l.google.com:19302"},
		},
	}
}

// NewAPI builds a pion API with default codecs and interceptors whose logs go to zerolog.
func NewAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	se := webrtc.SettingEngine{LoggerFactory: NewLoggerFactory()}
	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	), nil
}

// Factory creates one Connection per avatar session.
type Factory struct {
	api *webrtc.API
}

var _ core.EndpointFactory = (*Factory)(nil)

func NewFactory() (*Factory, error) {
	api, err := NewAPI()
	if err != nil {
		return nil, err
	}
	return &Factory{api: api}, nil
}

func (f *Factory) NewEndpoint(sessionID string, iceServers []webrtc.ICEServer) (core.MediaEndpoint, error) {
	return NewConnection(f.api, webrtc.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: webrtc.ICETransportPolicyAll,
	}, sessionID)
}

// Connection is the answering side of a trickle-ICE peer connection.
type Connection struct {
	pc     *webrtc.PeerConnection
	sid    string
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.RWMutex
	onCandidate func(domain.Candidate)
	onState     func(domain.TransportState)
	onTrack     func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)

	closeOnce sync.Once
	closeErr  error
}

var _ core.MediaEndpoint = (*Connection)(nil)

func NewConnection(api *webrtc.API, cfg webrtc.Configuration, sid string) (*Connection, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{pc: pc, sid: sid, ctx: ctx, cancel: cancel}
	c.bind()
	return c, nil
}

func (c *Connection) bind() {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "rtc").Str("session_id", c.sid).Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("session_id", c.sid).Str("peer_connection_state", s.String()).Msg("Peer state")
		ts := transportState(s)
		if ts == domain.TransportDisconnected || ts == domain.TransportFailed || ts == domain.TransportClosed {
			c.cancel()
		}
		c.mu.RLock()
		fn := c.onState
		c.mu.RUnlock()
		if fn != nil {
			fn(ts)
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			log.Debug().Str("module", "rtc").Str("session_id", c.sid).Msg("candidate gathering complete")
			return
		}
		c.mu.RLock()
		fn := c.onCandidate
		c.mu.RUnlock()
		if fn != nil {
			fn(toCandidate(cand.ToJSON()))
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("session_id", c.sid).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		c.mu.RLock()
		fn := c.onTrack
		c.mu.RUnlock()
		if fn != nil {
			fn(c.ctx, track, receiver)
		}
	})
}

func transportState(s webrtc.PeerConnectionState) domain.TransportState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return domain.TransportConnecting
	case webrtc.PeerConnectionStateConnected:
		return domain.TransportConnected
	case webrtc.PeerConnectionStateDisconnected:
		return domain.TransportDisconnected
	case webrtc.PeerConnectionStateFailed:
		return domain.TransportFailed
	case webrtc.PeerConnectionStateClosed:
		return domain.TransportClosed
	}
	return domain.TransportNew
}

func toCandidate(ci webrtc.ICECandidateInit) domain.Candidate {
	out := domain.Candidate{Data: ci.Candidate}
	if ci.SDPMid != nil {
		out.MediaLineID = *ci.SDPMid
	}
	if ci.SDPMLineIndex != nil {
		out.MediaLineIndex = *ci.SDPMLineIndex
	}
	return out
}

// ValidateOffer parses the offer SDP before handing it to the peer connection,
// so malformed offers are reported with a precise reason.
func ValidateOffer(offer webrtc.SessionDescription) error {
	if offer.Type != webrtc.SDPTypeOffer {
		return fmt.Errorf("%w: got %s", ErrNotAnOffer, offer.Type)
	}
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(offer.SDP)); err != nil {
		return fmt.Errorf("parse offer: %w", err)
	}
	if len(parsed.MediaDescriptions) == 0 {
		return ErrNoMedia
	}
	return nil
}

func (c *Connection) SetRemoteDescription(offer webrtc.SessionDescription) error {
	if err := ValidateOffer(offer); err != nil {
		return err
	}
	return c.pc.SetRemoteDescription(offer)
}

func (c *Connection) CreateAnswer() (*webrtc.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	// Candidates are trickled through OnICECandidate, so gathering is not awaited here.
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	return c.pc.LocalDescription(), nil
}

func (c *Connection) OnCandidate(fn func(domain.Candidate)) {
	c.mu.Lock()
	c.onCandidate = fn
	c.mu.Unlock()
}

func (c *Connection) OnTransportState(fn func(domain.TransportState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// OnTrack sets application-level callback for remote tracks.
func (c *Connection) OnTrack(fn func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.closeErr = c.pc.Close()
		if c.closeErr != nil {
			log.Error().Err(c.closeErr).Str("module", "rtc").Str("session_id", c.sid).Msg("close error")
		} else {
			log.Info().Str("module", "rtc").Str("session_id", c.sid).Msg("closed")
		}
	})
	return c.closeErr
}
