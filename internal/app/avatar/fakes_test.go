package avatar

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Avatar/internal/core"
	"github.com/dkeye/Avatar/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

type remoteErr struct{ msg string }

func (e *remoteErr) Error() string         { return "remote: " + e.msg }
func (e *remoteErr) Remote() bool          { return true }
func (e *remoteErr) RemoteMessage() string { return e.msg }

// eventLog is shared by fakes that need to assert cross-component ordering.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) index(ev string) int {
	for i, e := range l.snapshot() {
		if e == ev {
			return i
		}
	}
	return -1
}

// fakeAPI is a scriptable StreamingAPI that records every call.
type fakeAPI struct {
	log *eventLog

	mu          sync.Mutex
	token       string
	tokenErr    error
	created     *core.CreatedSession
	createErr   error
	createGate  chan struct{}
	createdCall chan struct{}
	startErr    error
	onStart     func()
	speakErrs   []error

	relayed []domain.Candidate
	spoken  []string
	stopped []string
	started []string
}

func newFakeAPI(log *eventLog) *fakeAPI {
	return &fakeAPI{
		log:   log,
		token: "T",
		created: &core.CreatedSession{
			SessionID:  "S",
			Offer:      webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"},
			ICEServers: []webrtc.ICEServer{{URLs: []string{"turn:relay.example.org"}}},
		},
	}
}

func (f *fakeAPI) CreateToken(_ context.Context, apiKey string) (string, error) {
	f.log.add("create-token")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.tokenErr
}

func (f *fakeAPI) CreateSession(ctx context.Context, token string, sel domain.AvatarSelection) (*core.CreatedSession, error) {
	f.log.add("create-session")
	// The gate holds only the first call; later calls answer at once.
	f.mu.Lock()
	gate, entered := f.createGate, f.createdCall
	f.createGate, f.createdCall = nil, nil
	f.mu.Unlock()
	if entered != nil {
		close(entered)
	}
	if gate != nil {
		// Simulates a slow service that answers regardless of cancellation.
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.created == nil {
		return nil, f.createErr
	}
	cp := *f.created
	return &cp, f.createErr
}

func (f *fakeAPI) RelayCandidate(_ context.Context, token, sessionID string, cand domain.Candidate) error {
	f.log.add("relay:%s", cand.Data)
	f.mu.Lock()
	f.relayed = append(f.relayed, cand)
	f.mu.Unlock()
	return nil
}

func (f *fakeAPI) StartSession(_ context.Context, token, sessionID string, answer webrtc.SessionDescription) error {
	f.log.add("start")
	f.mu.Lock()
	f.started = append(f.started, sessionID)
	hook, err := f.onStart, f.startErr
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (f *fakeAPI) Speak(_ context.Context, token, sessionID, text string) error {
	f.log.add("speak:%s", text)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
	if len(f.speakErrs) > 0 {
		err := f.speakErrs[0]
		f.speakErrs = f.speakErrs[1:]
		return err
	}
	return nil
}

func (f *fakeAPI) StopSession(_ context.Context, token, sessionID string) error {
	f.log.add("stop:%s", sessionID)
	f.mu.Lock()
	f.stopped = append(f.stopped, sessionID)
	f.mu.Unlock()
	return nil
}

func (f *fakeAPI) spokenTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

func (f *fakeAPI) stoppedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stopped...)
}

func (f *fakeAPI) relayedData() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.relayed))
	for _, c := range f.relayed {
		out = append(out, c.Data)
	}
	return out
}

// fakeEndpoint stands in for the pion connection.
type fakeEndpoint struct {
	log *eventLog

	mu          sync.Mutex
	onCandidate func(domain.Candidate)
	onState     func(domain.TransportState)
	onTrack     func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	preRemote   []string
	remoteErr   error
	answerErr   error
	remoteSet   bool
	closed      int
	iceServers  []webrtc.ICEServer
}

func (e *fakeEndpoint) SetRemoteDescription(offer webrtc.SessionDescription) error {
	e.mu.Lock()
	pre, err := e.preRemote, e.remoteErr
	e.mu.Unlock()
	for _, c := range pre {
		e.emit(c)
	}
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.remoteSet = true
	e.mu.Unlock()
	e.log.add("remote-applied")
	return nil
}

func (e *fakeEndpoint) CreateAnswer() (*webrtc.SessionDescription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.answerErr != nil {
		return nil, e.answerErr
	}
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (e *fakeEndpoint) OnCandidate(fn func(domain.Candidate)) {
	e.mu.Lock()
	e.onCandidate = fn
	e.mu.Unlock()
}

func (e *fakeEndpoint) OnTransportState(fn func(domain.TransportState)) {
	e.mu.Lock()
	e.onState = fn
	e.mu.Unlock()
}

func (e *fakeEndpoint) OnTrack(fn func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	e.mu.Lock()
	e.onTrack = fn
	e.mu.Unlock()
}

func (e *fakeEndpoint) Close() error {
	e.mu.Lock()
	e.closed++
	e.mu.Unlock()
	return nil
}

func (e *fakeEndpoint) emit(data string) {
	e.mu.Lock()
	fn := e.onCandidate
	e.mu.Unlock()
	e.log.add("emit:%s", data)
	fn(domain.Candidate{Data: data, MediaLineID: "0"})
}

func (e *fakeEndpoint) transport(ts domain.TransportState) {
	e.mu.Lock()
	fn := e.onState
	e.mu.Unlock()
	fn(ts)
}

func (e *fakeEndpoint) closeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// fakeFactory hands out one fakeEndpoint per session.
type fakeFactory struct {
	log *eventLog

	mu        sync.Mutex
	endpoints []*fakeEndpoint
	prepare   func(*fakeEndpoint)
	err       error
}

func (f *fakeFactory) NewEndpoint(sessionID string, iceServers []webrtc.ICEServer) (core.MediaEndpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	ep := &fakeEndpoint{log: f.log, iceServers: iceServers}
	if f.prepare != nil {
		f.prepare(ep)
	}
	f.endpoints = append(f.endpoints, ep)
	return ep, nil
}

func (f *fakeFactory) last(t *testing.T) *fakeEndpoint {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.endpoints, "no endpoint was created")
	return f.endpoints[len(f.endpoints)-1]
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.endpoints)
}

type harness struct {
	log     *eventLog
	api     *fakeAPI
	factory *fakeFactory
	ctrl    *Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := &eventLog{}
	h := &harness{
		log:     log,
		api:     newFakeAPI(log),
		factory: &fakeFactory{log: log},
	}
	h.ctrl = NewController(Options{
		API:             h.api,
		Endpoints:       h.factory,
		Credential:      "abc",
		Selection:       domain.AvatarSelection{AvatarName: "Anna", VoiceID: "v1", Quality: domain.QualityLow},
		TeardownTimeout: time.Second,
	})
	t.Cleanup(h.ctrl.Shutdown)
	return h
}

// openLive runs the happy path up to Live.
func (h *harness) openLive(t *testing.T) *fakeEndpoint {
	t.Helper()
	require.NoError(t, h.ctrl.Open(context.Background()))
	ep := h.factory.last(t)
	ep.transport(domain.TransportConnected)
	require.Equal(t, domain.StateLive, h.ctrl.State())
	return ep
}

// liveSession builds a Live session directly on m, bypassing negotiation.
func liveSession(t *testing.T, m *StateMachine) *Session {
	t.Helper()
	gen, err := m.Begin("")
	require.NoError(t, err)
	for _, st := range []domain.State{domain.StateNegotiating, domain.StateStarting, domain.StateConnecting, domain.StateLive} {
		require.NoError(t, m.Advance(gen, st, ""))
	}
	s := newSession(context.Background(), gen, "test")
	s.setID("S")
	s.setToken("T")
	return s
}

type fakeBinder struct {
	mu       sync.Mutex
	released []string
}

func (b *fakeBinder) Bind(context.Context, string, *webrtc.TrackRemote) {}

func (b *fakeBinder) Release(sessionID string) {
	b.mu.Lock()
	b.released = append(b.released, sessionID)
	b.mu.Unlock()
}

func (b *fakeBinder) releasedIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.released...)
}
