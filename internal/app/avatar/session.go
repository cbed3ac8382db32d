package avatar

import (
	"context"
	"sync"

	"github.com/dkeye/Avatar/internal/core"
	"github.com/dkeye/Avatar/internal/domain"
)

// Session is the single live connection to the rendering service.
// It exclusively owns the token, the media endpoint and the candidate relay.
type Session struct {
	gen     uint64
	attempt string
	ctx     context.Context
	cancel  context.CancelFunc

	mu          sync.Mutex
	id          string
	token       string
	endpoint    core.MediaEndpoint
	relay       *CandidateRelay
	lastSpoken  *string
	transportUp bool
	closed      bool

	releaseOnce sync.Once
}

// newSession derives a lifetime context that outlives the caller of open() but
// ends when the session is released.
func newSession(parent context.Context, gen uint64, attempt string) *Session {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	return &Session{gen: gen, attempt: attempt, ctx: ctx, cancel: cancel}
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// LastSpoken returns the last successfully dispatched utterance.
func (s *Session) LastSpoken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSpoken == nil {
		return "", false
	}
	return *s.lastSpoken, true
}

func (s *Session) setToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *Session) setID(id string) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

// attach hands the endpoint and relay to the session. It fails once the
// session is closed; the caller then owns and must release both.
func (s *Session) attach(ep core.MediaEndpoint, relay *CandidateRelay) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.endpoint = ep
	s.relay = relay
	return true
}

func (s *Session) candidateRelay() *CandidateRelay {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relay
}

func (s *Session) setLastSpoken(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.lastSpoken = &text
}

func (s *Session) markTransportUp() {
	s.mu.Lock()
	s.transportUp = true
	s.mu.Unlock()
}

func (s *Session) isTransportUp() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transportUp
}

// close marks the session closed and detaches everything it owned.
func (s *Session) close() (id, token string, ep core.MediaEndpoint, relay *CandidateRelay) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cancel()
	id, token, ep, relay = s.id, s.token, s.endpoint, s.relay
	s.endpoint = nil
	s.relay = nil
	s.lastSpoken = nil
	return id, token, ep, relay
}

// checkpoint is consulted after every remote call of the negotiation: a result
// that arrives after close() is discarded.
func (s *Session) checkpoint() error {
	if s.Closed() {
		return domain.ErrSessionClosed
	}
	return nil
}
