package avatar

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Avatar/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrIllegalTransition = errors.New("illegal state transition")
	// ErrStaleSession is returned when an event belongs to a session that is no longer current.
	ErrStaleSession = errors.New("stale session")
)

var transitions = map[domain.State][]domain.State{
	domain.StateIdle:           {domain.StateAuthenticating, domain.StateClosing},
	domain.StateAuthenticating: {domain.StateNegotiating, domain.StateFailed, domain.StateClosing},
	domain.StateNegotiating:    {domain.StateStarting, domain.StateFailed, domain.StateClosing},
	domain.StateStarting:       {domain.StateConnecting, domain.StateFailed, domain.StateClosing},
	domain.StateConnecting:     {domain.StateLive, domain.StateFailed, domain.StateClosing},
	domain.StateLive:           {domain.StateFailed, domain.StateClosing},
	domain.StateClosing:        {domain.StateClosed},
	domain.StateClosed:         {domain.StateAuthenticating},
	domain.StateFailed:         {domain.StateAuthenticating, domain.StateClosing},
}

func allowed(from, to domain.State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StateMachine is the only writer of the controller's status.
// Every transition is scoped to a session generation so that events from a
// torn-down session can never move the state of its successor.
type StateMachine struct {
	mu     sync.Mutex
	gen    uint64
	status domain.Status

	subs   map[int]chan domain.Status
	nextID int
}

func NewStateMachine() *StateMachine {
	return &StateMachine{
		status: domain.Status{State: domain.StateIdle},
		subs:   make(map[int]chan domain.Status),
	}
}

func (m *StateMachine) Status() domain.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *StateMachine) State() domain.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.State
}

// Generation returns the generation of the current session.
func (m *StateMachine) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// Begin starts a new session generation in Authenticating.
func (m *StateMachine) Begin(diag string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !allowed(m.status.State, domain.StateAuthenticating) {
		return 0, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, m.status.State, domain.StateAuthenticating)
	}
	m.gen++
	m.status = domain.Status{}
	m.setLocked(domain.StateAuthenticating, diag)
	return m.gen, nil
}

// Advance moves session gen to state to.
func (m *StateMachine) Advance(gen uint64, to domain.State, diag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return ErrStaleSession
	}
	from := m.status.State
	if !allowed(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	m.setLocked(to, diag)
	return nil
}

// AdvanceFrom moves session gen from state from to state to, and reports whether it did.
func (m *StateMachine) AdvanceFrom(gen uint64, from, to domain.State, diag string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.status.State != from || !allowed(from, to) {
		return false
	}
	m.setLocked(to, diag)
	return true
}

// Close drives whatever session is current to Closing. It reports false when
// the machine is already Closing or Closed.
func (m *StateMachine) Close(diag string) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !allowed(m.status.State, domain.StateClosing) {
		return m.gen, false
	}
	m.setLocked(domain.StateClosing, diag)
	return m.gen, true
}

// Superseded reports whether session gen has been replaced or is being closed.
func (m *StateMachine) Superseded(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen != m.gen || m.status.State == domain.StateClosing || m.status.State == domain.StateClosed
}

// Diagnose updates the diagnostic string of session gen without changing state.
func (m *StateMachine) Diagnose(gen uint64, diag string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	m.status.Diagnostic = diag
	m.publishLocked()
}

func (m *StateMachine) SetSessionID(gen uint64, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	m.status.SessionID = id
	m.publishLocked()
}

// IsLive reports whether session gen is the current one and Live.
func (m *StateMachine) IsLive(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen && m.status.State == domain.StateLive
}

func (m *StateMachine) setLocked(to domain.State, diag string) {
	from := m.status.State
	m.status.State = to
	if diag != "" {
		m.status.Diagnostic = diag
	}
	log.Info().
		Str("module", "avatar.state").
		Uint64("gen", m.gen).
		Str("from", from.String()).
		Str("to", to.String()).
		Str("diagnostic", m.status.Diagnostic).
		Msg("transition")
	m.publishLocked()
}

// publishLocked never blocks: a full subscriber loses its oldest pending status.
func (m *StateMachine) publishLocked() {
	st := m.status
	for id, ch := range m.subs {
		select {
		case ch <- st:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
			log.Warn().Str("module", "avatar.state").Int("sub", id).Msg("subscriber backpressure, status dropped")
		}
	}
}

// Subscribe returns a channel that receives the current status immediately and
// every change after it. cancel closes the channel.
func (m *StateMachine) Subscribe(buf int) (<-chan domain.Status, func()) {
	if buf < 1 {
		buf = 1
	}
	ch := make(chan domain.Status, buf)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	ch <- m.status
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			close(ch)
			m.mu.Unlock()
		})
	}
}
