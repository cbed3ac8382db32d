// Package avatar drives a single live streaming-avatar session: it opens and
// negotiates the session, relays candidates, dispatches speech and tears down.
package avatar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Avatar/internal/core"
	"github.com/dkeye/Avatar/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Options struct {
	API       core.StreamingAPI
	Endpoints core.EndpointFactory
	// Binder receives inbound avatar media. Optional.
	Binder core.TrackBinder

	Credential      string
	Selection       domain.AvatarSelection
	FallbackServers []webrtc.ICEServer
	TeardownTimeout time.Duration
}

// Controller owns at most one Session at a time.
type Controller struct {
	machine    *StateMachine
	negotiator *Negotiator
	speech     *SpeechDispatcher
	teardown   *Teardown
	binder     core.TrackBinder

	// openMu serializes the setup half of open(); negotiation runs outside it
	// so a newer open() can tear down one that is still negotiating.
	openMu sync.Mutex

	mu      sync.Mutex
	session *Session

	// utterances is drained in order by a single speakLoop.
	utterances chan utterance
	ctx        context.Context
	stop       context.CancelFunc
}

type utterance struct {
	text string
	done func(domain.SpeechResult, error)
}

const utteranceQueue = 32

// ErrUtteranceQueueFull is reported when replies arrive faster than they can be spoken.
var ErrUtteranceQueueFull = errors.New("utterance queue full")

func NewController(opts Options) *Controller {
	machine := NewStateMachine()
	td := NewTeardown(opts.API, machine, opts.TeardownTimeout)
	td.binder = opts.Binder
	fallback := opts.FallbackServers
	if len(fallback) == 0 {
		fallback = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}
	ctx, stop := context.WithCancel(context.Background())
	c := &Controller{
		machine: machine,
		negotiator: &Negotiator{
			api:        opts.API,
			auth:       NewAuthenticator(opts.API),
			endpoints:  opts.Endpoints,
			machine:    machine,
			teardown:   td,
			credential: opts.Credential,
			selection:  opts.Selection,
			fallback:   fallback,
		},
		speech:     NewSpeechDispatcher(opts.API, machine),
		teardown:   td,
		binder:     opts.Binder,
		utterances: make(chan utterance, utteranceQueue),
		ctx:        ctx,
		stop:       stop,
	}
	go c.speakLoop()
	return c
}

func (c *Controller) current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Controller) Status() domain.Status { return c.machine.Status() }

func (c *Controller) State() domain.State { return c.machine.State() }

// Subscribe streams status changes, starting with the current one.
func (c *Controller) Subscribe() (<-chan domain.Status, func()) {
	return c.machine.Subscribe(16)
}

// Open establishes a new session, tearing down any previous one first. It
// returns once the answer has been submitted; Live is reached asynchronously
// when the media transport connects (see AwaitLive).
func (c *Controller) Open(ctx context.Context) error {
	s, err := c.begin(ctx)
	if err != nil {
		return err
	}
	logger := log.With().Str("module", "avatar.controller").Str("attempt", s.attempt).Logger()
	logger.Info().Uint64("gen", s.gen).Msg("open")

	// Negotiation follows the caller's ctx and is also cut short by close().
	nctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	err = c.negotiator.Open(nctx, s, c)
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrSessionClosed) || s.Closed() || c.machine.Superseded(s.gen) {
		logger.Info().Err(err).Msg("negotiation result discarded, session was closed")
		return domain.ErrSessionClosed
	}
	c.fail(s, err)
	return err
}

// begin tears down the previous session, whatever stage it is in, and
// installs a fresh one in Authenticating.
func (c *Controller) begin(ctx context.Context) (*Session, error) {
	c.openMu.Lock()
	defer c.openMu.Unlock()

	if prev := c.current(); prev != nil {
		if c.machine.State().Terminal() {
			c.teardown.Release(prev)
		} else {
			c.teardown.Close(prev)
		}
	}

	if err := c.waitSettled(ctx); err != nil {
		return nil, err
	}
	gen, err := c.machine.Begin("Starting...")
	if err != nil {
		return nil, err
	}
	s := newSession(ctx, gen, uuid.NewString())
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	return s, nil
}

// fail moves s to Failed and releases what it holds. Only the current session
// can fail; a stale one is just released.
func (c *Controller) fail(s *Session, err error) {
	diag := describe(err)
	if aerr := c.machine.Advance(s.gen, domain.StateFailed, diag); aerr != nil {
		log.Debug().Str("module", "avatar.controller").Err(aerr).Msg("failure not recorded")
	}
	log.Error().Str("module", "avatar.controller").Str("attempt", s.attempt).Err(err).Bool("remote", domain.IsRemote(err)).Msg("session failed")
	c.teardown.Release(s)
}

// Close tears down the current session. It is idempotent and never fails.
func (c *Controller) Close() {
	c.teardown.Close(c.current())
}

// Speak dispatches text into the live session.
func (c *Controller) Speak(ctx context.Context, text string) (domain.SpeechResult, error) {
	return c.speech.Speak(ctx, c.current(), text)
}

// NotifyUtterance queues a reply the chat collaborator just produced. Replies
// are spoken one at a time in arrival order; done, if set, receives the outcome.
// It never blocks the caller.
func (c *Controller) NotifyUtterance(text string, done func(domain.SpeechResult, error)) {
	u := utterance{text: text, done: done}
	if c.ctx.Err() != nil {
		u.reply(domain.SpeechResult{}, domain.ErrSessionClosed)
		return
	}
	select {
	case c.utterances <- u:
	default:
		log.Warn().Str("module", "avatar.controller").Int("queued", len(c.utterances)).Msg("utterance dropped, queue full")
		u.reply(domain.SpeechResult{}, ErrUtteranceQueueFull)
	}
}

func (c *Controller) speakLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case u := <-c.utterances:
			res, err := c.Speak(c.ctx, u.text)
			if err != nil {
				log.Warn().Str("module", "avatar.controller").Err(err).Msg("utterance failed")
			} else {
				log.Debug().Str("module", "avatar.controller").Str("outcome", res.Outcome.String()).Str("reason", string(res.Reason)).Msg("utterance handled")
			}
			u.reply(res, err)
		}
	}
}

func (u utterance) reply(res domain.SpeechResult, err error) {
	if u.done != nil {
		u.done(res, err)
	}
}

// Shutdown closes the current session and stops the utterance worker.
// Queued utterances are dropped.
func (c *Controller) Shutdown() {
	c.stop()
	c.Close()
}

// AwaitLive blocks until the current session is Live, reaches a terminal state, or ctx ends.
// It does not close the session on timeout; that is the caller's decision.
func (c *Controller) AwaitLive(ctx context.Context) error {
	ch, cancel := c.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st, ok := <-ch:
			if !ok {
				return domain.ErrSessionClosed
			}
			switch st.State {
			case domain.StateLive:
				return nil
			case domain.StateFailed:
				return fmt.Errorf("session failed: %s", st.Diagnostic)
			case domain.StateClosed, domain.StateClosing:
				return domain.ErrSessionClosed
			}
		}
	}
}

// waitSettled waits out a close() that another caller has in progress.
func (c *Controller) waitSettled(ctx context.Context) error {
	ch, cancel := c.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st := <-ch:
			if st.State != domain.StateClosing {
				return nil
			}
		}
	}
}

func (c *Controller) transportChanged(s *Session, ts domain.TransportState) {
	if s.Closed() {
		return
	}
	switch ts {
	case domain.TransportConnected:
		s.markTransportUp()
		c.machine.AdvanceFrom(s.gen, domain.StateConnecting, domain.StateLive, "Avatar connected!")
	case domain.TransportDisconnected, domain.TransportFailed, domain.TransportClosed:
		c.fail(s, fmt.Errorf("media transport %s", ts))
	default:
		c.machine.Diagnose(s.gen, "Connection: "+ts.String())
	}
}

func (c *Controller) trackReceived(ctx context.Context, s *Session, track *webrtc.TrackRemote) {
	if s.Closed() {
		return
	}
	c.machine.Diagnose(s.gen, "Video track received!")
	if c.binder != nil && track != nil {
		c.binder.Bind(ctx, s.ID(), track)
	}
}
