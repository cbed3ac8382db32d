package avatar

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Avatar/internal/core"
	"github.com/dkeye/Avatar/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CandidateRelay forwards local candidates to the remote signaling endpoint.
// Candidates are buffered until Arm is called (remote description applied),
// then sent one at a time in emission order. Failures are logged and dropped.
type CandidateRelay struct {
	api       core.StreamingAPI
	token     string
	sessionID string
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending []domain.Candidate
	armed   bool
	stopped bool

	wake chan struct{}
	done chan struct{}

	sent   atomic.Int64
	failed atomic.Int64
}

func NewCandidateRelay(ctx context.Context, api core.StreamingAPI, token, sessionID string) *CandidateRelay {
	ctx, cancel := context.WithCancel(ctx)
	r := &CandidateRelay{
		api:       api,
		token:     token,
		sessionID: sessionID,
		logger:    log.With().Str("module", "avatar.relay").Str("session_id", sessionID).Logger(),
		ctx:       ctx,
		cancel:    cancel,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go r.run()
	return r
}

// Enqueue accepts a candidate from the media endpoint. It never blocks.
func (r *CandidateRelay) Enqueue(c domain.Candidate) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.pending = append(r.pending, c)
	armed := r.armed
	n := len(r.pending)
	r.mu.Unlock()

	if armed {
		r.signal()
	} else {
		r.logger.Debug().Int("buffered", n).Msg("candidate buffered until remote description is applied")
	}
}

// Arm releases buffered candidates; everything enqueued afterwards is sent as it arrives.
func (r *CandidateRelay) Arm() {
	r.mu.Lock()
	if r.stopped || r.armed {
		r.mu.Unlock()
		return
	}
	r.armed = true
	n := len(r.pending)
	r.mu.Unlock()

	r.logger.Debug().Int("buffered", n).Msg("relay armed")
	r.signal()
}

// Stop drops buffered candidates and ends the worker. Safe to call more than once.
func (r *CandidateRelay) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	dropped := len(r.pending)
	r.pending = nil
	r.mu.Unlock()

	r.cancel()
	<-r.done
	r.logger.Debug().
		Int("dropped", dropped).
		Int64("sent", r.sent.Load()).
		Int64("failed", r.failed.Load()).
		Msg("relay stopped")
}

// Sent reports how many candidates the remote side accepted.
func (r *CandidateRelay) Sent() int64 { return r.sent.Load() }

func (r *CandidateRelay) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *CandidateRelay) take() []domain.Candidate {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.armed || r.stopped || len(r.pending) == 0 {
		return nil
	}
	batch := r.pending
	r.pending = nil
	return batch
}

func (r *CandidateRelay) run() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.wake:
		}
		for _, c := range r.take() {
			if r.ctx.Err() != nil {
				return
			}
			r.send(c)
		}
	}
}

func (r *CandidateRelay) send(c domain.Candidate) {
	if err := r.api.RelayCandidate(r.ctx, r.token, r.sessionID, c); err != nil {
		if r.ctx.Err() != nil {
			return
		}
		r.failed.Add(1)
		relayErr := &domain.RelayError{SessionID: r.sessionID, Candidate: c.Data, Err: err}
		r.logger.Warn().Err(relayErr).Bool("remote", domain.IsRemote(err)).Msg("candidate relay failed")
		return
	}
	r.sent.Add(1)
}
