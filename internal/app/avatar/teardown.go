package avatar

import (
	"context"
	"time"

	"github.com/dkeye/Avatar/internal/core"
	"github.com/dkeye/Avatar/internal/domain"
	"github.com/rs/zerolog/log"
)

const defaultTeardownTimeout = 5 * time.Second

// Teardown releases a session exactly once. Every step is best effort and
// independent of the others; nothing here is reported to the caller.
type Teardown struct {
	api     core.StreamingAPI
	machine *StateMachine
	timeout time.Duration
	binder  core.TrackBinder
}

func NewTeardown(api core.StreamingAPI, machine *StateMachine, timeout time.Duration) *Teardown {
	if timeout <= 0 {
		timeout = defaultTeardownTimeout
	}
	return &Teardown{api: api, machine: machine, timeout: timeout}
}

// Close drives the machine through Closing to Closed and releases s (which may be nil).
func (t *Teardown) Close(s *Session) {
	gen, ok := t.machine.Close("Stopping...")
	if s != nil {
		t.Release(s)
	}
	if ok {
		if err := t.machine.Advance(gen, domain.StateClosed, "Stopped"); err != nil {
			log.Debug().Str("module", "avatar.teardown").Err(err).Msg("close superseded")
		}
	}
}

// Release stops the remote session, closes the endpoint and relay and forgets
// the last utterance. The state machine is left untouched.
func (t *Teardown) Release(s *Session) {
	s.releaseOnce.Do(func() {
		id, token, ep, relay := s.close()
		logger := log.With().Str("module", "avatar.teardown").Str("session_id", id).Logger()

		if id != "" {
			t.stopRemote(token, id)
		}
		if relay != nil {
			relay.Stop()
		}
		if ep != nil {
			if err := ep.Close(); err != nil {
				logger.Warn().Err(&domain.TeardownError{Step: "close_endpoint", Err: err}).Msg("teardown step failed")
			}
		}
		if t.binder != nil && id != "" {
			t.binder.Release(id)
		}
		logger.Info().Msg("session released")
	})
}

func (t *Teardown) stopRemote(token, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	if err := t.api.StopSession(ctx, token, id); err != nil {
		log.Warn().
			Str("module", "avatar.teardown").
			Str("session_id", id).
			Err(&domain.TeardownError{Step: "stop_remote", Err: err}).
			Msg("teardown step failed")
	}
}
