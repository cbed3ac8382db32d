package avatar

import (
	"context"
	"sync"

	"github.com/dkeye/Avatar/internal/core"
	"github.com/dkeye/Avatar/internal/domain"
	"github.com/rs/zerolog/log"
)

const diagPreviewLen = 50

// SpeechDispatcher forwards utterances to the live session one at a time and
// never sends the same text twice in direct succession.
type SpeechDispatcher struct {
	api     core.StreamingAPI
	machine *StateMachine

	mu sync.Mutex
}

func NewSpeechDispatcher(api core.StreamingAPI, machine *StateMachine) *SpeechDispatcher {
	return &SpeechDispatcher{api: api, machine: machine}
}

func skipped(reason domain.SkipReason) domain.SpeechResult {
	return domain.SpeechResult{Outcome: domain.SpeechSkipped, Reason: reason}
}

// Speak dispatches text into s. s may be nil when no session was ever opened.
// Utterances are not queued: anything requested outside Live is skipped.
func (d *SpeechDispatcher) Speak(ctx context.Context, s *Session, text string) (domain.SpeechResult, error) {
	task := domain.NewSpeechTask(text)
	if task.Empty() {
		return skipped(domain.SkipEmpty), nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if s == nil || s.Closed() || !d.machine.IsLive(s.gen) {
		log.Info().
			Str("module", "avatar.speech").
			Err(domain.ErrNoActiveSession).
			Str("state", d.machine.State().String()).
			Msg("utterance skipped")
		return skipped(domain.SkipNotLive), nil
	}
	if last, ok := s.LastSpoken(); ok && last == task.DedupeKey() {
		log.Debug().Str("module", "avatar.speech").Str("session_id", s.ID()).Msg("duplicate utterance skipped")
		return skipped(domain.SkipDuplicate), nil
	}

	logger := log.With().Str("module", "avatar.speech").Str("session_id", s.ID()).Logger()
	d.machine.Diagnose(s.gen, "Speaking...")
	if err := d.api.Speak(ctx, s.Token(), s.ID(), task.Text); err != nil {
		reason := domain.SpeechUnavailable
		if domain.IsRemote(err) {
			reason = domain.SpeechRemoteRejected
		}
		speechErr := &domain.SpeechError{Reason: reason, Message: domain.RemoteMessage(err), Err: err}
		d.machine.Diagnose(s.gen, "Speak error: "+speechErr.Error())
		logger.Warn().Err(speechErr).Msg("utterance rejected")
		return domain.SpeechResult{}, speechErr
	}

	s.setLastSpoken(task.DedupeKey())
	d.machine.Diagnose(s.gen, "Sent to avatar: "+preview(task.Text))
	logger.Info().Int("chars", len(task.Text)).Msg("utterance dispatched")
	return domain.SpeechResult{Outcome: domain.SpeechAcknowledged}, nil
}

func preview(text string) string {
	r := []rune(text)
	if len(r) <= diagPreviewLen {
		return text
	}
	return string(r[:diagPreviewLen]) + "..."
}
