// Package media binds the avatar's inbound tracks to their consumers.
package media

import (
	"context"
	"sync"

	"github.com/dkeye/Avatar/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Binder keeps one Fanout per inbound track kind of the current session.
// Every subscriber gets its own writer for each matching track, opened as the
// track arrives and closed when the track or the session ends.
type Binder struct {
	mu      sync.Mutex
	session string
	fanouts map[string]*Fanout
	subs    map[string]subscription
}

type subscription struct {
	kind string
	open SinkOpener
}

var _ core.TrackBinder = (*Binder)(nil)

func NewBinder() *Binder {
	return &Binder{
		fanouts: make(map[string]*Fanout),
		subs:    make(map[string]subscription),
	}
}

func (b *Binder) Bind(ctx context.Context, sessionID string, track *webrtc.TrackRemote) {
	b.Start(ctx, sessionID, track.Kind().String(), track.Codec().MimeType, track)
}

// Start begins draining src. A newer session's track replaces every fan-out of the previous session.
func (b *Binder) Start(ctx context.Context, sessionID, kind, mimeType string, src RTPReader) *Fanout {
	logger := log.With().
		Str("module", "media").
		Str("session_id", sessionID).
		Str("kind", kind).
		Str("mime", mimeType).
		Logger()

	fctx, cancel := context.WithCancel(ctx)
	f := NewFanout(src, kind, mimeType, cancel)

	b.mu.Lock()
	if b.session != sessionID {
		for k, old := range b.fanouts {
			old.markAllDelete()
			old.cancel()
			delete(b.fanouts, k)
		}
		b.session = sessionID
	}
	if old, ok := b.fanouts[kind]; ok {
		logger.Info().Msg("replacing existing fanout for kind")
		old.markAllDelete()
		old.cancel()
	}
	b.fanouts[kind] = f
	for id, s := range b.subs {
		if s.kind == kind {
			attach(f, sessionID, id, s.open, &logger)
		}
	}
	b.mu.Unlock()

	logger.Info().Int("sinks", f.SinkCount()).Msg("starting fanout loop")
	go f.loop(fctx, &logger)
	return f
}

// Subscribe registers open for the current and future tracks of kind.
func (b *Binder) Subscribe(id, kind string, open SinkOpener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[id] = subscription{kind: kind, open: open}
	if f, ok := b.fanouts[kind]; ok {
		logger := log.With().Str("module", "media").Str("session_id", b.session).Str("kind", kind).Logger()
		attach(f, b.session, id, open, &logger)
	}
}

func attach(f *Fanout, sessionID, id string, open SinkOpener, logger *zerolog.Logger) {
	w, err := open(sessionID, f.Kind, f.MimeType)
	if err != nil {
		logger.Error().Err(err).Str("sink", id).Msg("open sink")
		return
	}
	if w == nil {
		return
	}
	if !f.AddSink(id, NewSink(w)) {
		if err := w.Close(); err != nil {
			logger.Warn().Err(err).Str("sink", id).Msg("close sink")
		}
	}
}

// Release tears down every fan-out of sessionID.
func (b *Binder) Release(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != sessionID {
		return
	}
	for k, f := range b.fanouts {
		f.markAllDelete()
		f.cancel()
		delete(b.fanouts, k)
	}
}

// Fanout returns the active fan-out for kind, if any.
func (b *Binder) Fanout(kind string) (*Fanout, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.fanouts[kind]
	return f, ok
}
