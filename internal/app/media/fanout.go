package media

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// RTPReader is the read side of *webrtc.TrackRemote.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Fanout drains one inbound track and forwards each packet to its sinks.
// A track with no sinks is still drained so the receiver never stalls.
// Sinks are written and closed only by the loop goroutine.
type Fanout struct {
	Src      RTPReader
	Kind     string
	MimeType string

	mu     sync.RWMutex
	sinks  map[string]*Sink
	closed bool

	packets atomic.Uint64
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewFanout(src RTPReader, kind, mimeType string, cancel context.CancelFunc) *Fanout {
	return &Fanout{
		Src:      src,
		Kind:     kind,
		MimeType: mimeType,
		sinks:    make(map[string]*Sink),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// loop reads RTP packets from the source track and forwards them to all sinks.
func (f *Fanout) loop(ctx context.Context, logger *zerolog.Logger) {
	defer close(f.done)
	defer f.closeAll(logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Uint64("packets", f.packets.Load()).Msg("fanout ctx done, closing sinks")
			return
		default:
		}
		pkt, _, err := f.Src.ReadRTP()
		if err != nil {
			logger.Info().Err(err).Uint64("packets", f.packets.Load()).Msg("fanout read ended")
			return
		}
		f.packets.Add(1)
		f.forward(pkt, logger)
	}
}

func (f *Fanout) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	f.mu.RLock()
	snapshot := make(map[string]*Sink, len(f.sinks))
	maps.Copy(snapshot, f.sinks)
	f.mu.RUnlock()

	dirty := make([]string, 0, len(snapshot))
	for id, s := range snapshot {
		if s.GetState() == SinkStateDelete {
			dirty = append(dirty, id)
			continue
		}
		if err := s.W.WriteRTP(pkt); err != nil {
			logger.Error().
				Err(err).
				Str("sink", id).
				Msg("fanout write RTP error, marking sink as delete")
			s.MarkDelete()
			dirty = append(dirty, id)
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		f.cleanupDeleted(dirty, logger)
	}
}

func (f *Fanout) cleanupDeleted(dirty []string, logger *zerolog.Logger) {
	f.mu.Lock()
	removed := make(map[string]*Sink, len(dirty))
	for _, id := range dirty {
		if s, ok := f.sinks[id]; ok {
			removed[id] = s
			delete(f.sinks, id)
		}
	}
	f.mu.Unlock()
	closeSinks(removed, logger)
}

// closeAll drops and closes every sink once the source is gone.
func (f *Fanout) closeAll(logger *zerolog.Logger) {
	f.mu.Lock()
	sinks := f.sinks
	f.sinks = make(map[string]*Sink)
	f.closed = true
	f.mu.Unlock()
	for _, s := range sinks {
		s.MarkDelete()
	}
	closeSinks(sinks, logger)
}

func closeSinks(sinks map[string]*Sink, logger *zerolog.Logger) {
	for id, s := range sinks {
		if err := s.W.Close(); err != nil {
			logger.Warn().Err(err).Str("sink", id).Msg("close sink")
		}
	}
}

func (f *Fanout) markAllDelete() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sinks {
		s.MarkDelete()
	}
}

// AddSink attaches s and reports false once the loop has ended; the caller
// then still owns s.
func (f *Fanout) AddSink(id string, s *Sink) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.sinks[id] = s
	return true
}

func (f *Fanout) SinkCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sinks)
}

// Packets reports how many packets were read from the source so far.
func (f *Fanout) Packets() uint64 { return f.packets.Load() }

// Done is closed once the read loop has exited.
func (f *Fanout) Done() <-chan struct{} { return f.done }
