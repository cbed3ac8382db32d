package media

import (
	"sync/atomic"

	"github.com/pion/rtp"
)

type SinkState int32

const (
	SinkStateOk SinkState = iota
	SinkStateDelete
)

// PacketWriter is satisfied by pion's ivfwriter and oggwriter.
type PacketWriter interface {
	WriteRTP(p *rtp.Packet) error
	Close() error
}

// SinkOpener opens a writer for one track of one session. A nil writer with
// a nil error means the track is not wanted.
type SinkOpener func(sessionID, kind, mimeType string) (PacketWriter, error)

// Sink is a single downstream consumer of an inbound avatar track.
type Sink struct {
	W     PacketWriter
	state atomic.Int32 // Zero by default (SinkStateOk)
}

func NewSink(w PacketWriter) *Sink {
	return &Sink{W: w}
}

func (s *Sink) GetState() SinkState {
	return SinkState(s.state.Load())
}

func (s *Sink) MarkDelete() {
	s.state.Store(int32(SinkStateDelete))
}
