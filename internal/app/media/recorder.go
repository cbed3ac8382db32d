package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog/log"
)

const (
	opusSampleRate = 48000
	opusChannels   = 2
)

// Recorder saves each session's avatar stream under Dir: VP8 video as
// <session>-video.ivf and Opus audio as <session>-audio.ogg.
type Recorder struct {
	Dir string
}

func NewRecorder(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recorder dir: %w", err)
	}
	return &Recorder{Dir: dir}, nil
}

// Attach subscribes the recorder to both track kinds of b.
func (r *Recorder) Attach(b *Binder) {
	b.Subscribe("recorder-video", webrtc.RTPCodecTypeVideo.String(), r.Open)
	b.Subscribe("recorder-audio", webrtc.RTPCodecTypeAudio.String(), r.Open)
}

// Open is a SinkOpener. Codecs without a container writer are skipped.
func (r *Recorder) Open(sessionID, kind, mimeType string) (PacketWriter, error) {
	name := filepath.Join(r.Dir, filepath.Base(sessionID)+"-"+kind)
	switch {
	case strings.EqualFold(mimeType, webrtc.MimeTypeVP8):
		w, err := ivfwriter.New(name + ".ivf")
		if err != nil {
			return nil, err
		}
		return w, nil
	case strings.EqualFold(mimeType, webrtc.MimeTypeOpus):
		w, err := oggwriter.New(name+".ogg", opusSampleRate, opusChannels)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
	log.Info().Str("module", "media").Str("session_id", sessionID).Str("mime", mimeType).Msg("codec not recordable, skipping")
	return nil, nil
}
