package signal

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/Avatar/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(conn, resp)
}

// handleUtterance queues a reply the chat collaborator just produced. Replies
// are spoken in arrival order; the outcome is sent back once it is known.
func (ctl *SignalWSController) handleUtterance(
	id ClientID,
	conn *WsSignalConn,
	data []byte,
) {
	type utterancePayload struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	var p utterancePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad utterance payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if !ctl.Limiter.Allow(id) {
		log.Warn().Str("module", "signal").Str("client", string(id)).Msg("utterance rate limited")
		ctl.sendError(conn, "rate_limited")
		return
	}

	ctl.Avatar.NotifyUtterance(p.Text, func(res domain.SpeechResult, err error) {
		ctl.replyUtterance(conn, res, err)
	})
}

func (ctl *SignalWSController) replyUtterance(conn *WsSignalConn, res domain.SpeechResult, err error) {
	if err != nil {
		resp := map[string]any{
			"type":   "error",
			"error":  "speak_failed",
			"remote": domain.IsRemote(err),
		}
		var speechErr *domain.SpeechError
		if errors.As(err, &speechErr) {
			resp["message"] = speechErr.Error()
		}
		ctl.sendJSON(conn, resp)
		return
	}
	resp := struct {
		Type string `json:"type"`
		domain.SpeechResult
	}{
		Type:         "speech",
		SpeechResult: res,
	}
	ctl.sendJSON(conn, resp)
}

// handleOpen starts a session in the background; progress arrives as status frames.
func (ctl *SignalWSController) handleOpen(id ClientID, conn *WsSignalConn) {
	log.Info().Str("module", "signal").Str("client", string(id)).Msg("open requested")
	go func() {
		err := ctl.Avatar.Open(ctl.base)
		if err == nil || errors.Is(err, domain.ErrSessionClosed) {
			return
		}
		ctl.sendJSON(conn, map[string]any{
			"type":    "error",
			"error":   "open_failed",
			"message": err.Error(),
		})
	}()
}

func (ctl *SignalWSController) handleClose(id ClientID, conn *WsSignalConn) {
	log.Info().Str("module", "signal").Str("client", string(id)).Msg("close requested")
	ctl.Avatar.Close()
	ctl.sendJSON(conn, statusFrame(ctl.Avatar.Status()))
}
