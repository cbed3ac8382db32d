// Package heygen talks to the HeyGen streaming avatar REST API.
package heygen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/Avatar/internal/core"
	"github.com/dkeye/Avatar/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL = "https://api.heygen.com"

	pathCreateToken = "/v1/streaming.create_token"
	pathNewSession  = "/v1/streaming.new"
	pathICE         = "/v1/streaming.ice"
	pathStart       = "/v1/streaming.start"
	pathTask        = "/v1/streaming.task"
	pathStop        = "/v1/streaming.stop"

	// taskRepeat asks for verbatim playback rather than conversational reinterpretation.
	taskRepeat = "repeat"
)

// APIError is a rejection reported by the remote service.
type APIError struct {
	Endpoint   string
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("heygen %s: %s", e.Endpoint, msg)
}

func (e *APIError) Remote() bool { return true }

func (e *APIError) RemoteMessage() string { return e.Message }

type Client struct {
	baseURL string
	http    *http.Client
}

var _ core.StreamingAPI = (*Client)(nil)

// NewClient creates a client. A zero timeout leaves calls bounded only by their context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *envelope) hasData() bool {
	return len(e.Data) > 0 && string(e.Data) != "null"
}

func (e *envelope) remoteMessage() string {
	if e.Error != nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return e.Message
}

// post sends body to path and decodes the envelope. A non-2xx status or an error
// payload becomes *APIError; transport and decoding failures are returned as-is.
func (c *Client) post(ctx context.Context, path string, header http.Header, body any) (*envelope, error) {
	var rd io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", path, err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var env envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			if resp.StatusCode >= 300 {
				return nil, &APIError{Endpoint: path, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
			}
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	if resp.StatusCode >= 300 || env.Error != nil {
		return &env, &APIError{
			Endpoint:   path,
			StatusCode: resp.StatusCode,
			Code:       env.Code,
			Message:    env.remoteMessage(),
		}
	}
	return &env, nil
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func (c *Client) CreateToken(ctx context.Context, apiKey string) (string, error) {
	env, err := c.post(ctx, pathCreateToken, http.Header{"X-Api-Key": []string{apiKey}}, nil)
	if err != nil {
		return "", err
	}
	var data struct {
		Token string `json:"token"`
	}
	if env.hasData() {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return "", fmt.Errorf("decode token: %w", err)
		}
	}
	if data.Token == "" {
		return "", &APIError{Endpoint: pathCreateToken, StatusCode: http.StatusOK, Code: env.Code, Message: env.remoteMessage()}
	}
	return data.Token, nil
}

// iceServer accepts "urls" as either a string or a list.
type iceServer struct {
	URLs       urlList `json:"urls"`
	Username   string  `json:"username,omitempty"`
	Credential any     `json:"credential,omitempty"`
}

type urlList []string

func (u *urlList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*u = urlList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*u = many
	return nil
}

func (s iceServer) toWebRTC() webrtc.ICEServer {
	out := webrtc.ICEServer{URLs: []string(s.URLs), Username: s.Username}
	if cred, ok := s.Credential.(string); ok {
		out.Credential = cred
	}
	return out
}

func (c *Client) CreateSession(ctx context.Context, token string, sel domain.AvatarSelection) (*core.CreatedSession, error) {
	body := struct {
		Quality    domain.Quality `json:"quality"`
		AvatarName string         `json:"avatar_name"`
		Voice      struct {
			VoiceID string `json:"voice_id"`
		} `json:"voice"`
	}{Quality: sel.Quality, AvatarName: sel.AvatarName}
	body.Voice.VoiceID = sel.VoiceID

	env, err := c.post(ctx, pathNewSession, bearer(token), body)
	if err != nil {
		return nil, err
	}

	out := &core.CreatedSession{Message: env.remoteMessage()}
	if !env.hasData() {
		return out, nil
	}
	// ice_servers2 carries the TURN relays and is preferred when present.
	var data struct {
		SessionID   string                    `json:"session_id"`
		SDP         webrtc.SessionDescription `json:"sdp"`
		ICEServers  []iceServer               `json:"ice_servers"`
		ICEServers2 []iceServer               `json:"ice_servers2"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	out.SessionID = data.SessionID
	out.Offer = data.SDP
	hints := data.ICEServers2
	if len(hints) == 0 {
		hints = data.ICEServers
	}
	for _, h := range hints {
		if len(h.URLs) > 0 {
			out.ICEServers = append(out.ICEServers, h.toWebRTC())
		}
	}
	log.Debug().Str("module", "heygen").Str("session_id", out.SessionID).Int("ice_servers", len(out.ICEServers)).Msg("session created")
	return out, nil
}

func (c *Client) RelayCandidate(ctx context.Context, token, sessionID string, cand domain.Candidate) error {
	body := struct {
		SessionID string           `json:"session_id"`
		Candidate domain.Candidate `json:"candidate"`
	}{sessionID, cand}
	_, err := c.post(ctx, pathICE, bearer(token), body)
	return err
}

func (c *Client) StartSession(ctx context.Context, token, sessionID string, answer webrtc.SessionDescription) error {
	body := struct {
		SessionID string                    `json:"session_id"`
		SDP       webrtc.SessionDescription `json:"sdp"`
	}{sessionID, answer}
	_, err := c.post(ctx, pathStart, bearer(token), body)
	return err
}

func (c *Client) Speak(ctx context.Context, token, sessionID, text string) error {
	body := struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
		TaskType  string `json:"task_type"`
	}{sessionID, text, taskRepeat}
	_, err := c.post(ctx, pathTask, bearer(token), body)
	return err
}

func (c *Client) StopSession(ctx context.Context, token, sessionID string) error {
	body := struct {
		SessionID string `json:"session_id"`
	}{sessionID}
	_, err := c.post(ctx, pathStop, bearer(token), body)
	return err
}
