package signal

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Avatar/internal/core/mocks"
	"github.com/dkeye/Avatar/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type testServer struct {
	ctl *SignalWSController
	url string
}

func newTestServer(t *testing.T, avatar *mocks.MockAvatarService, opts Options) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctl := NewSignalWSController(context.Background(), avatar, opts)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		c.Set("client_token", c.Query("id"))
		ctl.HandleSignal(c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{ctl: ctl, url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?id="}
}

func (s *testServer) dial(t *testing.T, id string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.url+id, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func idleAvatar(t *testing.T) *mocks.MockAvatarService {
	ctrl := gomock.NewController(t)
	avatar := mocks.NewMockAvatarService(ctrl)
	avatar.EXPECT().Status().Return(domain.Status{State: domain.StateIdle}).AnyTimes()
	return avatar
}

func TestSignal_StatusOnConnect(t *testing.T) {
	srv := newTestServer(t, idleAvatar(t), Options{})
	conn := srv.dial(t, "c1")

	msg := readMsg(t, conn)
	assert.Equal(t, "status", msg["type"])
	assert.Equal(t, "idle", msg["state"])
	assert.Equal(t, 1, srv.ctl.Clients.Count())
}

func TestSignal_Ping(t *testing.T) {
	srv := newTestServer(t, idleAvatar(t), Options{})
	conn := srv.dial(t, "c1")
	readMsg(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, "pong", readMsg(t, conn)["type"])
}

func TestSignal_UnknownAndMalformed(t *testing.T) {
	srv := newTestServer(t, idleAvatar(t), Options{})
	conn := srv.dial(t, "c1")
	readMsg(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{nope")))
	assert.Equal(t, "bad_payload", readMsg(t, conn)["error"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "join"}))
	assert.Equal(t, "unknown_type", readMsg(t, conn)["error"])
}

// replyWith answers a queued utterance at once with res and err.
func replyWith(res domain.SpeechResult, err error) func(string, func(domain.SpeechResult, error)) {
	return func(_ string, done func(domain.SpeechResult, error)) { done(res, err) }
}

func TestSignal_Utterance(t *testing.T) {
	avatar := idleAvatar(t)
	gomock.InOrder(
		avatar.EXPECT().NotifyUtterance("Hello", gomock.Any()).Do(replyWith(domain.SpeechResult{Outcome: domain.SpeechAcknowledged}, nil)),
		avatar.EXPECT().NotifyUtterance("Hello", gomock.Any()).Do(replyWith(domain.SpeechResult{Outcome: domain.SpeechSkipped, Reason: domain.SkipDuplicate}, nil)),
	)
	srv := newTestServer(t, avatar, Options{})
	conn := srv.dial(t, "c1")
	readMsg(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "utterance", "text": "Hello"}))
	msg := readMsg(t, conn)
	assert.Equal(t, "speech", msg["type"])
	assert.Equal(t, "acknowledged", msg["outcome"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "utterance", "text": "Hello"}))
	msg = readMsg(t, conn)
	assert.Equal(t, "skipped", msg["outcome"])
	assert.Equal(t, "duplicate", msg["reason"])
}

func TestSignal_UtteranceFailure(t *testing.T) {
	avatar := idleAvatar(t)
	avatar.EXPECT().NotifyUtterance("Hello", gomock.Any()).Do(replyWith(domain.SpeechResult{}, &domain.SpeechError{Reason: domain.SpeechUnavailable}))
	srv := newTestServer(t, avatar, Options{})
	conn := srv.dial(t, "c1")
	readMsg(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "utterance", "text": "Hello"}))
	msg := readMsg(t, conn)
	assert.Equal(t, "speak_failed", msg["error"])
	assert.Equal(t, false, msg["remote"])
}

func TestSignal_UtteranceRateLimited(t *testing.T) {
	avatar := idleAvatar(t)
	avatar.EXPECT().NotifyUtterance(gomock.Any(), gomock.Any()).Do(replyWith(domain.SpeechResult{Outcome: domain.SpeechAcknowledged}, nil)).Times(1)
	srv := newTestServer(t, avatar, Options{Limiter: NewRateLimiter(1, time.Minute)})
	conn := srv.dial(t, "c1")
	readMsg(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "utterance", "text": "one"}))
	assert.Equal(t, "speech", readMsg(t, conn)["type"])
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "utterance", "text": "two"}))
	assert.Equal(t, "rate_limited", readMsg(t, conn)["error"])
}

func TestSignal_Close(t *testing.T) {
	ctrl := gomock.NewController(t)
	avatar := mocks.NewMockAvatarService(ctrl)
	gomock.InOrder(
		avatar.EXPECT().Status().Return(domain.Status{State: domain.StateLive}),
		avatar.EXPECT().Close(),
		avatar.EXPECT().Status().Return(domain.Status{State: domain.StateClosed, Diagnostic: "Stopped"}),
	)
	srv := newTestServer(t, avatar, Options{})
	conn := srv.dial(t, "c1")
	readMsg(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "close"}))
	msg := readMsg(t, conn)
	assert.Equal(t, "closed", msg["state"])
	assert.Equal(t, "Stopped", msg["diagnostic"])
}

func TestSignal_OpenFailureIsReported(t *testing.T) {
	avatar := idleAvatar(t)
	avatar.EXPECT().Open(gomock.Any()).Return(&domain.AuthError{Reason: domain.AuthMissingCredential})
	srv := newTestServer(t, avatar, Options{})
	conn := srv.dial(t, "c1")
	readMsg(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "open"}))
	msg := readMsg(t, conn)
	assert.Equal(t, "open_failed", msg["error"])
	assert.Contains(t, msg["message"], "missing API credential")
}

func TestSignal_RunBroadcastsStatus(t *testing.T) {
	avatar := idleAvatar(t)
	updates := make(chan domain.Status, 1)
	avatar.EXPECT().Subscribe().Return((<-chan domain.Status)(updates), func() {})
	srv := newTestServer(t, avatar, Options{})

	a := srv.dial(t, "a")
	b := srv.dial(t, "b")
	readMsg(t, a)
	readMsg(t, b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.ctl.Run(ctx)

	updates <- domain.Status{State: domain.StateLive, Diagnostic: "Avatar connected!", SessionID: "S"}
	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMsg(t, conn)
		assert.Equal(t, "live", msg["state"])
		assert.Equal(t, "S", msg["session_id"])
	}
}

func TestSignal_ReconnectReplacesConnection(t *testing.T) {
	srv := newTestServer(t, idleAvatar(t), Options{})
	first := srv.dial(t, "c1")
	readMsg(t, first)
	second := srv.dial(t, "c1")
	readMsg(t, second)

	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	assert.Error(t, err, "the replaced connection must be closed")
	assert.Equal(t, 1, srv.ctl.Clients.Count())
}
