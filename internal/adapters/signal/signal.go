// Package signal is the websocket surface of the avatar: it pushes every
// status change to connected clients and accepts utterances and lifecycle
// commands from them.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Avatar/internal/core"
	"github.com/dkeye/Avatar/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Frame is one encoded websocket text message.
type Frame []byte

// ClientID is the cookie-backed identity of a browser.
type ClientID string

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
	Limiter    *RateLimiter
	Policy     Policy
}

type SignalWSController struct {
	Avatar  core.AvatarService
	Clients *Registry
	Limiter *RateLimiter
	Policy  Policy

	// base outlives single requests; sessions opened over the socket live on it.
	base       context.Context
	readLimit  int64
	pingPeriod time.Duration
	sendBuffer int
}

func NewSignalWSController(base context.Context, avatar core.AvatarService, opts Options) *SignalWSController {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	if opts.Policy == nil {
		opts.Policy = SimplePolicy{MaxMisses: 8}
	}
	return &SignalWSController{
		Avatar:     avatar,
		Clients:    NewRegistry(),
		Limiter:    opts.Limiter,
		Policy:     opts.Policy,
		base:       base,
		readLimit:  opts.ReadLimit,
		pingPeriod: opts.PingPeriod,
		sendBuffer: opts.SendBuffer,
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan Frame

	misses atomic.Int32

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
		c.misses.Store(0)
	default:
		c.misses.Add(1)
		return ErrBackpressure
	}
	return nil
}

// Misses is the number of frames dropped in a row because the client is not reading.
func (c *WsSignalConn) Misses() int { return int(c.misses.Load()) }

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// Run forwards every avatar status change to all connected clients until ctx ends.
func (ctl *SignalWSController) Run(ctx context.Context) {
	ch, cancel := ctl.Avatar.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("status broadcast stopped")
			return
		case st, ok := <-ch:
			if !ok {
				return
			}
			ctl.Broadcast(statusFrame(st))
		}
	}
}

// Broadcast sends v to every connected client and applies the backpressure policy.
func (ctl *SignalWSController) Broadcast(v any) {
	b, err := encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("broadcast marshal")
		return
	}
	for _, snap := range ctl.Clients.Snapshot() {
		err := snap.Conn.TrySend(b)
		if !errors.Is(err, ErrBackpressure) {
			continue
		}
		switch ctl.Policy.OnBackpressure(snap.ID, snap.Conn) {
		case Disconnect:
			log.Warn().Str("module", "signal").Str("client", string(snap.ID)).Int("misses", snap.Conn.Misses()).Msg("slow client disconnected")
			ctl.Clients.Cancel(snap.ID)
		case DropFrame:
			log.Debug().Str("module", "signal").Str("client", string(snap.ID)).Msg("frame dropped for slow client")
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(c *gin.Context) {
	id := ClientID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("client", string(id)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.readLimit > 0 {
		ws.SetReadLimit(ctl.readLimit)
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan Frame, ctl.sendBuffer),
	}

	ctx, cancel := context.WithCancel(ctl.base)
	if prev := ctl.Clients.Bind(id, conn, cancel); prev != nil {
		log.Info().Str("module", "signal").Str("client", string(id)).Msg("replacing previous connection")
		prev()
	}

	ctl.sendJSON(conn, statusFrame(ctl.Avatar.Status()))

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, id, conn)
}

// statusMessage is pushed on connect and on every state or diagnostic change.
type statusMessage struct {
	Type string `json:"type"`
	domain.Status
}

func statusFrame(st domain.Status) statusMessage {
	return statusMessage{Type: "status", Status: st}
}
