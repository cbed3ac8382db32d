package signal

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

type clientEntry struct {
	Conn   *WsSignalConn
	Cancel context.CancelFunc
}

func (e *clientEntry) stop() {
	if e.Cancel != nil {
		e.Cancel()
	}
	e.Conn.Close()
}

// Registry tracks the one live websocket of every client.
type Registry struct {
	mu      sync.RWMutex
	clients map[ClientID]*clientEntry
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[ClientID]*clientEntry)}
}

// Bind registers conn for id. When id already had a connection, the returned
// func stops it; otherwise it is nil.
func (r *Registry) Bind(id ClientID, conn *WsSignalConn, cancel context.CancelFunc) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.clients[id]
	r.clients[id] = &clientEntry{Conn: conn, Cancel: cancel}
	log.Info().Str("module", "signal.registry").Str("client", string(id)).Int("clients", len(r.clients)).Msg("bound client")
	if prev == nil {
		return nil
	}
	return prev.stop
}

// Unbind forgets id, but only while conn is still its current connection.
func (r *Registry) Unbind(id ClientID, conn *WsSignalConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.clients[id]; ok && e.Conn == conn {
		delete(r.clients, id)
		log.Info().Str("module", "signal.registry").Str("client", string(id)).Msg("unbind client")
	}
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

type regSnap struct {
	ID   ClientID
	Conn *WsSignalConn
}

func (r *Registry) Snapshot() []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0, len(r.clients))
	for id, e := range r.clients {
		out = append(out, regSnap{ID: id, Conn: e.Conn})
	}
	return out
}

// Cancel stops the connection of id. It reports false when id is not connected.
func (r *Registry) Cancel(id ClientID) bool {
	r.mu.RLock()
	e, ok := r.clients[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	e.stop()
	log.Info().Str("module", "signal.registry").Str("client", string(id)).Msg("canceled client")
	return true
}
