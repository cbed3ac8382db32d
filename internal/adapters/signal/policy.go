package signal

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	Disconnect
)

// Policy decides what happens to a client whose send buffer is full.
type Policy interface {
	OnBackpressure(id ClientID, conn *WsSignalConn) BackpressureAction
}

// SimplePolicy drops frames until a client has missed MaxMisses in a row, then disconnects it.
type SimplePolicy struct {
	MaxMisses int
}

func (p SimplePolicy) OnBackpressure(_ ClientID, conn *WsSignalConn) BackpressureAction {
	if p.MaxMisses > 0 && conn.Misses() >= p.MaxMisses {
		return Disconnect
	}
	return DropFrame
}
