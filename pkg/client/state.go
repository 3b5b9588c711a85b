package client

// State is the sync loop lifecycle state.
type State int32

const (
	// StateInit is the constructed-but-not-started state.
	StateInit State = iota
	// StateHandshakePending means the loop is up but the one-time startup
	// handshake has not been acknowledged yet; no metrics are synced.
	StateHandshakePending
	// StateRunning is the steady state: snapshot and sync on each tick.
	StateRunning
	// StateDraining is the bounded final flush during shutdown.
	StateDraining
	// StateStopped is terminal.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateHandshakePending:
		return "handshake_pending"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
