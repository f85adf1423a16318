package piper

// State is the lifecycle state of an Engine.
type State int32

const (
	// StateUninitialized is the zero value, before the process is spawned.
	StateUninitialized State = iota
	// StateRunning means the process is alive and idle.
	StateRunning
	// StateAwaitingCompletion means a request was written and the engine is
	// waiting for the completion line.
	StateAwaitingCompletion
	// StateTerminated is absorbing: the process is gone.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateAwaitingCompletion:
		return "awaiting-completion"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
