package engine

import "sync"

// State tracks the engine lifecycle.
type State int

const (
	Uninitialized State = iota
	Running
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateChange is pushed to subscribers on every transition. Reason is
// non-nil only for Failed.
type StateChange struct {
	State  State
	Reason error
}

// stateMachine serializes transitions and notifies subscribers. Touched only
// from control contexts, never from audio callbacks.
type stateMachine struct {
	mu     sync.RWMutex
	state  State
	reason error
	subs   []func(StateChange)
}

func (m *stateMachine) current() (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state, m.reason
}

func (m *stateMachine) subscribe(fn func(StateChange)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// transition flips the state and fires subscribers outside the lock.
func (m *stateMachine) transition(s State, reason error) {
	m.mu.Lock()
	m.state = s
	m.reason = reason
	subs := make([]func(StateChange), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	change := StateChange{State: s, Reason: reason}
	for _, fn := range subs {
		fn(change)
	}
}
