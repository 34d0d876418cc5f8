package processor

import (
	"errors"
	"fmt"
)

// State 一次扫描运行的状态
type State string

const (
	StateIdle          State = "Idle"
	StateUploaded      State = "Uploaded"
	StateTextExtracted State = "TextExtracted"
	StateModelQueried  State = "ModelQueried"
	StateNormalized    State = "Normalized"
	StatePersisted     State = "Persisted"
	StateFailed        State = "Failed"
)

// ErrIllegalTransition 状态机不允许的迁移
var ErrIllegalTransition = errors.New("illegal state transition")

// transitions 合法迁移表，Uploaded 之后的任意非终态都可以进入 Failed
var transitions = map[State][]State{
	StateIdle:          {StateUploaded},
	StateUploaded:      {StateTextExtracted, StateFailed},
	StateTextExtracted: {StateModelQueried, StateFailed},
	StateModelQueried:  {StateNormalized, StateFailed},
	StateNormalized:    {StatePersisted, StateFailed},
}

// Terminal 是否为终态
func (s State) Terminal() bool {
	return s == StatePersisted || s == StateFailed
}

// CanTransition 判断 from -> to 是否合法
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// stateMachine 记录当前状态并拒绝非法迁移
type stateMachine struct {
	current State
}

func newStateMachine() *stateMachine {
	return &stateMachine{current: StateIdle}
}

func (m *stateMachine) State() State {
	return m.current
}

func (m *stateMachine) transition(to State) error {
	if !CanTransition(m.current, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, m.current, to)
	}
	m.current = to
	return nil
}
