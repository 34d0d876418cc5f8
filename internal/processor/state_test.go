package processor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachine_HappyPath(t *testing.T) {
	m := newStateMachine()
	assert.Equal(t, StateIdle, m.State())
	for _, s := range []State{StateUploaded, StateTextExtracted, StateModelQueried, StateNormalized, StatePersisted} {
		require.NoError(t, m.transition(s))
	}
	assert.True(t, m.State().Terminal())
}

func TestStateMachine_IllegalTransitions(t *testing.T) {
	cases := []struct {
		from, to State
	}{
		{StateIdle, StateFailed},
		{StateIdle, StateTextExtracted},
		{StateUploaded, StateModelQueried},
		{StateTextExtracted, StatePersisted},
		{StatePersisted, StateFailed},
		{StateFailed, StateUploaded},
		{StateNormalized, StateNormalized},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			m := &stateMachine{current: tc.from}
			err := m.transition(tc.to)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrIllegalTransition))
			assert.Equal(t, tc.from, m.State())
		})
	}
}

func TestStateMachine_AnyActiveStateCanFail(t *testing.T) {
	for _, s := range []State{StateUploaded, StateTextExtracted, StateModelQueried, StateNormalized} {
		assert.True(t, CanTransition(s, StateFailed), s)
	}
}

func TestScanError(t *testing.T) {
	cause := errors.New("disk full")
	err := NewPersistenceError("run-1", cause)

	assert.ErrorIs(t, err, ErrPersistenceFailure)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrModelFailure)
	assert.Equal(t, KindIOError, KindOf(err))
	assert.Contains(t, err.Error(), "run-1")
	assert.Contains(t, err.Error(), "disk full")

	cfgErr := NewConfigurationError(errors.New("missing key"))
	assert.ErrorIs(t, cfgErr, ErrConfigurationFailure)
	assert.Equal(t, KindMissingCredential, KindOf(cfgErr))
	assert.Equal(t, ErrorKind(""), KindOf(cause))
}

func TestStatusLog_ForwardsToReporter(t *testing.T) {
	var got []Status
	l := &statusLog{runID: "r", reporter: ReporterFunc(func(runID string, st Status) {
		assert.Equal(t, "r", runID)
		got = append(got, st)
	})}
	l.emit(LevelInfo, CodeUploaded, "File uploaded successfully!")
	l.emit(LevelWarning, CodeDuplicateSkipped, "dup")

	snap := l.snapshot()
	assert.Equal(t, got, snap)
	snap[0].Code = "mutated"
	assert.Equal(t, CodeUploaded, l.snapshot()[0].Code)
}
