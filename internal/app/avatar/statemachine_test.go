package avatar

import (
	"testing"

	"github.com/dkeye/Avatar/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachine_Begin(t *testing.T) {
	m := NewStateMachine()
	assert.Equal(t, domain.StateIdle, m.State())

	gen, err := m.Begin("Starting...")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)
	assert.Equal(t, domain.Status{State: domain.StateAuthenticating, Diagnostic: "Starting..."}, m.Status())

	_, err = m.Begin("")
	assert.ErrorIs(t, err, ErrIllegalTransition, "a session is already in progress")
}

func TestStateMachine_BeginResetsStatus(t *testing.T) {
	m := NewStateMachine()
	gen, err := m.Begin("")
	require.NoError(t, err)
	m.SetSessionID(gen, "S")
	require.NoError(t, m.Advance(gen, domain.StateFailed, "Error: boom"))

	gen2, err := m.Begin("Starting...")
	require.NoError(t, err)
	assert.Equal(t, gen+1, gen2)
	st := m.Status()
	assert.Empty(t, st.SessionID)
	assert.Equal(t, "Starting...", st.Diagnostic)
}

func TestStateMachine_IllegalTransitions(t *testing.T) {
	m := NewStateMachine()
	gen, err := m.Begin("")
	require.NoError(t, err)

	assert.ErrorIs(t, m.Advance(gen, domain.StateLive, ""), ErrIllegalTransition)
	assert.ErrorIs(t, m.Advance(gen, domain.StateIdle, ""), ErrIllegalTransition)
	assert.Equal(t, domain.StateAuthenticating, m.State())
}

func TestStateMachine_StaleGeneration(t *testing.T) {
	m := NewStateMachine()
	old, err := m.Begin("")
	require.NoError(t, err)
	_, ok := m.Close("")
	require.True(t, ok)
	require.NoError(t, m.Advance(old, domain.StateClosed, ""))

	cur, err := m.Begin("")
	require.NoError(t, err)

	assert.ErrorIs(t, m.Advance(old, domain.StateNegotiating, ""), ErrStaleSession)
	assert.False(t, m.AdvanceFrom(old, domain.StateAuthenticating, domain.StateNegotiating, ""))
	m.Diagnose(old, "late")
	m.SetSessionID(old, "OLD")

	st := m.Status()
	assert.Equal(t, domain.StateAuthenticating, st.State)
	assert.NotEqual(t, "late", st.Diagnostic)
	assert.Empty(t, st.SessionID)
	assert.False(t, m.IsLive(old))
	assert.NoError(t, m.Advance(cur, domain.StateNegotiating, ""))
}

func TestStateMachine_AdvanceFrom(t *testing.T) {
	m := NewStateMachine()
	s := liveSession(t, m)

	assert.False(t, m.AdvanceFrom(s.gen, domain.StateConnecting, domain.StateLive, "again"))
	assert.True(t, m.IsLive(s.gen))
	assert.True(t, m.AdvanceFrom(s.gen, domain.StateLive, domain.StateFailed, "down"))
	assert.Equal(t, "down", m.Status().Diagnostic)
}

func TestStateMachine_Close(t *testing.T) {
	m := NewStateMachine()

	gen, ok := m.Close("Stopping...")
	require.True(t, ok, "idle can be closed")
	require.NoError(t, m.Advance(gen, domain.StateClosed, "Stopped"))

	_, ok = m.Close("Stopping...")
	assert.False(t, ok, "closed cannot be closed again")
	assert.Equal(t, "Stopped", m.Status().Diagnostic)
}

func TestStateMachine_Subscribe(t *testing.T) {
	m := NewStateMachine()
	ch, cancel := m.Subscribe(8)

	first := <-ch
	assert.Equal(t, domain.StateIdle, first.State)

	gen, err := m.Begin("a")
	require.NoError(t, err)
	m.Diagnose(gen, "b")
	require.NoError(t, m.Advance(gen, domain.StateNegotiating, "c"))

	var diags []string
	for i := 0; i < 3; i++ {
		diags = append(diags, (<-ch).Diagnostic)
	}
	assert.Equal(t, []string{"a", "b", "c"}, diags)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestStateMachine_SlowSubscriberKeepsLatest(t *testing.T) {
	m := NewStateMachine()
	ch, cancel := m.Subscribe(1)
	defer cancel()

	gen, err := m.Begin("")
	require.NoError(t, err)
	for _, d := range []string{"one", "two", "three"} {
		m.Diagnose(gen, d)
	}

	st := <-ch
	assert.Equal(t, "three", st.Diagnostic)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected status %+v", extra)
	default:
	}
}

func TestStateMachine_Superseded(t *testing.T) {
	m := NewStateMachine()
	gen, err := m.Begin("")
	require.NoError(t, err)
	assert.False(t, m.Superseded(gen))
	require.NoError(t, m.Advance(gen, domain.StateFailed, "Error: boom"))
	assert.False(t, m.Superseded(gen), "a failed session is still current")

	gen2, err := m.Begin("")
	require.NoError(t, err)
	assert.True(t, m.Superseded(gen))

	_, ok := m.Close("Stopping...")
	require.True(t, ok)
	assert.True(t, m.Superseded(gen2), "closing")
	require.NoError(t, m.Advance(gen2, domain.StateClosed, "Stopped"))
	assert.True(t, m.Superseded(gen2), "closed")
}
