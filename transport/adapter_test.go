package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/risa-org/wsc/errs"
)

func TestStateStringsAreDistinct(t *testing.T) {
	states := []State{StateIdle, StateConnecting, StateOpen, StateClosed}
	seen := make(map[string]bool)
	for _, s := range states {
		str := s.String()
		if seen[str] {
			t.Errorf("duplicate State.String() value: %s", str)
		}
		seen[str] = true
	}
}

func TestNotOpenErrCarriesStateKindAndCause(t *testing.T) {
	err := NotOpenErr("send")

	var e *errs.Error
	require := errors.As(err, &e)
	assert.True(t, require)
	assert.Equal(t, errs.KindState, e.Kind)
	assert.False(t, e.Retryable)
	assert.True(t, errors.Is(err, ErrNotOpen))
}

func TestEventCarriesMessageData(t *testing.T) {
	ev := Event{Kind: KindMessage, Data: []byte(`{"type":"hi"}`)}
	assert.Equal(t, KindMessage, ev.Kind)
	assert.Equal(t, []byte(`{"type":"hi"}`), ev.Data)
}
