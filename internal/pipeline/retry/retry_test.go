package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify_ExplicitMarkers(t *testing.T) {
	transient := Classify(Transient(errors.New("publish timed out")))
	assert.Equal(t, ClassTransient, transient.Class)
	assert.Equal(t, "explicit_transient", transient.Reason)

	terminal := Classify(Terminal(errors.New("connection refused")))
	assert.Equal(t, ClassTerminal, terminal.Class)
	assert.Equal(t, "explicit_terminal", terminal.Reason)
}

func TestClassify_TransportErrors(t *testing.T) {
	testCases := []struct {
		name          string
		err           error
		expectedClass Class
		reason        string
	}{
		{
			name:          "redis loading transient",
			err:           errors.New("LOADING Redis is loading the dataset in memory"),
			expectedClass: ClassTransient,
			reason:        "redis_loading",
		},
		{
			name:          "context deadline transient",
			err:           context.DeadlineExceeded,
			expectedClass: ClassTransient,
			reason:        "context_deadline_exceeded",
		},
		{
			name:          "canceled terminal",
			err:           context.Canceled,
			expectedClass: ClassTerminal,
			reason:        "context_canceled",
		},
		{
			name:          "dial refused transient",
			err:           errors.New("dial tcp 127.0.0.1:6379: connect: connection refused"),
			expectedClass: ClassTransient,
			reason:        "message_transient",
		},
		{
			name:          "wrong type terminal",
			err:           errors.New("WRONGTYPE Operation against a key holding the wrong kind of value"),
			expectedClass: ClassTerminal,
			reason:        "message_terminal",
		},
		{
			name:          "unknown defaults terminal",
			err:           errors.New("unexpected failure"),
			expectedClass: ClassTerminal,
			reason:        "unknown_terminal_default",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			decision := Classify(tc.err)
			assert.Equal(t, tc.expectedClass, decision.Class)
			assert.Equal(t, tc.reason, decision.Reason)
		})
	}
}

func TestDo_RetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 3, Backoff: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return errors.New("i/o timeout")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnTerminal(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 5}, func() error {
		calls++
		return errors.New("NOAUTH Authentication required")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_GivesUpAfterAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 2}, func() error {
		calls++
		return errors.New("connection reset by peer")
	})
	assert.ErrorContains(t, err, "connection reset")
	assert.Equal(t, 2, calls)
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = Do(context.Background(), Policy{}, func() error {
		calls++
		return errors.New("timeout")
	})
	assert.Equal(t, 1, calls)
}

func TestDo_CanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, Policy{Attempts: 3, Backoff: time.Hour}, func() error {
		calls++
		return errors.New("timeout")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
