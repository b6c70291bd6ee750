package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRemote = errors.New("connection refused")

func run(b *Breaker, fail bool) error {
	return b.Execute(func() error {
		if fail {
			return errRemote
		}
		return nil
	})
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		settings      Settings
		failures      []bool
		expectedState State
	}{
		{
			name:          "stays closed on successes",
			settings:      Settings{Interval: time.Minute, Timeout: time.Minute},
			failures:      []bool{false, false, false},
			expectedState: StateClosed,
		},
		{
			name: "opens after consecutive failures",
			settings: Settings{
				Interval: time.Minute,
				Timeout:  time.Minute,
				ReadyToTrip: func(counts Counts) bool {
					return counts.ConsecutiveFailures >= 3
				},
			},
			failures:      []bool{true, true, true},
			expectedState: StateOpen,
		},
		{
			name: "a success resets the streak",
			settings: Settings{
				Interval: time.Minute,
				Timeout:  time.Minute,
				ReadyToTrip: func(counts Counts) bool {
					return counts.ConsecutiveFailures >= 2
				},
			},
			failures:      []bool{true, false, true},
			expectedState: StateClosed,
		},
		{
			name: "default trips at five",
			settings: Settings{
				Interval: time.Minute,
				Timeout:  time.Minute,
			},
			failures:      []bool{true, true, true, true, true},
			expectedState: StateOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker := New("runtime", tt.settings)
			for _, fail := range tt.failures {
				_ = run(breaker, fail)
			}
			assert.Equal(t, tt.expectedState, breaker.State())
		})
	}
}

func TestBreakerCounts(t *testing.T) {
	breaker := New("runtime", Settings{Interval: time.Minute, Timeout: time.Minute})

	require.NoError(t, run(breaker, false))
	counts := breaker.Counts()
	assert.Equal(t, uint32(1), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)

	assert.ErrorIs(t, run(breaker, true), errRemote)
	counts = breaker.Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalFailures)
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveSuccesses)
}

func TestOpenBreakerSkipsCall(t *testing.T) {
	breaker := New("runtime", Settings{
		Interval: time.Minute,
		Timeout:  time.Minute,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	})
	_ = run(breaker, true)
	_ = run(breaker, true)

	called := false
	err := breaker.Execute(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestApplicationErrorsDoNotTrip(t *testing.T) {
	errRejected := errors.New("unknown blockchain")
	breaker := New("runtime", Settings{
		Interval: time.Minute,
		Timeout:  time.Minute,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errRejected)
		},
	})

	for i := 0; i < 3; i++ {
		err := breaker.Execute(func() error { return errRejected })
		assert.ErrorIs(t, err, errRejected)
	}
	assert.Equal(t, StateClosed, breaker.State())
	assert.Equal(t, uint32(3), breaker.Counts().TotalSuccesses)
}

func TestHalfOpenRecovery(t *testing.T) {
	breaker := New("runtime", Settings{
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     50 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	})
	_ = run(breaker, true)
	_ = run(breaker, true)
	require.Equal(t, StateOpen, breaker.State())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, breaker.State())

	require.NoError(t, run(breaker, false))
	require.NoError(t, run(breaker, false))
	assert.Equal(t, StateClosed, breaker.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	breaker := New("runtime", Settings{
		Interval: time.Minute,
		Timeout:  20 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
	})
	_ = run(breaker, true)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, breaker.State())

	_ = run(breaker, true)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestHalfOpenLimitsProbes(t *testing.T) {
	breaker := New("runtime", Settings{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     20 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
	})
	_ = run(breaker, true)
	time.Sleep(30 * time.Millisecond)

	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = breaker.Execute(func() error {
			<-release
			return nil
		})
	}()

	require.Eventually(t, func() bool { return breaker.Counts().Requests == 1 }, time.Second, time.Millisecond)
	assert.ErrorIs(t, run(breaker, false), ErrTooManyRequests)

	close(release)
	wg.Wait()
	assert.Equal(t, StateClosed, breaker.State())
}

func TestStateChangeCallback(t *testing.T) {
	var mu sync.Mutex
	var transitions []string

	breaker := New("runtime", Settings{
		Interval: time.Minute,
		Timeout:  10 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
		OnStateChange: func(name string, from State, to State) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})
	_ = run(breaker, true)
	_ = run(breaker, true)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, breaker.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"runtime:closed->open", "runtime:open->half-open"}, transitions)
}

func TestPanicCountsAsFailure(t *testing.T) {
	breaker := New("runtime", Settings{Interval: time.Minute, Timeout: time.Minute})
	assert.Panics(t, func() {
		_ = breaker.Execute(func() error { panic("boom") })
	})
	assert.Equal(t, uint32(1), breaker.Counts().TotalFailures)
}
