package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/walletbridge/internal/shared/types"
)

type fakeRuntime struct {
	mu        sync.Mutex
	connected bool
	active    string
	ready     bool
	switchErr error
	queryErr  error
	sendErr   error
	switches  []string
	forwarded []string
	reply     func(cb types.Callback)
}

func (f *fakeRuntime) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeRuntime) SwitchBlockchain(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.switchErr != nil {
		return f.switchErr
	}
	f.switches = append(f.switches, id)
	f.active = id
	return nil
}

func (f *fakeRuntime) ActiveBlockchainID(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, f.queryErr
}

func (f *fakeRuntime) IsReady(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready, f.queryErr
}

func (f *fakeRuntime) ProcessRequest(_ context.Context, requestJSON string, cb types.Callback) error {
	f.mu.Lock()
	if f.sendErr != nil {
		f.mu.Unlock()
		return f.sendErr
	}
	f.forwarded = append(f.forwarded, requestJSON)
	reply := f.reply
	f.mu.Unlock()

	if reply != nil {
		reply(cb)
	} else {
		_ = cb.OnSuccess(`{"ok":true}`)
	}
	return nil
}

// result collects the single terminal delivery to a callback
type result struct {
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	calls   int
	success bool
	body    string
}

func newResult() *result { return &result{done: make(chan struct{})} }

func (r *result) callback() types.Callback {
	record := func(success bool) func(string) error {
		return func(body string) error {
			r.mu.Lock()
			r.calls++
			r.success = success
			r.body = body
			r.mu.Unlock()
			r.once.Do(func() { close(r.done) })
			return nil
		}
	}
	return types.CallbackFuncs{Success: record(true), Failure: record(false)}
}

func (r *result) wait(t *testing.T) (bool, string) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never resolved")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.success, r.body
}

func (r *result) code(t *testing.T) types.ErrorCode {
	t.Helper()
	ok, body := r.wait(t)
	require.False(t, ok, "expected error, got %s", body)
	return types.ParseErrorJSON(body).Code
}

func TestRequestTransactionRouting(t *testing.T) {
	tests := []struct {
		name    string
		runtime func() Runtime
		request string
		want    types.ErrorCode
	}{
		{
			name:    "unbound",
			runtime: func() Runtime { return nil },
			request: `{"blockchainId":"eth"}`,
			want:    types.CodeServiceNotConnected,
		},
		{
			name:    "disconnected",
			runtime: func() Runtime { return &fakeRuntime{active: "eth"} },
			request: `{"blockchainId":"eth"}`,
			want:    types.CodeServiceNotConnected,
		},
		{
			name:    "never activated",
			runtime: func() Runtime { return &fakeRuntime{connected: true} },
			request: `{"blockchainId":"eth"}`,
			want:    types.CodeNoActiveBlockchain,
		},
		{
			name:    "malformed request",
			runtime: func() Runtime { return &fakeRuntime{connected: true, active: "eth"} },
			request: `[1]`,
			want:    types.CodeProcessingError,
		},
		{
			name: "status query transport failure",
			runtime: func() Runtime {
				return &fakeRuntime{connected: true, queryErr: errors.New("broken pipe")}
			},
			request: `{"blockchainId":"eth"}`,
			want:    types.CodeRemoteException,
		},
		{
			name: "switch rejected",
			runtime: func() Runtime {
				return &fakeRuntime{connected: true, active: "eth", switchErr: ErrSwitchRejected}
			},
			request: `{"blockchainId":"nope"}`,
			want:    types.CodeProcessingError,
		},
		{
			name: "switch transport failure",
			runtime: func() Runtime {
				return &fakeRuntime{connected: true, active: "eth", switchErr: errors.New("unavailable")}
			},
			request: `{"blockchainId":"sol"}`,
			want:    types.CodeRemoteException,
		},
		{
			name: "forward transport failure",
			runtime: func() Runtime {
				return &fakeRuntime{connected: true, active: "eth", sendErr: errors.New("connection reset")}
			},
			request: `{"blockchainId":"eth","requestId":"r9"}`,
			want:    types.CodeRemoteException,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(Options{Runtime: tt.runtime()})
			defer r.Close()

			res := newResult()
			r.RequestTransaction(tt.request, res.callback())
			assert.Equal(t, tt.want, res.code(t))
		})
	}
}

func TestRequestTransactionForwardsUnchanged(t *testing.T) {
	rt := &fakeRuntime{connected: true, active: "eth"}
	r := New(Options{Runtime: rt})
	defer r.Close()

	const request = `{"blockchainId":"eth","payload":{"to":"0x1"}}`
	res := newResult()
	r.RequestTransaction(request, res.callback())

	ok, body := res.wait(t)
	require.True(t, ok)
	assert.JSONEq(t, `{"ok":true}`, body)
	assert.Equal(t, []string{request}, rt.forwarded)
	assert.Empty(t, rt.switches)
}

func TestRequestTransactionSwitchesBeforeForwarding(t *testing.T) {
	rt := &fakeRuntime{connected: true, active: "eth"}
	r := New(Options{Runtime: rt})
	defer r.Close()

	res := newResult()
	r.RequestTransaction(`{"blockchainId":"sol","requestId":"r1"}`, res.callback())
	ok, _ := res.wait(t)
	require.True(t, ok)

	assert.Equal(t, []string{"sol"}, rt.switches)
	assert.Len(t, rt.forwarded, 1)

	// a request without blockchainId targets the active chain
	res = newResult()
	r.RequestTransaction(`{"requestId":"r2"}`, res.callback())
	ok, _ = res.wait(t)
	require.True(t, ok)
	assert.Equal(t, []string{"sol"}, rt.switches)
}

func TestRequestTransactionPassesRuntimeErrorThrough(t *testing.T) {
	rt := &fakeRuntime{
		connected: true,
		active:    "eth",
		reply: func(cb types.Callback) {
			_ = cb.OnError(types.ErrorJSON(types.CodeTimeout, "no response", "r1"))
		},
	}
	r := New(Options{Runtime: rt})
	defer r.Close()

	res := newResult()
	r.RequestTransaction(`{"blockchainId":"eth","requestId":"r1"}`, res.callback())
	assert.Equal(t, types.CodeTimeout, res.code(t))
	assert.Equal(t, 1, res.calls)
}

func TestRequestTransactionRateLimited(t *testing.T) {
	rt := &fakeRuntime{connected: true, active: "eth"}
	r := New(Options{Runtime: rt, RequestsPerSecond: 0.001, Burst: 1})
	defer r.Close()

	first := newResult()
	r.RequestTransaction(`{"blockchainId":"eth"}`, first.callback())
	ok, _ := first.wait(t)
	require.True(t, ok)

	second := newResult()
	r.RequestTransaction(`{"blockchainId":"eth"}`, second.callback())
	assert.Equal(t, types.CodeRateLimited, second.code(t))
}

func TestRequestTransactionRecoversPanics(t *testing.T) {
	rt := &fakeRuntime{
		connected: true,
		active:    "eth",
		reply:     func(types.Callback) { panic("boom") },
	}
	r := New(Options{Runtime: rt})
	defer r.Close()

	res := newResult()
	r.RequestTransaction(`{"blockchainId":"eth"}`, res.callback())
	assert.Equal(t, types.CodeProcessingError, res.code(t))
}

func TestBindAndUnbind(t *testing.T) {
	r := New(Options{})
	defer r.Close()

	_, err := r.ActiveBlockchainID(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, r.IsReady(context.Background()))

	rt := &fakeRuntime{connected: true, active: "eth", ready: true}
	r.Bind(rt)
	active, err := r.ActiveBlockchainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "eth", active)
	assert.True(t, r.IsReady(context.Background()))

	require.NoError(t, r.ActivateBlockchain(context.Background(), "sol"))
	assert.Equal(t, []string{"sol"}, rt.switches)

	r.Unbind()
	res := newResult()
	r.RequestTransaction(`{"blockchainId":"sol"}`, res.callback())
	assert.Equal(t, types.CodeServiceNotConnected, res.code(t))
	assert.ErrorIs(t, r.ActivateBlockchain(context.Background(), "eth"), ErrNotConnected)
}

func TestIsReadyTreatsQueryFailureAsNotReady(t *testing.T) {
	r := New(Options{Runtime: &fakeRuntime{connected: true, ready: true, queryErr: errors.New("eof")}})
	defer r.Close()
	assert.False(t, r.IsReady(context.Background()))
}

func TestClosedRouterRejectsRequests(t *testing.T) {
	r := New(Options{Runtime: &fakeRuntime{connected: true, active: "eth"}})
	r.Close()
	r.Close()

	res := newResult()
	r.RequestTransaction(`{"blockchainId":"eth"}`, res.callback())
	assert.Equal(t, types.CodeServiceDestroyed, res.code(t))
}
