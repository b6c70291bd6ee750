package sandbox

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/walletbridge/internal/shared/id"
	"github.com/GriffinCanCode/walletbridge/internal/shared/types"
)

const signerScript = `
addEventListener("transactionRequest", function (event) {
	var req = event.detail;
	if (req.payload.reject) {
		WalletBridge.sendTransactionResponse(req.requestId, { error: "user rejected" });
		return;
	}
	WalletBridge.sendUniversalResponse(req.requestId, JSON.stringify({ signature: "sig-" + req.payload.amount }));
});
`

type responses struct {
	mu   sync.Mutex
	byID map[string]string
}

func (r *responses) record(requestID, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byID == nil {
		r.byID = map[string]string{}
	}
	r.byID[requestID] = body
}

func (r *responses) get(requestID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	body, ok := r.byID[requestID]
	return body, ok
}

func newSigner(t *testing.T, files map[string]string, manifest *types.Manifest) (*Context, *testLoop, *responses) {
	t.Helper()
	loop := newTestLoop()
	got := &responses{}
	cfg := DefaultConfig()
	cfg.Timeout = 200 * time.Millisecond

	ctx, err := NewContext(Options{
		AppDir:     writeApp(t, files),
		Manifest:   manifest,
		Role:       RoleSigner,
		Loop:       loop,
		Config:     cfg,
		OnResponse: got.record,
	})
	require.NoError(t, err)
	t.Cleanup(ctx.Close)
	return ctx, loop, got
}

func TestSignerAnswersDispatchedRequest(t *testing.T) {
	ctx, _, got := newSigner(t, map[string]string{"signer.js": signerScript}, testManifest("signer.js"))
	require.NoError(t, ctx.Load())
	assert.True(t, ctx.HasListener("transactionRequest"))

	req, err := types.ParseTransactionRequest(`{"requestId":"r1","blockchainId":"solana","payload":{"amount":5}}`)
	require.NoError(t, err)

	n, err := ctx.Dispatch("transactionRequest", req.Detail())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	body, ok := got.get("r1")
	require.True(t, ok)
	assert.JSONEq(t, `{"signature":"sig-5"}`, body)
}

func TestSignerErrorResponseIsForwarded(t *testing.T) {
	ctx, _, got := newSigner(t, map[string]string{"signer.js": signerScript}, testManifest("signer.js"))
	require.NoError(t, ctx.Load())

	_, err := ctx.Dispatch("transactionRequest", map[string]interface{}{
		"requestId": "r2",
		"payload":   map[string]interface{}{"reject": true},
	})
	require.NoError(t, err)

	body, ok := got.get("r2")
	require.True(t, ok)
	assert.JSONEq(t, `{"error":"user rejected"}`, body)
}

func TestDangerousGlobalsRemoved(t *testing.T) {
	ctx, _, _ := newSigner(t, map[string]string{"index.html": "<p></p>"}, testManifest("index.html"))

	for _, name := range []string{"require", "process", "module", "exports"} {
		v, err := ctx.Run("typeof.js", "typeof "+name)
		require.NoError(t, err)
		assert.Equal(t, "undefined", v.String(), name)
	}

	v, err := ctx.Run("typeof.js", "typeof WalletBridge.requestTransaction")
	require.NoError(t, err)
	assert.Equal(t, "undefined", v.String())
}

func TestRunawayScriptIsInterrupted(t *testing.T) {
	ctx, _, _ := newSigner(t, map[string]string{"index.html": "<p></p>"}, testManifest("index.html"))

	_, err := ctx.Run("spin.js", "for (;;) {}")
	assert.ErrorIs(t, err, ErrScriptTimeout)

	// the VM stays usable after an interrupt
	v, err := ctx.Run("after.js", "1 + 1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v.ToInteger())
}

func TestContextsGetDistinctIDs(t *testing.T) {
	manifest := testManifest("signer.js")
	files := map[string]string{"signer.js": signerScript}
	first, _, _ := newSigner(t, files, manifest)
	second, _, _ := newSigner(t, files, manifest)

	assert.True(t, strings.HasPrefix(first.ID().String(), id.ContextPrefix+"_"))
	assert.NotEqual(t, first.ID(), second.ID())
}

func TestGetAppInfo(t *testing.T) {
	ctx, _, _ := newSigner(t, map[string]string{"index.html": "<p></p>"}, testManifest("index.html"))

	v, err := ctx.Run("info.js", "var i = WalletBridge.getAppInfo(); i.appId + '|' + i.origin + '|' + location.origin")
	require.NoError(t, err)
	assert.Equal(t, "solana|https://solana.miniapp.local|https://solana.miniapp.local", v.String())
}

func TestSetTimeoutRunsOnLoop(t *testing.T) {
	ctx, loop, _ := newSigner(t, map[string]string{"index.html": "<p></p>"}, testManifest("index.html"))

	_, err := ctx.Run("timer.js", `
		var fired = 0;
		setTimeout(function (n) { fired = n; }, 5, 7);
		var cancelled = setTimeout(function () { fired = -1; }, 1);
		clearTimeout(cancelled);
	`)
	require.NoError(t, err)

	loop.runUntil(t, func() bool {
		v, err := ctx.Run("check.js", "fired")
		return err == nil && v.ToInteger() == 7
	})
}

func TestNavigateToRespectsAllowlist(t *testing.T) {
	files := map[string]string{
		"index.html": "<script>var page = 'index';</script>",
		"home.html":  "<script>var page = 'home';</script>",
		"admin.html": "<script>var page = 'admin';</script>",
	}
	ctx, loop, _ := newSigner(t, files, testManifest("index.html", "home"))
	require.NoError(t, ctx.Load())

	v, err := ctx.Run("nav.js", "WalletBridge.navigateTo('admin')")
	require.NoError(t, err)
	assert.False(t, v.ToBoolean())

	v, err = ctx.Run("nav.js", "WalletBridge.navigateTo('/home.html')")
	require.NoError(t, err)
	assert.True(t, v.ToBoolean())

	loop.runUntil(t, func() bool { return ctx.Page() == "home" })
	v, err = ctx.Run("check.js", "page")
	require.NoError(t, err)
	assert.Equal(t, "home", v.String())
}

func TestListenersCanBeRemoved(t *testing.T) {
	ctx, _, _ := newSigner(t, map[string]string{"index.html": "<p></p>"}, testManifest("index.html"))

	_, err := ctx.Run("listen.js", `
		var calls = 0;
		function onReq() { calls++; }
		addEventListener("transactionRequest", onReq);
		removeEventListener("transactionRequest", onReq);
	`)
	require.NoError(t, err)

	n, err := ctx.Dispatch("transactionRequest", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestClosedContextRejectsWork(t *testing.T) {
	ctx, _, _ := newSigner(t, map[string]string{"index.html": "<p></p>"}, testManifest("index.html"))
	ctx.Close()

	_, err := ctx.Run("x.js", "1")
	assert.ErrorIs(t, err, ErrContextClosed)
	_, err = ctx.Dispatch("transactionRequest", nil)
	assert.ErrorIs(t, err, ErrContextClosed)
}

type fakeRequester struct {
	requests chan string
	reply    func(cb types.Callback)
}

func (f *fakeRequester) RequestTransaction(requestJSON string, cb types.Callback) {
	f.requests <- requestJSON
	go f.reply(cb)
}

func TestCallerRequestTransactionSettlesPromise(t *testing.T) {
	tests := []struct {
		name  string
		reply func(cb types.Callback)
		want  string
	}{
		{
			name:  "resolved",
			reply: func(cb types.Callback) { _ = cb.OnSuccess(`{"signature":"abc"}`) },
			want:  "ok:abc",
		},
		{
			name: "rejected",
			reply: func(cb types.Callback) {
				_ = cb.OnError(types.ErrorJSON(types.CodeNoActiveBlockchain, "open a chain first", ""))
			},
			want: "err:NO_ACTIVE_BLOCKCHAIN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loop := newTestLoop()
			requester := &fakeRequester{requests: make(chan string, 1), reply: tt.reply}
			manifest := testManifest("index.html")
			manifest.AppID = "dex"
			manifest.Type = types.AppTypeWebApp

			ctx, err := NewContext(Options{
				AppDir:    writeApp(t, map[string]string{"index.html": "<p></p>"}),
				Manifest:  manifest,
				Role:      RoleCaller,
				Loop:      loop,
				Requester: requester,
			})
			require.NoError(t, err)
			defer ctx.Close()

			_, err = ctx.Run("pay.js", `
				var outcome = "";
				WalletBridge.requestTransaction({ blockchainId: "solana", payload: { amount: 1 } })
					.then(function (r) { outcome = "ok:" + r.signature; })
					.catch(function (e) { outcome = "err:" + e.code; });
			`)
			require.NoError(t, err)
			assert.JSONEq(t, `{"blockchainId":"solana","payload":{"amount":1}}`, <-requester.requests)

			var outcome goja.Value
			loop.runUntil(t, func() bool {
				outcome, err = ctx.Run("check.js", "outcome")
				return err == nil && outcome.String() != ""
			})
			assert.Equal(t, tt.want, outcome.String())

			v, err := ctx.Run("typeof.js", "typeof WalletBridge.sendTransactionResponse")
			require.NoError(t, err)
			assert.Equal(t, "undefined", v.String())
		})
	}
}
