package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/walletbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/walletbridge/internal/infrastructure/logging"
)

const signerPage = `<html><body><script>
addEventListener("transactionRequest", function (event) {
	var req = event.detail;
	WalletBridge.sendUniversalResponse(req.requestId, JSON.stringify({ signature: "sig-" + req.payload.amount }));
});
</script></body></html>`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	apps := filepath.Join(dir, "apps", "solana")
	require.NoError(t, os.MkdirAll(apps, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(apps, "manifest.json"),
		[]byte(`{"app_id":"solana","name":"Solana","version":"1.0.0","type":"blockchain","main_page":"index.html"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(apps, "index.html"), []byte(signerPage), 0o644))

	cfg := config.Default()
	cfg.Runtime.Address = "unix://" + filepath.Join(dir, "rt.sock")
	cfg.Runtime.AppsDir = filepath.Join(dir, "apps")
	cfg.Runtime.CallbackTimeout = 2 * time.Second
	cfg.Keystore.Light = true
	cfg.Keystore.UnlockSecretPath = filepath.Join(dir, "unlock.json")
	cfg.Logging.Development = true
	cfg.RateLimit.Enabled = false
	return cfg
}

func startRuntime(t *testing.T, cfg *config.Config) *Runtime {
	t.Helper()
	rt, err := NewRuntime(cfg, logging.NewNop())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- rt.Run() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, rt.Shutdown(ctx))
		assert.NoError(t, <-done)
	})
	return rt
}

func startRouter(t *testing.T, cfg *config.Config) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := NewServer(cfg, logging.NewNop())
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv, ts
}

func post(t *testing.T, url, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestTransactionAcrossProcesses(t *testing.T) {
	cfg := testConfig(t)
	startRuntime(t, cfg)
	_, ts := startRouter(t, cfg)

	code, body := post(t, ts.URL+"/api/v1/blockchain/activate", `{"blockchainId":"solana"}`)
	require.Equal(t, http.StatusAccepted, code, body)

	require.Eventually(t, func() bool {
		_, body := get(t, ts.URL+"/api/v1/status")
		return strings.Contains(body, `"ready":true`)
	}, 5*time.Second, 20*time.Millisecond)

	code, body = post(t, ts.URL+"/api/v1/transactions",
		`{"requestId":"r1","blockchainId":"solana","payload":{"amount":7}}`)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"signature":"sig-7"}`, body)

	code, body = post(t, ts.URL+"/api/v1/transactions",
		`{"requestId":"r2","blockchainId":"nowhere","payload":{}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, body, `"code":"PROCESSING_ERROR"`)
}

func TestHostedWebAppReachesRuntime(t *testing.T) {
	cfg := testConfig(t)
	dex := filepath.Join(cfg.Runtime.AppsDir, "dex")
	require.NoError(t, os.MkdirAll(dex, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dex, "manifest.json"),
		[]byte(`{"app_id":"dex","name":"Dex","version":"1.0.0","type":"webapp","main_page":"main.js"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dex, "main.js"), []byte(`
var outcome = "";
function pay(amount) {
	WalletBridge.requestTransaction({ blockchainId: "solana", payload: { amount: amount } })
		.then(function (r) { outcome = "ok:" + r.signature; })
		.catch(function (e) { outcome = "err:" + e.code; });
}`), 0o644))

	startRuntime(t, cfg)
	_, ts := startRouter(t, cfg)

	code, body := post(t, ts.URL+"/api/v1/blockchain/activate", `{"blockchainId":"solana"}`)
	require.Equal(t, http.StatusAccepted, code, body)
	require.Eventually(t, func() bool {
		_, body := get(t, ts.URL+"/api/v1/status")
		return strings.Contains(body, `"ready":true`)
	}, 5*time.Second, 20*time.Millisecond)

	code, body = post(t, ts.URL+"/api/v1/webapps/dex", "")
	require.Equal(t, http.StatusCreated, code, body)

	code, body = post(t, ts.URL+"/api/v1/webapps/dex/eval", `{"source":"pay(9)"}`)
	require.Equal(t, http.StatusOK, code, body)

	assert.Eventually(t, func() bool {
		_, body := post(t, ts.URL+"/api/v1/webapps/dex/eval", `{"source":"outcome"}`)
		return body == `"ok:sig-9"`
	}, 5*time.Second, 20*time.Millisecond)
}

func TestHealthAndMetrics(t *testing.T) {
	cfg := testConfig(t)
	startRuntime(t, cfg)
	_, ts := startRouter(t, cfg)

	require.Eventually(t, func() bool {
		_, body := get(t, ts.URL+"/health")
		return strings.Contains(body, `"runtime":true`)
	}, 5*time.Second, 20*time.Millisecond)

	code, body := get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "walletbridge_http_requests_total")

	code, body = get(t, ts.URL+"/api/v1/apps?type=blockchain")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"app_id":"solana"`)
}

func TestRouterWithoutRuntime(t *testing.T) {
	cfg := testConfig(t)
	_, ts := startRouter(t, cfg)

	_, body := get(t, ts.URL+"/health")
	assert.Contains(t, body, `"status":"degraded"`)

	code, body := post(t, ts.URL+"/api/v1/transactions",
		`{"requestId":"r1","blockchainId":"solana","payload":{}}`)
	assert.NotEqual(t, http.StatusOK, code)
	assert.NotContains(t, body, "signature")
}

func TestResponsesAreCompressed(t *testing.T) {
	cfg := testConfig(t)
	_, ts := startRouter(t, cfg)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/metrics", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := http.DefaultTransport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
}

func TestDialTarget(t *testing.T) {
	assert.Equal(t, "unix:///tmp/rt.sock", dialTarget("unix:///tmp/rt.sock"))
	assert.Equal(t, "passthrough:///127.0.0.1:7000", dialTarget("127.0.0.1:7000"))
}
