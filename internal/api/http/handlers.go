package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/walletbridge/internal/adapter"
	"github.com/GriffinCanCode/walletbridge/internal/bridge"
	"github.com/GriffinCanCode/walletbridge/internal/registry"
	"github.com/GriffinCanCode/walletbridge/internal/sandbox"
	"github.com/GriffinCanCode/walletbridge/internal/session"
	"github.com/GriffinCanCode/walletbridge/internal/shared/id"
	"github.com/GriffinCanCode/walletbridge/internal/shared/types"
	"github.com/GriffinCanCode/walletbridge/internal/shared/utils"
)

var errClientGone = errors.New("http client went away")

// Router is the part of bridge.Router the API drives
type Router interface {
	RequestTransaction(requestJSON string, cb types.Callback)
	ActivateBlockchain(ctx context.Context, blockchainID string) error
	ActiveBlockchainID(ctx context.Context) (string, error)
	IsReady(ctx context.Context) bool
	CreateKeystore(privateKeyHex, address string, cb types.Callback)
	DecryptKeystore(keystoreJSON string, cb types.Callback)
}

// Session is the part of session.Session the API drives
type Session interface {
	Unlock(password []byte) (id.SessionID, error)
	Lock()
	Authenticated() bool
}

// Handlers contains all HTTP handlers
type Handlers struct {
	router  Router
	session Session
	catalog *registry.Catalog
	webapps *adapter.Host
	logger  *zap.Logger
}

// NewHandlers creates a new handler set. catalog may be nil, in which case
// the app endpoints answer 404.
func NewHandlers(router Router, sess Session, catalog *registry.Catalog, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		router:  router,
		session: sess,
		catalog: catalog,
		logger:  logger.Named("api"),
	}
}

// WithWebApps enables the /webapps endpoints backed by host
func (h *Handlers) WithWebApps(host *adapter.Host) *Handlers {
	h.webapps = host
	return h
}

// Register mounts the handlers on group
func (h *Handlers) Register(group *gin.RouterGroup) {
	group.GET("/status", h.Status)
	group.POST("/session/unlock", h.Unlock)
	group.POST("/session/lock", h.Lock)
	group.POST("/blockchain/activate", h.Activate)
	group.GET("/apps", h.ListApps)
	group.GET("/apps/:id/assets/*path", h.Asset)
	group.POST("/transactions", h.RequestTransaction)
	group.POST("/keystore", h.CreateKeystore)
	group.POST("/keystore/decrypt", h.DecryptKeystore)
	group.GET("/webapps", h.ListWebApps)
	group.POST("/webapps/:id", h.OpenWebApp)
	group.DELETE("/webapps/:id", h.CloseWebApp)
	group.POST("/webapps/:id/eval", h.EvalWebApp)
	group.GET("/webapps/:id/console", h.WebAppConsole)
}

// Status reports the bridge state
func (h *Handlers) Status(c *gin.Context) {
	ctx := c.Request.Context()
	active, err := h.router.ActiveBlockchainID(ctx)
	c.JSON(http.StatusOK, gin.H{
		"connected":          err == nil,
		"activeBlockchainId": active,
		"ready":              err == nil && h.router.IsReady(ctx),
		"authenticated":      h.session.Authenticated(),
	})
}

type unlockRequest struct {
	Password string `json:"password"`
}

// Unlock verifies the password and fills the session cache
func (h *Handlers) Unlock(c *gin.Context) {
	var req unlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, types.CodeProcessingError, "invalid unlock request")
		return
	}
	if len(req.Password) > utils.MaxPasswordLength {
		h.fail(c, http.StatusBadRequest, types.CodeProcessingError, "password too long")
		return
	}

	sessionID, err := h.session.Unlock([]byte(req.Password))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"sessionId": sessionID})
	case errors.Is(err, session.ErrWrongPassword):
		h.fail(c, http.StatusForbidden, types.CodeInvalidPassword, err.Error())
	case errors.Is(err, session.ErrEmptyPassword):
		h.fail(c, http.StatusBadRequest, types.CodeInvalidPassword, err.Error())
	default:
		h.logger.Error("Unlock failed", zap.Error(err))
		h.fail(c, http.StatusInternalServerError, types.CodeProcessingError, "unlock failed")
	}
}

// Lock clears the session cache
func (h *Handlers) Lock(c *gin.Context) {
	h.session.Lock()
	c.Status(http.StatusNoContent)
}

type activateRequest struct {
	BlockchainID string `json:"blockchainId" binding:"required"`
}

// Activate opens a chain mini-app in the runtime
func (h *Handlers) Activate(c *gin.Context) {
	var req activateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, types.CodeProcessingError, "blockchainId is required")
		return
	}

	err := h.router.ActivateBlockchain(c.Request.Context(), req.BlockchainID)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"blockchainId": req.BlockchainID})
	case errors.Is(err, bridge.ErrNotConnected):
		h.fail(c, http.StatusServiceUnavailable, types.CodeServiceNotConnected, err.Error())
	case errors.Is(err, bridge.ErrSwitchRejected):
		h.fail(c, http.StatusNotFound, types.CodeProcessingError, err.Error())
	default:
		h.fail(c, http.StatusBadGateway, types.CodeRemoteException, err.Error())
	}
}

// ListApps lists installed mini-apps, optionally filtered by ?type=
func (h *Handlers) ListApps(c *gin.Context) {
	if h.catalog == nil {
		c.JSON(http.StatusOK, gin.H{"apps": []*types.Manifest{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"apps": h.catalog.List(types.AppType(c.Query("type")))})
}

// Asset serves a file from an installed app's directory. Anything that
// resolves outside it is not found.
func (h *Handlers) Asset(c *gin.Context) {
	appID := c.Param("id")
	if h.catalog == nil || !h.catalog.Has(appID) {
		c.Status(http.StatusNotFound)
		return
	}

	assets, err := sandbox.NewAssets(h.catalog.Dir(appID))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	asset, err := assets.Open(c.Param("path"))
	if err != nil {
		h.logger.Debug("Asset not served", zap.String("app_id", appID), zap.Error(err))
		c.Status(http.StatusNotFound)
		return
	}
	c.Header("Content-Security-Policy", "default-src 'self'")
	c.Data(http.StatusOK, asset.ContentType, asset.Data)
}

// RequestTransaction forwards the raw request body to the router
func (h *Handlers) RequestTransaction(c *gin.Context) {
	body, ok := h.readBody(c, utils.MaxRequestSize)
	if !ok {
		return
	}
	h.await(c, func(cb types.Callback) {
		h.router.RequestTransaction(body, cb)
	})
}

type createKeystoreRequest struct {
	PrivateKey string `json:"privateKey" binding:"required"`
	Address    string `json:"address" binding:"required"`
}

// CreateKeystore encrypts a private key under the session password
func (h *Handlers) CreateKeystore(c *gin.Context) {
	var req createKeystoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, types.CodeProcessingError, "privateKey and address are required")
		return
	}
	h.await(c, func(cb types.Callback) {
		h.router.CreateKeystore(req.PrivateKey, req.Address, cb)
	})
}

// DecryptKeystore opens the wallet file in the request body
func (h *Handlers) DecryptKeystore(c *gin.Context) {
	body, ok := h.readBody(c, utils.MaxKeystoreSize)
	if !ok {
		return
	}
	h.await(c, func(cb types.Callback) {
		h.router.DecryptKeystore(body, cb)
	})
}

func (h *Handlers) readBody(c *gin.Context, limit int) (string, bool) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, int64(limit)+1))
	if err != nil {
		h.fail(c, http.StatusBadRequest, types.CodeProcessingError, "unreadable body")
		return "", false
	}
	if len(data) > limit {
		h.fail(c, http.StatusRequestEntityTooLarge, types.CodeProcessingError, "body too large")
		return "", false
	}
	return string(data), true
}

type outcome struct {
	success bool
	payload string
}

// await submits one router call and writes its single resolution
func (h *Handlers) await(c *gin.Context, submit func(cb types.Callback)) {
	ctx := c.Request.Context()
	done := make(chan outcome, 1)

	deliver := func(success bool) func(string) error {
		return func(payload string) error {
			select {
			case <-ctx.Done():
				return errClientGone
			default:
			}
			done <- outcome{success: success, payload: payload}
			return nil
		}
	}
	submit(types.CallbackFuncs{Success: deliver(true), Failure: deliver(false)})

	select {
	case res := <-done:
		if res.success {
			writeResult(c, res.payload)
			return
		}
		failure := adapter.Present(res.payload)
		c.JSON(StatusFor(failure.Code), failure)
	case <-ctx.Done():
		h.logger.Debug("Client left before resolution", zap.String("path", c.FullPath()))
	}
}

// writeResult passes JSON results through and wraps anything else
func writeResult(c *gin.Context, payload string) {
	if json.Valid([]byte(payload)) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(payload))
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": payload})
}

func (h *Handlers) fail(c *gin.Context, status int, code types.ErrorCode, detail string) {
	c.AbortWithStatusJSON(status, adapter.Present(types.ErrorJSON(code, detail, "")))
}

var statusByCode = map[types.ErrorCode]int{
	types.CodeServiceNotConnected: http.StatusServiceUnavailable,
	types.CodeNoActiveBlockchain:  http.StatusConflict,
	types.CodeRemoteException:     http.StatusBadGateway,
	types.CodeProcessingError:     http.StatusUnprocessableEntity,
	types.CodeTimeout:             http.StatusGatewayTimeout,
	types.CodeServiceDestroyed:    http.StatusServiceUnavailable,
	types.CodeNotAuthenticated:    http.StatusUnauthorized,
	types.CodeInvalidPassword:     http.StatusForbidden,
	types.CodeInvalidKeystore:     http.StatusBadRequest,
	types.CodeRateLimited:         http.StatusTooManyRequests,
}

// StatusFor maps a bridge error code to an HTTP status
func StatusFor(code types.ErrorCode) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
