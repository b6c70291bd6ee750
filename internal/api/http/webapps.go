package http

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/walletbridge/internal/adapter"
	"github.com/GriffinCanCode/walletbridge/internal/registry"
	"github.com/GriffinCanCode/walletbridge/internal/sandbox"
	"github.com/GriffinCanCode/walletbridge/internal/shared/types"
	"github.com/GriffinCanCode/walletbridge/internal/shared/utils"
)

type evalRequest struct {
	Name   string `json:"name"`
	Source string `json:"source" binding:"required"`
}

type consoleEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// ListWebApps lists the web apps currently open in this process
func (h *Handlers) ListWebApps(c *gin.Context) {
	if h.webapps == nil {
		c.JSON(http.StatusOK, gin.H{"webapps": []string{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"webapps": h.webapps.List()})
}

// OpenWebApp loads a web mini-app into a caller-role context. Opening an
// app that is already open returns the running instance.
func (h *Handlers) OpenWebApp(c *gin.Context) {
	if h.webapps == nil {
		h.fail(c, http.StatusNotFound, types.CodeProcessingError, "web apps are not hosted")
		return
	}
	appID := c.Param("id")

	_, created, err := h.webapps.Open(c.Request.Context(), appID)
	if err != nil {
		h.logger.Warn("Web app not opened", zap.String("app_id", appID), zap.Error(err))
		h.fail(c, openStatus(err), types.CodeProcessingError, err.Error())
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"appId": appID, "created": created})
}

// CloseWebApp tears an open web app down
func (h *Handlers) CloseWebApp(c *gin.Context) {
	if h.webapps == nil || !h.webapps.Close(c.Param("id")) {
		c.Status(http.StatusNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

// EvalWebApp runs a script in an open web app and returns its value.
// A promise the script starts keeps running after the response.
func (h *Handlers) EvalWebApp(c *gin.Context) {
	app, ok := h.webApp(c)
	if !ok {
		return
	}

	var req evalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, types.CodeProcessingError, "source is required")
		return
	}
	if len(req.Source) > utils.MaxScriptSize {
		h.fail(c, http.StatusRequestEntityTooLarge, types.CodeProcessingError, "script too large")
		return
	}
	if req.Name == "" {
		req.Name = "eval.js"
	}

	out, err := app.Eval(c.Request.Context(), req.Name, req.Source)
	switch {
	case err == nil:
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(out))
	case errors.Is(err, sandbox.ErrScriptTimeout):
		h.fail(c, http.StatusGatewayTimeout, types.CodeTimeout, err.Error())
	case errors.Is(err, sandbox.ErrContextClosed):
		h.fail(c, http.StatusGone, types.CodeServiceDestroyed, err.Error())
	default:
		h.fail(c, http.StatusUnprocessableEntity, types.CodeProcessingError, err.Error())
	}
}

// WebAppConsole returns what an open web app has logged
func (h *Handlers) WebAppConsole(c *gin.Context) {
	app, ok := h.webApp(c)
	if !ok {
		return
	}
	entries, err := app.Console(c.Request.Context())
	if err != nil {
		h.fail(c, http.StatusGone, types.CodeServiceDestroyed, err.Error())
		return
	}

	out := make([]consoleEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, consoleEntry{Level: e.Level, Message: e.Message, Time: e.Time})
	}
	c.JSON(http.StatusOK, gin.H{"appId": app.AppID(), "console": out})
}

func (h *Handlers) webApp(c *gin.Context) (*adapter.WebApp, bool) {
	if h.webapps != nil {
		if app, ok := h.webapps.Get(c.Param("id")); ok {
			return app, true
		}
	}
	h.fail(c, http.StatusNotFound, types.CodeProcessingError, "web app is not open")
	return nil, false
}

func openStatus(err error) int {
	switch {
	case errors.Is(err, registry.ErrNoManifest), errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, adapter.ErrNotWebApp):
		return http.StatusConflict
	case errors.Is(err, adapter.ErrHostClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnprocessableEntity
	}
}
