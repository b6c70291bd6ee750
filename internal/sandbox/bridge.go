package sandbox

import (
	"errors"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/walletbridge/internal/shared/types"
)

var errCallerGone = errors.New("caller context is gone")

// newBridge builds the WalletBridge global for the context's role
func (c *Context) newBridge() *goja.Object {
	bridge := c.vm.NewObject()

	_ = bridge.Set("log", func(call goja.FunctionCall) goja.Value {
		msg := call.Argument(0).String()
		c.capture("bridge", msg)
		c.logger.Info("Script log", zap.String("message", msg))
		return goja.Undefined()
	})

	_ = bridge.Set("getAppInfo", func(goja.FunctionCall) goja.Value {
		info := c.AppInfo()
		return c.vm.ToValue(map[string]interface{}{
			"appId":   info.AppID,
			"name":    info.Name,
			"version": info.Version,
			"type":    info.Type,
			"origin":  info.Origin,
		})
	})

	_ = bridge.Set("navigateTo", c.navigateTo)

	switch c.role {
	case RoleSigner:
		_ = bridge.Set("sendTransactionResponse", c.sendResponse("sendTransactionResponse"))
		_ = bridge.Set("sendUniversalResponse", c.sendResponse("sendUniversalResponse"))
	case RoleCaller:
		_ = bridge.Set("requestTransaction", c.requestTransaction)
	}

	return bridge
}

// navigateTo checks the allowlist and schedules the page load. The page
// loads after the current call returns, since loading replaces the VM.
func (c *Context) navigateTo(call goja.FunctionCall) goja.Value {
	target := call.Argument(0).String()
	if !c.navigator.Allowed(target) {
		return c.vm.ToValue(false)
	}

	page := NormalizePage(target)
	if ref, ok := localPath(c.appID, target); ok {
		page = NormalizePage(ref)
	}
	c.loop.Post(func() {
		if c.closed {
			return
		}
		err := c.LoadPage(page)
		if err != nil {
			c.logger.Warn("Navigation failed", zap.String("page", page), zap.Error(err))
		}
		if c.onNavigate != nil {
			c.onNavigate(page, err)
		}
	})
	return c.vm.ToValue(true)
}

func (c *Context) sendResponse(method string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		if goja.IsUndefined(arg) || goja.IsNull(arg) || arg.String() == "" {
			panic(c.vm.NewTypeError(method + ": requestId is required"))
		}
		requestID := arg.String()
		response, err := c.jsonArgument(call.Argument(1))
		if err != nil {
			panic(c.vm.NewTypeError(method + ": " + err.Error()))
		}

		c.logger.Debug("Script response", zap.String("method", method), zap.String("request_id", requestID))
		if c.onResponse != nil {
			c.onResponse(requestID, response)
		}
		return goja.Undefined()
	}
}

// requestTransaction forwards a caller's request and returns a Promise
// settled on the context's loop.
func (c *Context) requestTransaction(call goja.FunctionCall) goja.Value {
	request, err := c.jsonArgument(call.Argument(0))
	if err != nil {
		panic(c.vm.NewTypeError("requestTransaction: " + err.Error()))
	}

	promise, resolve, reject := c.vm.NewPromise()
	if c.requester == nil {
		_ = reject(c.toJSValue(types.ErrorJSON(types.CodeServiceNotConnected, "no bridge attached", "")))
		return c.vm.ToValue(promise)
	}

	vm := c.vm
	settle := func(result string, fulfil bool) error {
		posted := c.loop.Post(func() {
			if c.closed || c.vm != vm {
				return
			}
			if fulfil {
				_ = resolve(c.toJSValue(result))
			} else {
				_ = reject(c.toJSValue(result))
			}
		})
		if !posted {
			return errCallerGone
		}
		return nil
	}

	c.requester.RequestTransaction(request, types.CallbackFuncs{
		Success: func(result string) error { return settle(result, true) },
		Failure: func(result string) error { return settle(result, false) },
	})
	return c.vm.ToValue(promise)
}
