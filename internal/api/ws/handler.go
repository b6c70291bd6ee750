package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/walletbridge/internal/adapter"
	"github.com/GriffinCanCode/walletbridge/internal/shared/types"
	"github.com/GriffinCanCode/walletbridge/internal/shared/utils"
)

const (
	writeTimeout       = 10 * time.Second
	DefaultMaxInFlight = 32
)

var errConnectionClosed = errors.New("websocket connection closed")

// Requester is the router entry point the handler forwards to
type Requester interface {
	RequestTransaction(requestJSON string, cb types.Callback)
}

// Options configures the handler
type Options struct {
	// AllowOrigins lists the browser origins allowed to connect. Empty
	// means same-origin only.
	AllowOrigins []string
	MaxInFlight  int
	Logger       *zap.Logger
}

// Handler manages WebSocket connections
type Handler struct {
	router      Requester
	upgrader    websocket.Upgrader
	maxInFlight int
	logger      *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(router Requester, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = DefaultMaxInFlight
	}

	h := &Handler{
		router:      router,
		maxInFlight: opts.MaxInFlight,
		logger:      opts.Logger.Named("ws"),
	}
	if len(opts.AllowOrigins) > 0 {
		allowed := make(map[string]struct{}, len(opts.AllowOrigins))
		for _, o := range opts.AllowOrigins {
			allowed[o] = struct{}{}
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			_, ok := allowed[r.Header.Get("Origin")]
			return ok
		}
	}
	return h
}

type inbound struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Request json.RawMessage `json:"request"`
}

type outbound struct {
	Type    string           `json:"type"`
	ID      string           `json:"id,omitempty"`
	Result  interface{}      `json:"result,omitempty"`
	Error   *adapter.Failure `json:"error,omitempty"`
	Message string           `json:"message,omitempty"`
}

// conn serializes writes and tracks requests still waiting on the router
type conn struct {
	ws       *websocket.Conn
	logger   *zap.Logger
	writeMu  sync.Mutex
	mu       sync.Mutex
	closed   bool
	inFlight int
}

// HandleConnection handles WebSocket upgrade and messages
func (h *Handler) HandleConnection(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	ws.SetReadLimit(int64(utils.MaxRequestSize) + 1024)

	cn := &conn{ws: ws, logger: h.logger.With(zap.String("remote", c.ClientIP()))}
	defer cn.close()

	_ = cn.send(outbound{Type: "system", Message: "Connected to wallet bridge"})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				cn.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}

		var msg inbound
		if err := sonic.Unmarshal(data, &msg); err != nil {
			_ = cn.send(outbound{Type: "error", Message: "malformed message"})
			continue
		}

		switch msg.Type {
		case "requestTransaction":
			h.handleRequest(cn, msg)
		case "ping":
			_ = cn.send(outbound{Type: "pong"})
		default:
			_ = cn.send(outbound{Type: "error", ID: msg.ID, Message: "unknown message type"})
		}
	}
}

func (h *Handler) handleRequest(cn *conn, msg inbound) {
	if msg.ID == "" {
		_ = cn.send(outbound{Type: "error", Message: "id is required"})
		return
	}
	request, err := requestText(msg.Request)
	if err != nil {
		failure := adapter.Present(types.ErrorJSON(types.CodeProcessingError, err.Error(), ""))
		_ = cn.send(outbound{Type: "error", ID: msg.ID, Error: &failure})
		return
	}
	if !cn.acquire(h.maxInFlight) {
		failure := adapter.Present(types.ErrorJSON(types.CodeRateLimited, "too many requests in flight", ""))
		_ = cn.send(outbound{Type: "error", ID: msg.ID, Error: &failure})
		return
	}

	var once sync.Once
	deliver := func(out outbound) error {
		var err error = errConnectionClosed
		once.Do(func() {
			cn.release()
			err = cn.send(out)
		})
		return err
	}

	h.router.RequestTransaction(request, types.CallbackFuncs{
		Success: func(result string) error {
			return deliver(outbound{Type: "result", ID: msg.ID, Result: resultValue(result)})
		},
		Failure: func(result string) error {
			failure := adapter.Present(result)
			return deliver(outbound{Type: "error", ID: msg.ID, Error: &failure})
		},
	})
}

// requestText accepts the request as an embedded object or as JSON text
func requestText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", errors.New("request is required")
	}
	var text string
	if err := sonic.Unmarshal(raw, &text); err == nil {
		return text, nil
	}
	return string(raw), nil
}

// resultValue embeds JSON results and passes other text as a string
func resultValue(result string) interface{} {
	if json.Valid([]byte(result)) {
		return json.RawMessage(result)
	}
	return result
}

func (cn *conn) acquire(limit int) bool {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	if cn.inFlight >= limit {
		return false
	}
	cn.inFlight++
	return true
}

func (cn *conn) release() {
	cn.mu.Lock()
	cn.inFlight--
	cn.mu.Unlock()
}

func (cn *conn) send(out outbound) error {
	cn.mu.Lock()
	closed := cn.closed
	cn.mu.Unlock()
	if closed {
		return errConnectionClosed
	}

	data, err := sonic.Marshal(out)
	if err != nil {
		return err
	}

	cn.writeMu.Lock()
	defer cn.writeMu.Unlock()
	_ = cn.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := cn.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		cn.logger.Debug("WebSocket write failed", zap.Error(err))
		return err
	}
	return nil
}

// close drops the socket. Results arriving later report the endpoint gone.
func (cn *conn) close() {
	cn.mu.Lock()
	cn.closed = true
	pending := cn.inFlight
	cn.mu.Unlock()

	if pending > 0 {
		cn.logger.Debug("Closing with requests in flight", zap.Int("pending", pending))
	}
	cn.writeMu.Lock()
	_ = cn.ws.Close()
	cn.writeMu.Unlock()
}
