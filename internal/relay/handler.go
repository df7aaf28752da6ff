package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/MahirK1/p-sub001/internal/auth"
	"github.com/MahirK1/p-sub001/internal/hub"
)

type WSOptions struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
	// AllowedOrigins empty = any origin.
	AllowedOrigins []string
}

func (o WSOptions) withDefaults() WSOptions {
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 16 << 10
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	return o
}

// Handler upgrades authenticated requests on /ws.
type Handler struct {
	svc      *Service
	resolver *auth.Resolver
	opt      WSOptions
	upgrader websocket.Upgrader
	log      *zap.Logger

	// OnOpen/OnClose, when set, observe connection counts.
	OnOpen  func()
	OnClose func()
}

func NewHandler(svc *Service, resolver *auth.Resolver, opt WSOptions, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	opt = opt.withDefaults()
	h := &Handler{svc: svc, resolver: resolver, opt: opt, log: log}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.opt.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.opt.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := h.resolver.Resolve(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("ws upgrade failed", zap.Error(err))
		return
	}

	c := hub.NewConn(uuid.NewString(), id.UserID, h.opt.SendBuffer)
	h.svc.Connect(c)
	if h.OnOpen != nil {
		h.OnOpen()
	}
	h.log.Debug("ws connected", zap.String("user_id", id.UserID), zap.String("conn_id", c.ID))

	go h.writeLoop(ws, c)
	h.readLoop(ws, c)

	h.svc.Disconnect(c)
	if h.OnClose != nil {
		h.OnClose()
	}
	h.log.Debug("ws disconnected", zap.String("user_id", id.UserID), zap.String("conn_id", c.ID))
}

func (h *Handler) readLoop(ws *websocket.Conn, c *hub.Conn) {
	defer c.Close()
	ws.SetReadLimit(h.opt.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(h.opt.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.opt.PongWait))
	})

	ctx := context.Background()
	for {
		mt, frame, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("ws read error", zap.String("conn_id", c.ID), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		h.svc.Handle(ctx, c, frame)
	}
}

// writeLoop owns all writes to ws and closes it when c is closed.
func (h *Handler) writeLoop(ws *websocket.Conn, c *hub.Conn) {
	ticker := time.NewTicker(h.opt.PingInterval)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()
	for {
		select {
		case b := <-c.Out():
			_ = ws.SetWriteDeadline(time.Now().Add(h.opt.WriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(h.opt.WriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.Done():
			_ = ws.SetWriteDeadline(time.Now().Add(h.opt.WriteWait))
			_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
