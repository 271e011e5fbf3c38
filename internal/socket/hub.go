// Package socket accepts live connections and turns join/disconnect
// signals into presence registry updates.
package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"citizen-portal/internal/common/logger"
	"citizen-portal/internal/common/validation"
	"citizen-portal/internal/models"
	"citizen-portal/internal/presence"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Inbound and control event names.
const (
	EventJoin   = "join"
	EventLeave  = "leave"
	EventPing   = "ping"
	EventJoined = "joined"
	EventPong   = "pong"
	EventError  = "error"
)

// Registrar is the presence registry surface the hub mutates.
type Registrar interface {
	Register(userID string, conn presence.Connection) (models.ConnectionSession, bool)
	Unregister(handle string) (models.ConnectionSession, bool)
}

type Options struct {
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	AllowedOrigins []string
}

type Hub struct {
	registry Registrar
	logger   logger.Logger
	opts     Options
	upgrader websocket.Upgrader
	frames   *validation.Schema
}

func NewHub(registry Registrar, log logger.Logger, opts Options) *Hub {
	h := &Hub{
		registry: registry,
		logger:   logger.ForComponent(log, "socket"),
		opts:     opts,
		frames:   validation.MustCompile("socket-frame", validation.SocketFrameSchema),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", map[string]interface{}{"error": err, "remote": r.RemoteAddr})
		return
	}

	c := newConn(uuid.New().String(), ws, h.opts.WriteTimeout)
	log := h.logger.WithFields(map[string]interface{}{"handle": c.Handle()})
	log.Debug("connection opened", map[string]interface{}{"remote": r.RemoteAddr})

	stopPing := h.startPing(c, log)
	defer func() {
		stopPing()
		// Disconnect carries only the handle.
		if session, ok := h.registry.Unregister(c.Handle()); ok {
			log.Info("user disconnected", map[string]interface{}{"userId": session.UserID})
		}
		_ = c.Close()
	}()

	h.readLoop(c, log)
}

func (h *Hub) startPing(c *Conn, log logger.Logger) func() {
	if h.opts.PingInterval <= 0 {
		return func() {}
	}

	readWindow := 2 * h.opts.PingInterval
	_ = c.ws.SetReadDeadline(time.Now().Add(readWindow))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(readWindow))
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(h.opts.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := c.ping(); err != nil {
					log.Debug("ping failed", map[string]interface{}{"error": err})
					return
				}
			}
		}
	}()
	return func() { close(done) }
}

func (h *Hub) readLoop(c *Conn, log logger.Logger) {
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("connection read failed", map[string]interface{}{"error": err})
			}
			return
		}
		h.handleFrame(c, msg, log)
	}
}

type joinData struct {
	UserID string `json:"userId"`
}

func (h *Hub) handleFrame(c *Conn, msg []byte, log logger.Logger) {
	result, err := h.frames.ValidateBytes(msg)
	if err != nil || !result.Valid {
		reason := "malformed frame"
		if err == nil {
			reason = result.Error()
		}
		log.Warn("rejected inbound frame", map[string]interface{}{"reason": reason})
		h.reply(c, EventError, map[string]string{"message": reason})
		return
	}

	var frame Frame
	if err := json.Unmarshal(msg, &frame); err != nil {
		h.reply(c, EventError, map[string]string{"message": "malformed frame"})
		return
	}

	switch frame.Event {
	case EventJoin:
		var data joinData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			h.reply(c, EventError, map[string]string{"message": "malformed join payload"})
			return
		}
		prev, replaced := h.registry.Register(data.UserID, c)
		fields := map[string]interface{}{"userId": data.UserID}
		if replaced {
			fields["displacedHandle"] = prev.Handle
		}
		log.Info("user joined", fields)
		h.reply(c, EventJoined, map[string]string{"userId": data.UserID, "handle": c.Handle()})
	case EventLeave:
		if session, ok := h.registry.Unregister(c.Handle()); ok {
			log.Info("user left", map[string]interface{}{"userId": session.UserID})
		}
	case EventPing:
		h.reply(c, EventPong, map[string]string{})
	}
}

func (h *Hub) reply(c *Conn, event string, payload interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), h.replyTimeout())
	defer cancel()
	if err := c.Send(ctx, event, payload); err != nil {
		h.logger.Debug("reply failed", map[string]interface{}{"event": event, "error": err})
	}
}

func (h *Hub) replyTimeout() time.Duration {
	if h.opts.WriteTimeout > 0 {
		return h.opts.WriteTimeout
	}
	return 5 * time.Second
}
