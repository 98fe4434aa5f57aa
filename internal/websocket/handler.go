package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"time"

	"wedding-site-backend/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Handler struct {
	hub         *Hub
	redisClient *redis.Client
	upgrader    websocket.Upgrader
}

// NewHandler builds a handler that accepts upgrades from allowedOrigins. An
// empty list or "*" accepts any origin.
func NewHandler(hub *Hub, redisClient *redis.Client, allowedOrigins []string) *Handler {
	return &Handler{
		hub:         hub,
		redisClient: redisClient,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return slices.Contains(allowed, u.Scheme+"://"+u.Host)
	}
}

// Subscribe relays every registry channel into the matching room until ctx
// ends. One pattern subscription serves all tenants.
func (h *Handler) Subscribe(ctx context.Context) error {
	pubsub := h.redisClient.PSubscribe(ctx, registryChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	logger.Info("Subscribed to registry channels", zap.String("pattern", registryChannelPrefix+"*"))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			roomID, ok := roomFromChannel(msg.Channel)
			if !ok {
				continue
			}
			if !json.Valid([]byte(msg.Payload)) {
				logger.Warn("Dropping non-JSON registry message", zap.String("channel", msg.Channel))
				continue
			}
			h.hub.deliver(ctx, &WSMessage{
				Content:   json.RawMessage(msg.Payload),
				RoomID:    roomID,
				Timestamp: time.Now().Unix(),
			})
		}
	}
}

func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request, roomID, clientID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		logger.DebugCtx(r.Context(), "Websocket upgrade failed", zap.Error(err))
		return
	}

	cl := newClient(conn, clientID, roomID)
	if !h.hub.register(cl) {
		_ = conn.Close()
		return
	}

	go cl.keepAlive()
	go cl.writeMessage()
	go cl.readMessage(h.hub)
}

func (h *Handler) GetRooms(w http.ResponseWriter, r *http.Request) {
	rooms := h.hub.Rooms(r.Context())
	if rooms == nil {
		rooms = []RoomRes{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(rooms)
}
