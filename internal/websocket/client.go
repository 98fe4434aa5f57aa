package websocket

import (
	"errors"
	"sync"
	"time"

	"wedding-site-backend/internal/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 2 * pingInterval
	writeWait    = 10 * time.Second
	readLimit    = 4 * 1024
)

type WSClient struct {
	Conn    *websocket.Conn
	Message chan *WSMessage
	ID      string
	RoomID  string
	done    chan struct{}
	mu      sync.Mutex
	closed  bool
}

func newClient(conn *websocket.Conn, id, roomID string) *WSClient {
	return &WSClient{
		Conn:    conn,
		Message: make(chan *WSMessage, 16),
		ID:      id,
		RoomID:  roomID,
		done:    make(chan struct{}),
	}
}

func (cl *WSClient) keepAlive() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cl.done:
			return
		case <-ticker.C:
			cl.mu.Lock()
			if cl.closed {
				cl.mu.Unlock()
				return
			}
			err := cl.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			cl.mu.Unlock()

			if err != nil {
				logger.Debug("Websocket ping failed", zap.String("client_id", cl.ID), zap.Error(err))
				return
			}
		}
	}
}

func (cl *WSClient) writeMessage() {
	defer cl.close()

	for {
		select {
		case <-cl.done:
			return
		case msg, ok := <-cl.Message:
			if !ok {
				cl.mu.Lock()
				if !cl.closed {
					_ = cl.Conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
						time.Now().Add(writeWait))
				}
				cl.mu.Unlock()
				return
			}

			cl.mu.Lock()
			if cl.closed {
				cl.mu.Unlock()
				return
			}
			_ = cl.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := cl.Conn.WriteJSON(msg)
			cl.mu.Unlock()

			if err != nil {
				logger.Debug("Websocket write failed", zap.String("client_id", cl.ID), zap.Error(err))
				return
			}
		}
	}
}

// readMessage drains the connection so control frames are processed. Guests
// only listen; anything they send is discarded.
func (cl *WSClient) readMessage(hub *Hub) {
	defer func() {
		close(cl.done)
		hub.unregister(cl)
		logger.Debug("Websocket client disconnected",
			zap.String("client_id", cl.ID),
			zap.String("room_id", cl.RoomID))
	}()

	cl.Conn.SetReadLimit(readLimit)
	_ = cl.Conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.Conn.SetPongHandler(func(string) error {
		return cl.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := cl.Conn.ReadMessage(); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				logger.Debug("Websocket read failed", zap.String("client_id", cl.ID), zap.Error(err))
			}
			return
		}
	}
}

func (cl *WSClient) close() {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.closed {
		return
	}
	cl.closed = true
	_ = cl.Conn.Close()
}
