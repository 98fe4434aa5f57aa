package websocket

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Hub owns every room. All room state is touched only from Run.
type Hub struct {
	rooms      map[string]*Room
	Register   chan *WSClient
	Unregister chan *WSClient
	Broadcast  chan *WSMessage
	listRooms  chan chan []RoomRes
	done       chan struct{}
	metrics    *metrics
}

func NewHub(reg prometheus.Registerer) *Hub {
	return &Hub{
		rooms:      make(map[string]*Room),
		Register:   make(chan *WSClient),
		Unregister: make(chan *WSClient),
		Broadcast:  make(chan *WSMessage, 64),
		listRooms:  make(chan chan []RoomRes),
		done:       make(chan struct{}),
		metrics:    newMetrics(reg),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for _, room := range h.rooms {
				for _, client := range room.Clients {
					h.drop(room, client)
				}
			}
			return

		case client := <-h.Register:
			room, ok := h.rooms[client.RoomID]
			if !ok {
				room = &Room{ID: client.RoomID, Clients: make(map[string]*WSClient)}
				h.rooms[client.RoomID] = room
				h.metrics.rooms.Set(float64(len(h.rooms)))
			}
			room.Clients[client.ID] = client
			h.metrics.connections.Inc()

		case client := <-h.Unregister:
			room, ok := h.rooms[client.RoomID]
			if !ok {
				continue
			}
			if _, ok := room.Clients[client.ID]; ok {
				h.drop(room, client)
			}

		case message := <-h.Broadcast:
			room, ok := h.rooms[message.RoomID]
			if !ok {
				continue
			}
			delivered := 0
			for _, client := range room.Clients {
				select {
				case client.Message <- message:
					delivered++
				default:
					h.metrics.dropped.Inc()
					h.drop(room, client)
				}
			}
			if delivered > 0 {
				h.metrics.delivered.Add(float64(delivered))
			}

		case reply := <-h.listRooms:
			rooms := make([]RoomRes, 0, len(h.rooms))
			for _, room := range h.rooms {
				rooms = append(rooms, RoomRes{ID: room.ID, Clients: len(room.Clients)})
			}
			reply <- rooms
		}
	}
}

func (h *Hub) drop(room *Room, client *WSClient) {
	delete(room.Clients, client.ID)
	close(client.Message)
	h.metrics.connections.Dec()
	if len(room.Clients) == 0 {
		delete(h.rooms, room.ID)
		h.metrics.rooms.Set(float64(len(h.rooms)))
	}
}

// Rooms reports the rooms that currently have watchers.
func (h *Hub) Rooms(ctx context.Context) []RoomRes {
	reply := make(chan []RoomRes, 1)
	select {
	case h.listRooms <- reply:
	case <-h.done:
		return nil
	case <-ctx.Done():
		return nil
	}
	return <-reply
}

func (h *Hub) unregister(client *WSClient) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) register(client *WSClient) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// deliver hands message to the hub unless it has stopped.
func (h *Hub) deliver(ctx context.Context, message *WSMessage) {
	select {
	case h.Broadcast <- message:
	case <-h.done:
	case <-ctx.Done():
	}
}
