package websocket

import "encoding/json"

// Room holds the guests watching one tenant's registry.
type Room struct {
	ID      string
	Clients map[string]*WSClient
}

type WSMessage struct {
	Content   json.RawMessage `json:"content"`
	RoomID    string          `json:"roomId"`
	Timestamp int64           `json:"timestamp"`
}

const GiftUpdatedEvent = "gift.updated"

// GiftEvent tells watching guests how much of a gift is still available.
type GiftEvent struct {
	Type             string `json:"type"`
	TenantID         string `json:"tenantId"`
	GiftID           string `json:"giftId"`
	TotalQuantity    int64  `json:"totalQuantity"`
	ReservedQuantity int64  `json:"reservedQuantity"`
	Remaining        int64  `json:"remaining"`
	Status           string `json:"status"`
	Version          int64  `json:"version"`
}

type RoomRes struct {
	ID      string `json:"id"`
	Clients int    `json:"clients"`
}
