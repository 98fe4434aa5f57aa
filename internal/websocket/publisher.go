package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"wedding-site-backend/internal/model"

	"github.com/go-redis/redis/v8"
)

const registryChannelPrefix = "registry:"

// RegistryChannel names the redis channel carrying one tenant's gift updates.
func RegistryChannel(tenantID string) string {
	return registryChannelPrefix + tenantID
}

func roomFromChannel(channel string) (string, bool) {
	roomID, ok := strings.CutPrefix(channel, registryChannelPrefix)
	return roomID, ok && roomID != ""
}

// RedisPublisher fans gift counter changes out to every websocket server via
// redis pub/sub. It satisfies ledger.Notifier.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) GiftChanged(ctx context.Context, gift model.Gift) error {
	return p.Publish(ctx, gift.TenantID, NewGiftEvent(gift))
}

func (p *RedisPublisher) Publish(ctx context.Context, roomID string, payload any) error {
	if roomID == "" {
		return fmt.Errorf("websocket publish: roomID required")
	}
	if p == nil || p.client == nil {
		return fmt.Errorf("websocket publish: redis client not initialised")
	}

	messageJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("websocket publish: marshal payload: %w", err)
	}

	if err := p.client.Publish(ctx, RegistryChannel(roomID), string(messageJSON)).Err(); err != nil {
		return fmt.Errorf("websocket publish: redis publish: %w", err)
	}
	return nil
}

func NewGiftEvent(gift model.Gift) GiftEvent {
	return GiftEvent{
		Type:             GiftUpdatedEvent,
		TenantID:         gift.TenantID,
		GiftID:           gift.ID,
		TotalQuantity:    gift.TotalQuantity,
		ReservedQuantity: gift.ReservedQuantity,
		Remaining:        gift.Remaining(),
		Status:           gift.Status(),
		Version:          gift.Version,
	}
}
