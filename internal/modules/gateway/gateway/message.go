package gateway

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

func (h *Hub) gatewayMessageFormat(event string, payload interface{}) gatewayPayload {
	return gatewayPayload{Type: event, Data: payload}
}

func (h *Hub) deliver(msg Message) {
	if !strings.HasPrefix(msg.Room, roomPrefix) {
		return
	}
	h.emit(msg.Room, h.gatewayMessageFormat(msg.Event, msg.Payload))
}

// subscribeRedis delivers broadcasts published by other server instances.
func (h *Hub) subscribeRedis(ctx context.Context) {
	pubsub := h.rc.Subscribe(ctx, redisChanStaff)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return

		case redisMsg, ok := <-ch:
			if !ok {
				return
			}
			var msg Message
			if err := json.Unmarshal([]byte(redisMsg.Payload), &msg); err != nil {
				h.logger.Debug("gateway ignored malformed fan-out message", zap.Error(err))
				continue
			}
			if msg.Origin == h.instanceID {
				continue
			}
			h.deliver(msg)
		}
	}
}
