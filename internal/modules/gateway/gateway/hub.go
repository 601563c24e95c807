package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	pkgredis "github.com/qrdine/core/internal/pkg/redis"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

// NewHub builds the socket.io server. rc may be nil on a single instance.
func NewHub(rc *pkgredis.Client, logger *zap.Logger, authenticate Authenticator) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	sio := socketio.NewServer(nil, nil)
	h := &Hub{
		sidOrg:       make(map[string]string),
		orgCount:     make(map[string]int),
		broadcast:    make(chan Message, broadcastBuffer),
		register:     make(chan clientMeta, broadcastBuffer),
		unregister:   make(chan clientMeta, broadcastBuffer),
		instanceID:   uuid.New().String(),
		rc:           rc,
		logger:       logger.Named("Gateway"),
		sio:          sio,
		authenticate: authenticate,
	}
	h.emit = func(room string, payload gatewayPayload) {
		if err := h.sio.Of(namespaceStaff, nil).To(socketio.Room(room)).Emit("message", payload); err != nil {
			h.logger.Warn("gateway emit failed", zap.String("room", room), zap.Error(err))
		}
	}
	h.registerNamespaces()
	return h
}

// Run starts the hub loop and Redis subscriber.
func (h *Hub) Run(ctx context.Context) {
	if h.rc != nil {
		go h.subscribeRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.sio.Close(nil)
			return

		case c := <-h.register:
			h.registerClient(c)

		case c := <-h.unregister:
			h.unregisterClient(c)

		case msg := <-h.broadcast:
			h.deliver(msg)
			if h.rc == nil {
				continue
			}
			msg.Origin = h.instanceID
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Warn("gateway encode failed", zap.String("event", msg.Event), zap.Error(err))
				continue
			}
			if err := h.rc.Publish(ctx, redisChanStaff, string(data)); err != nil {
				h.logger.Warn("gateway publish failed", zap.String("channel", redisChanStaff), zap.Error(err))
			}
		}
	}
}

func (h *Hub) registerClient(c clientMeta) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.sidOrg[c.sid]; ok {
		if old == c.orgID {
			return
		}
		if h.orgCount[old] > 0 {
			h.orgCount[old]--
		}
	}
	h.sidOrg[c.sid] = c.orgID
	h.orgCount[c.orgID]++
}

func (h *Hub) unregisterClient(c clientMeta) {
	h.mu.Lock()
	defer h.mu.Unlock()
	orgID, ok := h.sidOrg[c.sid]
	if !ok {
		return
	}
	delete(h.sidOrg, c.sid)
	if h.orgCount[orgID] > 0 {
		h.orgCount[orgID]--
	}
	if h.orgCount[orgID] == 0 {
		delete(h.orgCount, orgID)
	}
}

// BroadcastToOrganization queues event for every staff socket of orgID.
// It never blocks; when the hub is saturated the event is dropped.
func (h *Hub) BroadcastToOrganization(orgID, event string, data interface{}) {
	if orgID == "" {
		return
	}
	select {
	case h.broadcast <- Message{Event: event, Payload: data, Room: roomOf(orgID)}:
	default:
		h.logger.Warn("gateway broadcast dropped",
			zap.String("organization_id", orgID),
			zap.String("event", event),
		)
	}
}

// ClientCount returns the number of staff sockets connected to this
// instance, optionally for one organization.
func (h *Hub) ClientCount(orgID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if orgID == "" {
		return len(h.sidOrg)
	}
	return h.orgCount[orgID]
}

// Handler returns the socket.io HTTP handler mounted at /socket.io.
func (h *Hub) Handler() http.Handler {
	return h.sio.ServeHandler(nil)
}
