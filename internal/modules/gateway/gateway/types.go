package gateway

import (
	"sync"

	pkgredis "github.com/qrdine/core/internal/pkg/redis"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

const (
	namespaceStaff = "/staff"
	redisChanStaff = "qrdine:gateway:staff"
	roomPrefix     = "org:"

	eventConnect    = "GATEWAY_CONNECT"
	eventAuthFailed = "AUTH_FAILED"

	broadcastBuffer = 256
)

// Message is the envelope used by hub broadcasts and Redis fan-out.
type Message struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
	Room    string      `json:"room"`
	Origin  string      `json:"origin,omitempty"`
}

type gatewayPayload struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type clientMeta struct {
	sid   string
	orgID string
}

// Authenticator resolves a staff token to the organization it belongs to.
type Authenticator func(token string) (orgID string, ok bool)

// Hub pushes order and table-call events to the staff dashboards of one
// organization, across every server instance sharing Redis.
type Hub struct {
	mu sync.RWMutex

	sidOrg   map[string]string
	orgCount map[string]int

	broadcast  chan Message
	register   chan clientMeta
	unregister chan clientMeta

	instanceID   string
	rc           *pkgredis.Client
	logger       *zap.Logger
	sio          *socketio.Server
	authenticate Authenticator
	emit         func(room string, payload gatewayPayload)
}

func roomOf(orgID string) string { return roomPrefix + orgID }
