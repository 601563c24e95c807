package gateway

import (
	"strings"

	"github.com/qrdine/core/internal/middleware"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

func (h *Hub) registerNamespaces() {
	staffNS := h.sio.Of(namespaceStaff, nil)
	_ = staffNS.On("connection", func(args ...any) {
		if len(args) == 0 {
			return
		}
		client, ok := args[0].(*socketio.Socket)
		if !ok {
			return
		}

		orgID, ok := h.authorize(extractToken(client))
		if !ok {
			_ = client.Emit("message", h.gatewayMessageFormat(eventAuthFailed, "auth failed"))
			client.Disconnect(true)
			return
		}

		sid := string(client.Id())
		client.Join(socketio.Room(roomOf(orgID)))
		h.register <- clientMeta{sid: sid, orgID: orgID}
		_ = client.Emit("message", h.gatewayMessageFormat(eventConnect, map[string]string{
			"organization_id": orgID,
		}))

		_ = client.On("disconnect", func(_ ...any) {
			h.unregister <- clientMeta{sid: sid, orgID: orgID}
		})
	})
}

func (h *Hub) authorize(raw string) (string, bool) {
	token := middleware.NormalizeToken(raw)
	if token == "" || h.authenticate == nil {
		return "", false
	}
	orgID, ok := h.authenticate(token)
	if !ok || orgID == "" {
		return "", false
	}
	return orgID, true
}

func extractToken(client *socketio.Socket) string {
	handshake := client.Handshake()
	if handshake == nil {
		return ""
	}
	if token := firstValueFromMultiMap(handshake.Query, "token"); token != "" {
		return token
	}
	if token := firstValueFromMultiMap(handshake.Headers, "authorization"); token != "" {
		return token
	}
	return ""
}

func firstValueFromMultiMap(values map[string][]string, key string) string {
	if len(values) == 0 {
		return ""
	}
	for k, list := range values {
		if !strings.EqualFold(strings.TrimSpace(k), key) || len(list) == 0 {
			continue
		}
		v := strings.TrimSpace(list[0])
		if v != "" {
			return v
		}
	}
	return ""
}
