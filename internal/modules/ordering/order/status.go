package order

import (
	"strings"

	"github.com/qrdine/core/internal/models"
)

// transitions lists the statuses reachable from each status. Statuses
// without an entry accept no outgoing transition.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderPending:   {models.OrderPreparing, models.OrderCancelled},
	models.OrderPreparing: {models.OrderReady, models.OrderCancelled},
	models.OrderReady:     {models.OrderServed, models.OrderCancelled},
	models.OrderServed:    {models.OrderPaid},
}

var knownStatuses = []models.OrderStatus{
	models.OrderPending,
	models.OrderPreparing,
	models.OrderReady,
	models.OrderServed,
	models.OrderCancelled,
	models.OrderPaid,
}

// ParseStatus matches raw against the recognized statuses.
func ParseStatus(raw string) (models.OrderStatus, bool) {
	s := models.OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range knownStatuses {
		if s == known {
			return s, true
		}
	}
	return "", false
}

// CanTransition reports whether from may move to to in one step.
func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the order no longer occupies its table.
func IsTerminal(s models.OrderStatus) bool {
	switch s {
	case models.OrderServed, models.OrderCancelled, models.OrderPaid:
		return true
	}
	return false
}

// webhookEvent names the outbound event for a status change.
func webhookEvent(to models.OrderStatus) string {
	if to == models.OrderServed {
		return EventCompleted
	}
	return EventUpdated
}

const (
	EventCreated   = "order.created"
	EventUpdated   = "order.updated"
	EventCompleted = "order.completed"
	EventCancelled = "order.cancelled"
)
