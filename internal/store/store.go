// Package store declares the persistence capabilities the domain services
// depend on. Lookups return (nil, nil) when a record does not exist; every
// other failure is wrapped with apperr.ErrStore.
package store

import (
	"context"
	"time"

	"github.com/qrdine/core/internal/models"
	"github.com/qrdine/core/internal/pkg/pagination"
	"github.com/qrdine/core/internal/pkg/response"
)

type Organizations interface {
	GetOrganization(ctx context.Context, id string) (*models.OrganizationModel, error)
	GetOrganizationSettings(ctx context.Context, orgID string) (*models.OrganizationSettingsModel, error)
}

type Tables interface {
	GetTable(ctx context.Context, id string) (*models.TableModel, error)
	SetTableStatus(ctx context.Context, id string, status models.TableStatus) error
	ListTablesByStatus(ctx context.Context, status models.TableStatus) ([]models.TableModel, error)
}

// OrderFilter narrows ListOrders. Empty fields are ignored.
type OrderFilter struct {
	OrganizationID string
	SessionID      string
	TableID        string
	Status         models.OrderStatus
	Limit          int
}

type Orders interface {
	InsertOrder(ctx context.Context, order *models.OrderModel) error
	GetOrder(ctx context.Context, id string) (*models.OrderModel, error)
	GetOrderDetail(ctx context.Context, id string) (*models.OrderModel, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]models.OrderModel, error)
	// UpdateOrderStatus applies to only when the stored status still equals
	// from. It reports whether the row was changed.
	UpdateOrderStatus(ctx context.Context, id string, from, to models.OrderStatus) (bool, error)
	CountActiveOrdersForTable(ctx context.Context, tableID, excludeOrderID string) (int64, error)
}

type EventFilter struct {
	OrganizationID string
	EventType      string
	SessionID      string
	Since          time.Time
}

type Events interface {
	InsertEvent(ctx context.Context, event *models.AnalyticsEventModel) error
	ListEvents(ctx context.Context, filter EventFilter, q pagination.Query) ([]models.AnalyticsEventModel, response.Pagination, error)
	CountEventsByType(ctx context.Context, orgID string, since time.Time) (map[string]int64, error)
}

type Webhooks interface {
	ListWebhookConfigs(ctx context.Context, orgID string) ([]models.WebhookConfigModel, error)
	ListActiveWebhookConfigs(ctx context.Context, orgID string) ([]models.WebhookConfigModel, error)
	GetWebhookConfig(ctx context.Context, orgID, id string) (*models.WebhookConfigModel, error)
	CreateWebhookConfig(ctx context.Context, cfg *models.WebhookConfigModel) error
	UpdateWebhookConfig(ctx context.Context, cfg *models.WebhookConfigModel, updates map[string]interface{}) error
	DeleteWebhookConfig(ctx context.Context, orgID, id string) (bool, error)
}

type Deliveries interface {
	InsertDelivery(ctx context.Context, d *models.WebhookDeliveryModel) error
	GetDelivery(ctx context.Context, orgID, id string) (*models.WebhookDeliveryModel, error)
	ListDeliveries(ctx context.Context, orgID, webhookID string, q pagination.Query) ([]models.WebhookDeliveryModel, response.Pagination, error)
	DeleteDeliveriesBefore(ctx context.Context, before time.Time) (int64, error)
}

type Menu interface {
	ListVisibleCategories(ctx context.Context, orgID string) ([]models.MenuCategoryModel, error)
	ListAvailableItems(ctx context.Context, orgID string) ([]models.MenuItemModel, error)
}

type Conversations interface {
	GetConversation(ctx context.Context, orgID, sessionID string) (*models.AIConversationModel, error)
	UpsertConversation(ctx context.Context, conv *models.AIConversationModel) error
}

type TableCalls interface {
	InsertTableCall(ctx context.Context, call *models.TableCallModel) error
	GetTableCall(ctx context.Context, orgID, id string) (*models.TableCallModel, error)
	ListTableCalls(ctx context.Context, orgID string, status models.TableCallStatus) ([]models.TableCallModel, error)
	UpdateTableCallStatus(ctx context.Context, id string, status models.TableCallStatus, resolvedAt *time.Time) error
}

type Staff interface {
	GetStaffByEmail(ctx context.Context, email string) (*models.StaffModel, error)
	CreateStaff(ctx context.Context, staff *models.StaffModel) error
}

// Gateway is the full capability set; the gorm implementation satisfies it.
type Gateway interface {
	Organizations
	Tables
	Orders
	Events
	Webhooks
	Deliveries
	Menu
	Conversations
	TableCalls
	Staff
}
