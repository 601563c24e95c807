// Package gormstore implements store.Gateway on gorm. It works against the
// mysql, postgres and sqlite dialects.
package gormstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/qrdine/core/internal/models"
	"github.com/qrdine/core/internal/pkg/apperr"
	"github.com/qrdine/core/internal/pkg/pagination"
	"github.com/qrdine/core/internal/pkg/response"
	"github.com/qrdine/core/internal/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ store.Gateway = (*Store)(nil)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store { return &Store{db: db} }

// DB exposes the underlying handle for migrations and tests.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) conn(ctx context.Context) *gorm.DB { return s.db.WithContext(ctx) }

// first loads one row into dest and returns (false, nil) when nothing matched.
func first(tx *gorm.DB, dest interface{}, op string) (bool, error) {
	if err := tx.First(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, apperr.Store(op, err)
	}
	return true, nil
}

// ── organizations ───────────────────────────────────────────────

func (s *Store) GetOrganization(ctx context.Context, id string) (*models.OrganizationModel, error) {
	var org models.OrganizationModel
	ok, err := first(s.conn(ctx).Where("id = ?", id), &org, "get organization")
	if !ok {
		return nil, err
	}
	return &org, nil
}

func (s *Store) GetOrganizationSettings(ctx context.Context, orgID string) (*models.OrganizationSettingsModel, error) {
	var settings models.OrganizationSettingsModel
	ok, err := first(s.conn(ctx).Where("organization_id = ?", orgID), &settings, "get organization settings")
	if !ok {
		return nil, err
	}
	return &settings, nil
}

// ── tables ──────────────────────────────────────────────────────

func (s *Store) GetTable(ctx context.Context, id string) (*models.TableModel, error) {
	var table models.TableModel
	ok, err := first(s.conn(ctx).Where("id = ?", id), &table, "get table")
	if !ok {
		return nil, err
	}
	return &table, nil
}

func (s *Store) SetTableStatus(ctx context.Context, id string, status models.TableStatus) error {
	err := s.conn(ctx).Model(&models.TableModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()}).Error
	return apperr.Store("set table status", err)
}

func (s *Store) ListTablesByStatus(ctx context.Context, status models.TableStatus) ([]models.TableModel, error) {
	var tables []models.TableModel
	err := s.conn(ctx).Where("status = ?", status).Order("organization_id, table_number").Find(&tables).Error
	return tables, apperr.Store("list tables", err)
}

// ── orders ──────────────────────────────────────────────────────

func (s *Store) InsertOrder(ctx context.Context, order *models.OrderModel) error {
	err := s.conn(ctx).Omit(clause.Associations).Create(order).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("insert order", err)
	}
	return apperr.Store("insert order", err)
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.OrderModel, error) {
	var order models.OrderModel
	ok, err := first(s.conn(ctx).Where("id = ?", id), &order, "get order")
	if !ok {
		return nil, err
	}
	return &order, nil
}

func (s *Store) GetOrderDetail(ctx context.Context, id string) (*models.OrderModel, error) {
	var order models.OrderModel
	tx := s.conn(ctx).Preload("Table").Preload("Organization").Where("id = ?", id)
	ok, err := first(tx, &order, "get order detail")
	if !ok {
		return nil, err
	}
	return &order, nil
}

func (s *Store) ListOrders(ctx context.Context, filter store.OrderFilter) ([]models.OrderModel, error) {
	tx := s.conn(ctx).Model(&models.OrderModel{}).Preload("Table")
	if filter.OrganizationID != "" {
		tx = tx.Where("organization_id = ?", filter.OrganizationID)
	}
	if filter.SessionID != "" {
		tx = tx.Where("session_id = ?", filter.SessionID)
	}
	if filter.TableID != "" {
		tx = tx.Where("table_id = ?", filter.TableID)
	}
	if filter.Status != "" {
		tx = tx.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		tx = tx.Limit(filter.Limit)
	}

	var orders []models.OrderModel
	err := tx.Order("created_at DESC").Find(&orders).Error
	return orders, apperr.Store("list orders", err)
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, from, to models.OrderStatus) (bool, error) {
	res := s.conn(ctx).Model(&models.OrderModel{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return false, apperr.Store("update order status", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) CountActiveOrdersForTable(ctx context.Context, tableID, excludeOrderID string) (int64, error) {
	tx := s.conn(ctx).Model(&models.OrderModel{}).
		Where("table_id = ? AND status IN ?", tableID, models.ActiveOrderStatuses)
	if excludeOrderID != "" {
		tx = tx.Where("id <> ?", excludeOrderID)
	}
	var n int64
	err := tx.Count(&n).Error
	return n, apperr.Store("count active orders", err)
}

// ── analytics ───────────────────────────────────────────────────

func (s *Store) InsertEvent(ctx context.Context, event *models.AnalyticsEventModel) error {
	return apperr.Store("insert analytics event", s.conn(ctx).Create(event).Error)
}

func (s *Store) eventQuery(ctx context.Context, filter store.EventFilter) *gorm.DB {
	tx := s.conn(ctx).Model(&models.AnalyticsEventModel{}).Where("organization_id = ?", filter.OrganizationID)
	if filter.EventType != "" {
		tx = tx.Where("event_type = ?", filter.EventType)
	}
	if filter.SessionID != "" {
		tx = tx.Where("session_id = ?", filter.SessionID)
	}
	if !filter.Since.IsZero() {
		tx = tx.Where("created_at >= ?", filter.Since.UTC())
	}
	return tx
}

func (s *Store) ListEvents(ctx context.Context, filter store.EventFilter, q pagination.Query) ([]models.AnalyticsEventModel, response.Pagination, error) {
	var items []models.AnalyticsEventModel
	pag, err := pagination.Paginate(s.eventQuery(ctx, filter), q, "created_at DESC", &items)
	return items, pag, apperr.Store("list analytics events", err)
}

func (s *Store) CountEventsByType(ctx context.Context, orgID string, since time.Time) (map[string]int64, error) {
	var rows []struct {
		EventType string
		Total     int64
	}
	err := s.eventQuery(ctx, store.EventFilter{OrganizationID: orgID, Since: since}).
		Select("event_type, COUNT(*) AS total").
		Group("event_type").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Store("count analytics events", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.EventType] = r.Total
	}
	return out, nil
}

// ── webhooks ────────────────────────────────────────────────────

func (s *Store) ListWebhookConfigs(ctx context.Context, orgID string) ([]models.WebhookConfigModel, error) {
	var items []models.WebhookConfigModel
	err := s.conn(ctx).Where("organization_id = ?", orgID).Order("created_at DESC").Find(&items).Error
	return items, apperr.Store("list webhooks", err)
}

func (s *Store) ListActiveWebhookConfigs(ctx context.Context, orgID string) ([]models.WebhookConfigModel, error) {
	var items []models.WebhookConfigModel
	err := s.conn(ctx).Where("organization_id = ? AND is_active = ?", orgID, true).Find(&items).Error
	return items, apperr.Store("list active webhooks", err)
}

func (s *Store) GetWebhookConfig(ctx context.Context, orgID, id string) (*models.WebhookConfigModel, error) {
	var cfg models.WebhookConfigModel
	ok, err := first(s.conn(ctx).Where("id = ? AND organization_id = ?", id, orgID), &cfg, "get webhook")
	if !ok {
		return nil, err
	}
	return &cfg, nil
}

func (s *Store) CreateWebhookConfig(ctx context.Context, cfg *models.WebhookConfigModel) error {
	return apperr.Store("create webhook", s.conn(ctx).Create(cfg).Error)
}

func (s *Store) UpdateWebhookConfig(ctx context.Context, cfg *models.WebhookConfigModel, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	if err := s.conn(ctx).Model(cfg).Updates(updates).Error; err != nil {
		return apperr.Store("update webhook", err)
	}
	return apperr.Store("reload webhook", s.conn(ctx).Where("id = ?", cfg.ID).First(cfg).Error)
}

func (s *Store) DeleteWebhookConfig(ctx context.Context, orgID, id string) (bool, error) {
	res := s.conn(ctx).Where("id = ? AND organization_id = ?", id, orgID).Delete(&models.WebhookConfigModel{})
	if res.Error != nil {
		return false, apperr.Store("delete webhook", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ── deliveries ──────────────────────────────────────────────────

func (s *Store) InsertDelivery(ctx context.Context, d *models.WebhookDeliveryModel) error {
	return apperr.Store("insert delivery", s.conn(ctx).Create(d).Error)
}

func (s *Store) GetDelivery(ctx context.Context, orgID, id string) (*models.WebhookDeliveryModel, error) {
	var d models.WebhookDeliveryModel
	ok, err := first(s.conn(ctx).Where("id = ? AND organization_id = ?", id, orgID), &d, "get delivery")
	if !ok {
		return nil, err
	}
	return &d, nil
}

func (s *Store) ListDeliveries(ctx context.Context, orgID, webhookID string, q pagination.Query) ([]models.WebhookDeliveryModel, response.Pagination, error) {
	tx := s.conn(ctx).Model(&models.WebhookDeliveryModel{}).Where("organization_id = ?", orgID)
	if webhookID != "" {
		tx = tx.Where("webhook_id = ?", webhookID)
	}
	var items []models.WebhookDeliveryModel
	pag, err := pagination.Paginate(tx, q, "delivered_at DESC", &items)
	return items, pag, apperr.Store("list deliveries", err)
}

func (s *Store) DeleteDeliveriesBefore(ctx context.Context, before time.Time) (int64, error) {
	res := s.conn(ctx).Unscoped().Where("delivered_at < ?", before.UTC()).Delete(&models.WebhookDeliveryModel{})
	return res.RowsAffected, apperr.Store("prune deliveries", res.Error)
}

// ── menu ────────────────────────────────────────────────────────

func (s *Store) ListVisibleCategories(ctx context.Context, orgID string) ([]models.MenuCategoryModel, error) {
	var items []models.MenuCategoryModel
	err := s.conn(ctx).Where("organization_id = ? AND visible = ?", orgID, true).
		Order("display_order ASC, name ASC").Find(&items).Error
	return items, apperr.Store("list menu categories", err)
}

func (s *Store) ListAvailableItems(ctx context.Context, orgID string) ([]models.MenuItemModel, error) {
	var items []models.MenuItemModel
	err := s.conn(ctx).Where("organization_id = ? AND available = ?", orgID, true).
		Order("display_order ASC, name ASC").Find(&items).Error
	return items, apperr.Store("list menu items", err)
}

// ── conversations ───────────────────────────────────────────────

func (s *Store) GetConversation(ctx context.Context, orgID, sessionID string) (*models.AIConversationModel, error) {
	var conv models.AIConversationModel
	ok, err := first(s.conn(ctx).Where("organization_id = ? AND session_id = ?", orgID, sessionID), &conv, "get conversation")
	if !ok {
		return nil, err
	}
	return &conv, nil
}

func (s *Store) UpsertConversation(ctx context.Context, conv *models.AIConversationModel) error {
	conv.UpdatedAt = time.Now()
	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}, {Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"messages", "metadata", "updated_at"}),
	}).Create(conv).Error
	return apperr.Store("upsert conversation", err)
}

// ── table calls ─────────────────────────────────────────────────

func (s *Store) InsertTableCall(ctx context.Context, call *models.TableCallModel) error {
	return apperr.Store("insert table call", s.conn(ctx).Omit(clause.Associations).Create(call).Error)
}

func (s *Store) GetTableCall(ctx context.Context, orgID, id string) (*models.TableCallModel, error) {
	var call models.TableCallModel
	ok, err := first(s.conn(ctx).Preload("Table").Where("id = ? AND organization_id = ?", id, orgID), &call, "get table call")
	if !ok {
		return nil, err
	}
	return &call, nil
}

func (s *Store) ListTableCalls(ctx context.Context, orgID string, status models.TableCallStatus) ([]models.TableCallModel, error) {
	tx := s.conn(ctx).Preload("Table").Where("organization_id = ?", orgID)
	if status != "" {
		tx = tx.Where("status = ?", status)
	}
	var items []models.TableCallModel
	err := tx.Order("created_at DESC").Find(&items).Error
	return items, apperr.Store("list table calls", err)
}

func (s *Store) UpdateTableCallStatus(ctx context.Context, id string, status models.TableCallStatus, resolvedAt *time.Time) error {
	err := s.conn(ctx).Model(&models.TableCallModel{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "resolved_at": resolvedAt, "updated_at": time.Now().UTC()}).Error
	return apperr.Store("update table call", err)
}

// ── staff ───────────────────────────────────────────────────────

func (s *Store) GetStaffByEmail(ctx context.Context, email string) (*models.StaffModel, error) {
	var staff models.StaffModel
	ok, err := first(s.conn(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))), &staff, "get staff")
	if !ok {
		return nil, err
	}
	return &staff, nil
}

func (s *Store) CreateStaff(ctx context.Context, staff *models.StaffModel) error {
	staff.Email = strings.ToLower(strings.TrimSpace(staff.Email))
	err := s.conn(ctx).Create(staff).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("create staff", err)
	}
	return apperr.Store("create staff", err)
}
