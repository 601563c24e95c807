package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/qrdine/core/internal/models"
	"github.com/qrdine/core/internal/pkg/apperr"
	"github.com/qrdine/core/internal/pkg/metrics"
	"github.com/qrdine/core/internal/store"
	"go.uber.org/zap"
)

const (
	insertAttempts     = 3
	transitionAttempts = 2

	RealtimeOrderCreated = "ORDER_CREATED"
	RealtimeOrderUpdated = "ORDER_UPDATED"
)

// Store is the persistence the lifecycle manager needs.
type Store interface {
	store.Organizations
	store.Tables
	store.Orders
}

// Recorder appends analytics events. Implementations swallow their own
// failures.
type Recorder interface {
	Record(ctx context.Context, orgID, eventType string, data map[string]interface{}, sessionID string)
}

// Dispatcher enqueues outbound webhook notifications without blocking.
type Dispatcher interface {
	Dispatch(orgID, event, resourceID string, resource interface{}, meta map[string]interface{})
}

// Broadcaster pushes live updates to a tenant's staff dashboards.
type Broadcaster interface {
	BroadcastToOrganization(orgID, event string, data interface{})
}

type Service struct {
	store       Store
	numbers     *NumberGenerator
	recorder    Recorder
	dispatcher  Dispatcher
	broadcaster Broadcaster
	log         *zap.Logger
	now         func() time.Time
}

func NewService(st Store, numbers *NumberGenerator, recorder Recorder, dispatcher Dispatcher, broadcaster Broadcaster, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if numbers == nil {
		numbers = NewNumberGenerator(nil, log)
	}
	return &Service{
		store:       st,
		numbers:     numbers,
		recorder:    recorder,
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		log:         log.Named("OrderService"),
		now:         time.Now,
	}
}

// Create persists a pending order for a validated submission. Table
// occupancy, analytics, webhooks and realtime pushes follow the insert and
// never fail the call.
func (s *Service) Create(ctx context.Context, in *NewOrder) (*models.OrderModel, error) {
	var table *models.TableModel
	orgID := in.OrganizationID

	if in.TableID != "" {
		t, err := s.store.GetTable(ctx, in.TableID)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, apperr.NotFound("table")
		}
		if orgID != "" && orgID != t.OrganizationID {
			return nil, apperr.Invalid("organization_id", "does not match the table's organization")
		}
		if t.Status == models.TableDisabled {
			return nil, apperr.Invalid("table_id", "table is not accepting orders")
		}
		table = t
		orgID = t.OrganizationID
	} else {
		org, err := s.store.GetOrganization(ctx, orgID)
		if err != nil {
			return nil, err
		}
		if org == nil {
			return nil, apperr.NotFound("organization")
		}
	}

	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = "session_" + strconv.FormatInt(s.now().UnixMilli(), 10)
	}

	order := &models.OrderModel{
		OrganizationID: orgID,
		Items:          in.Items,
		TotalAmount:    Total(in.Items),
		Status:         models.OrderPending,
		CustomerName:   in.CustomerName,
		CustomerNotes:  in.CustomerNotes,
		SessionID:      sessionID,
	}
	if table != nil {
		order.TableID = &table.ID
	}

	if err := s.insert(ctx, order); err != nil {
		return nil, err
	}
	metrics.OrdersCreated.Inc()

	log := s.log.With(zap.String("order_id", order.ID), zap.String("organization_id", orgID))
	if table != nil {
		if table.Status != models.TableOccupied {
			if err := s.store.SetTableStatus(ctx, table.ID, models.TableOccupied); err != nil {
				log.Warn("mark table occupied failed", zap.String("table_id", table.ID), zap.Error(err))
			} else {
				table.Status = models.TableOccupied
			}
		}
		order.Table = table
	}

	s.record(ctx, orgID, models.EventOrderCreated, map[string]interface{}{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"items_count":  len(order.Items),
		"total_amount": order.TotalAmount,
	}, sessionID)

	meta := map[string]interface{}{"items_count": len(order.Items)}
	if table != nil {
		meta["table_number"] = table.TableNumber
	}
	if order.CustomerName != "" {
		meta["customer_name"] = order.CustomerName
	}
	s.dispatch(orgID, EventCreated, order, meta)
	s.broadcast(orgID, RealtimeOrderCreated, order)

	log.Info("order created", zap.String("order_number", order.OrderNumber), zap.Float64("total", order.TotalAmount))
	return order, nil
}

func (s *Service) insert(ctx context.Context, order *models.OrderModel) error {
	var err error
	for attempt := 0; attempt < insertAttempts; attempt++ {
		order.ID = ""
		order.OrderNumber, err = s.numbers.Next(ctx)
		if err != nil {
			return fmt.Errorf("generate order number: %w", err)
		}
		err = s.store.InsertOrder(ctx, order)
		if err == nil || !errors.Is(err, apperr.ErrConflict) {
			return err
		}
		s.log.Warn("order number collision", zap.String("order_number", order.OrderNumber))
	}
	return err
}

// UpdateStatus moves an order to status. The change is applied only if the
// stored status is still the one the transition was checked against; a lost
// race is re-evaluated once. Repeating the current status is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) (*models.OrderModel, error) {
	if _, ok := ParseStatus(string(status)); !ok {
		return nil, apperr.Invalid("status", fmt.Sprintf("unknown status %q", status))
	}

	var current *models.OrderModel
	applied := false
	for attempt := 0; attempt < transitionAttempts && !applied; attempt++ {
		o, err := s.store.GetOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		if o == nil {
			return nil, apperr.NotFound("order")
		}
		if o.Status == status {
			return s.Get(ctx, id)
		}
		if !CanTransition(o.Status, status) {
			return nil, &apperr.TransitionError{From: string(o.Status), To: string(status)}
		}
		current = o
		applied, err = s.store.UpdateOrderStatus(ctx, id, o.Status, status)
		if err != nil {
			return nil, err
		}
	}
	if !applied {
		return nil, apperr.Conflict("update order status", fmt.Errorf("order %s changed concurrently", id))
	}

	previous := current.Status
	metrics.OrderTransitions.WithLabelValues(string(previous), string(status)).Inc()
	log := s.log.With(zap.String("order_id", id), zap.String("organization_id", current.OrganizationID))

	if IsTerminal(status) && current.TableID != nil {
		s.releaseTable(ctx, log, *current.TableID, id)
	}

	s.record(ctx, current.OrganizationID, models.EventOrderStatusUpdated, map[string]interface{}{
		"order_id":        id,
		"previous_status": string(previous),
		"new_status":      string(status),
	}, current.SessionID)

	// The write is committed; a failed reload must not hide it from the
	// caller or drop the notifications.
	updated, err := s.Get(ctx, id)
	if err != nil {
		log.Warn("reload order after status change failed", zap.Error(err))
		fallback := *current
		fallback.Status = status
		fallback.UpdatedAt = s.now().UTC()
		updated = &fallback
	}

	meta := map[string]interface{}{
		"previous_status": string(previous),
		"new_status":      string(status),
	}
	if updated.Table != nil {
		meta["table_number"] = updated.Table.TableNumber
	}
	s.dispatch(current.OrganizationID, webhookEvent(status), updated, meta)
	if status == models.OrderCancelled {
		s.dispatch(current.OrganizationID, EventCancelled, updated, meta)
	}
	s.broadcast(current.OrganizationID, RealtimeOrderUpdated, updated)

	log.Info("order status updated", zap.String("from", string(previous)), zap.String("to", string(status)))
	return updated, nil
}

// releaseTable frees an occupied table once no other active order holds it.
func (s *Service) releaseTable(ctx context.Context, log *zap.Logger, tableID, orderID string) {
	active, err := s.store.CountActiveOrdersForTable(ctx, tableID, orderID)
	if err != nil {
		log.Warn("count active orders failed", zap.String("table_id", tableID), zap.Error(err))
		return
	}
	if active > 0 {
		log.Debug("table still in use", zap.String("table_id", tableID), zap.Int64("active_orders", active))
		return
	}
	table, err := s.store.GetTable(ctx, tableID)
	if err != nil || table == nil {
		log.Warn("load table failed", zap.String("table_id", tableID), zap.Error(err))
		return
	}
	if table.Status != models.TableOccupied {
		return
	}
	if err := s.store.SetTableStatus(ctx, tableID, models.TableAvailable); err != nil {
		log.Warn("release table failed", zap.String("table_id", tableID), zap.Error(err))
	}
}

// Get returns an order with its table and organization.
func (s *Service) Get(ctx context.Context, id string) (*models.OrderModel, error) {
	o, err := s.store.GetOrderDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, apperr.NotFound("order")
	}
	return o, nil
}

// List returns orders newest first. At least one of session or
// organization must be given.
func (s *Service) List(ctx context.Context, filter store.OrderFilter) ([]models.OrderModel, error) {
	if filter.SessionID == "" && filter.OrganizationID == "" {
		return nil, apperr.Invalid("session_id", "session_id or organization_id is required")
	}
	orders, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []models.OrderModel{}
	}
	return orders, nil
}

// ReconcileTables resets every occupied table that no active order
// references. It returns the number of tables reset.
func (s *Service) ReconcileTables(ctx context.Context) (int, error) {
	tables, err := s.store.ListTablesByStatus(ctx, models.TableOccupied)
	if err != nil {
		return 0, err
	}
	healed := 0
	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return healed, err
		}
		active, err := s.store.CountActiveOrdersForTable(ctx, t.ID, "")
		if err != nil {
			return healed, err
		}
		if active > 0 {
			continue
		}
		if err := s.store.SetTableStatus(ctx, t.ID, models.TableAvailable); err != nil {
			return healed, err
		}
		healed++
		s.log.Info("table occupancy healed", zap.String("table_id", t.ID), zap.String("organization_id", t.OrganizationID))
	}
	metrics.TablesHealed.Add(float64(healed))
	return healed, nil
}

func (s *Service) record(ctx context.Context, orgID, eventType string, data map[string]interface{}, sessionID string) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(ctx, orgID, eventType, data, sessionID)
}

func (s *Service) dispatch(orgID, event string, order *models.OrderModel, meta map[string]interface{}) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Dispatch(orgID, event, order.ID, webhookResource(order), meta)
}

func (s *Service) broadcast(orgID, event string, order *models.OrderModel) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.BroadcastToOrganization(orgID, event, order)
}

// webhookResource strips the joined organization row from the payload sent
// to external receivers.
func webhookResource(order *models.OrderModel) map[string]interface{} {
	raw, err := json.Marshal(order)
	if err != nil {
		return map[string]interface{}{"id": order.ID}
	}
	out := map[string]interface{}{}
	_ = json.Unmarshal(raw, &out)
	delete(out, "organization")
	delete(out, "table")
	return out
}
