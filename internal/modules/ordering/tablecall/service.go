package tablecall

import (
	"context"
	"strings"
	"time"

	"github.com/qrdine/core/internal/models"
	"github.com/qrdine/core/internal/pkg/apperr"
	"github.com/qrdine/core/internal/store"
	"go.uber.org/zap"
)

const (
	defaultCallType = "service"
	maxNoteLength   = 500

	RealtimeTableCallCreated = "TABLE_CALL_CREATED"
	RealtimeTableCallUpdated = "TABLE_CALL_UPDATED"
)

// Store is the persistence table calls need.
type Store interface {
	store.Tables
	store.TableCalls
}

// Recorder appends analytics events and swallows its own failures.
type Recorder interface {
	Record(ctx context.Context, orgID, eventType string, data map[string]interface{}, sessionID string)
}

// Broadcaster pushes live updates to a tenant's staff dashboards.
type Broadcaster interface {
	BroadcastToOrganization(orgID, event string, data interface{})
}

// CreateCallDTO is the body of a customer's request for staff attention.
type CreateCallDTO struct {
	OrganizationID string `json:"organization_id"`
	TableID        string `json:"table_id"`
	CallType       string `json:"call_type"     binding:"omitempty,max=32"`
	CustomerNote   string `json:"customer_note"`
	SessionID      string `json:"session_id"    binding:"omitempty,max=128"`
}

type UpdateCallDTO struct {
	Status string `json:"status" binding:"required"`
}

var transitions = map[models.TableCallStatus][]models.TableCallStatus{
	models.TableCallPending:      {models.TableCallAcknowledged, models.TableCallResolved},
	models.TableCallAcknowledged: {models.TableCallResolved},
}

type Service struct {
	store       Store
	recorder    Recorder
	broadcaster Broadcaster
	log         *zap.Logger
	now         func() time.Time
}

func NewService(st Store, recorder Recorder, broadcaster Broadcaster, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:       st,
		recorder:    recorder,
		broadcaster: broadcaster,
		log:         log.Named("TableCallService"),
		now:         time.Now,
	}
}

// Create stores a pending call for a table of the given tenant and notifies
// the tenant's dashboards.
func (s *Service) Create(ctx context.Context, dto *CreateCallDTO) (*models.TableCallModel, error) {
	orgID := strings.TrimSpace(dto.OrganizationID)
	tableID := strings.TrimSpace(dto.TableID)
	verr := &apperr.ValidationError{}
	if orgID == "" {
		verr.Add("organization_id", "is required")
	}
	if tableID == "" {
		verr.Add("table_id", "is required")
	}
	if len(dto.CustomerNote) > maxNoteLength {
		verr.Add("customer_note", "is too long")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	table, err := s.store.GetTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if table == nil {
		return nil, apperr.NotFound("table")
	}
	if table.OrganizationID != orgID {
		return nil, apperr.Invalid("table_id", "does not belong to the organization")
	}

	callType := strings.ToLower(strings.TrimSpace(dto.CallType))
	if callType == "" {
		callType = defaultCallType
	}
	call := &models.TableCallModel{
		OrganizationID: orgID,
		TableID:        tableID,
		CallType:       callType,
		CustomerNote:   strings.TrimSpace(dto.CustomerNote),
		SessionID:      strings.TrimSpace(dto.SessionID),
		Status:         models.TableCallPending,
	}
	if err := s.store.InsertTableCall(ctx, call); err != nil {
		return nil, err
	}
	call.Table = table

	s.log.Info("table call requested",
		zap.String("call_id", call.ID),
		zap.String("organization_id", orgID),
		zap.String("table_id", tableID),
		zap.String("call_type", callType),
	)
	if s.recorder != nil {
		s.recorder.Record(ctx, orgID, models.EventTableCallRequested, map[string]interface{}{
			"table_id":  tableID,
			"call_type": callType,
		}, call.SessionID)
	}
	s.broadcast(orgID, RealtimeTableCallCreated, call)
	return call, nil
}

// List returns a tenant's calls newest first, optionally by status.
func (s *Service) List(ctx context.Context, orgID, status string) ([]models.TableCallModel, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, apperr.Invalid("organization_id", "is required")
	}
	var st models.TableCallStatus
	if status != "" {
		parsed, ok := parseStatus(status)
		if !ok {
			return nil, apperr.Invalid("status", "must be one of pending, acknowledged, resolved")
		}
		st = parsed
	}
	calls, err := s.store.ListTableCalls(ctx, orgID, st)
	if err != nil {
		return nil, err
	}
	if calls == nil {
		calls = []models.TableCallModel{}
	}
	return calls, nil
}

// UpdateStatus moves a call forward. Repeating the current status is a
// no-op; resolved calls cannot change.
func (s *Service) UpdateStatus(ctx context.Context, orgID, id, status string) (*models.TableCallModel, error) {
	next, ok := parseStatus(status)
	if !ok {
		return nil, apperr.Invalid("status", "must be one of pending, acknowledged, resolved")
	}
	call, err := s.store.GetTableCall(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if call == nil {
		return nil, apperr.NotFound("table call")
	}
	if call.Status == next {
		return call, nil
	}
	if !canTransition(call.Status, next) {
		return nil, apperr.Invalid("status", "cannot move a "+string(call.Status)+" call to "+string(next))
	}

	var resolvedAt *time.Time
	if next == models.TableCallResolved {
		t := s.now().UTC()
		resolvedAt = &t
	}
	if err := s.store.UpdateTableCallStatus(ctx, call.ID, next, resolvedAt); err != nil {
		return nil, err
	}
	call.Status = next
	call.ResolvedAt = resolvedAt

	s.log.Info("table call updated",
		zap.String("call_id", call.ID),
		zap.String("organization_id", call.OrganizationID),
		zap.String("status", string(next)),
	)
	s.broadcast(call.OrganizationID, RealtimeTableCallUpdated, call)
	return call, nil
}

func (s *Service) broadcast(orgID, event string, call *models.TableCallModel) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.BroadcastToOrganization(orgID, event, call)
}

func parseStatus(raw string) (models.TableCallStatus, bool) {
	switch st := models.TableCallStatus(strings.ToLower(strings.TrimSpace(raw))); st {
	case models.TableCallPending, models.TableCallAcknowledged, models.TableCallResolved:
		return st, true
	}
	return "", false
}

func canTransition(from, to models.TableCallStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
