package models

import "time"

type TableStatus string

const (
	TableAvailable TableStatus = "available"
	TableOccupied  TableStatus = "occupied"
	TableReserved  TableStatus = "reserved"
	TableDisabled  TableStatus = "disabled"
)

type TableModel struct {
	Base
	OrganizationID      string      `json:"organization_id"      gorm:"size:36;index"`
	TableNumber         string      `json:"table_number"         gorm:"size:32"`
	QRCode              string      `json:"qr_code"              gorm:"size:191"`
	LocationDescription string      `json:"location_description"`
	Status              TableStatus `json:"status"               gorm:"size:16;index"`
}

func (TableModel) TableName() string { return "tables" }

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPreparing OrderStatus = "preparing"
	OrderReady     OrderStatus = "ready"
	OrderServed    OrderStatus = "served"
	OrderCancelled OrderStatus = "cancelled"
	OrderPaid      OrderStatus = "paid"
)

// ActiveOrderStatuses are the statuses that keep a table occupied.
var ActiveOrderStatuses = []OrderStatus{OrderPending, OrderPreparing, OrderReady}

// OrderItem is one line of an order. The price is captured at order time.
type OrderItem struct {
	MenuItemID string  `json:"id,omitempty"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	Quantity   int     `json:"quantity"`
	Notes      string  `json:"notes,omitempty"`
}

type OrderModel struct {
	Base
	OrganizationID string      `json:"organization_id" gorm:"size:36;index"`
	TableID        *string     `json:"table_id"        gorm:"size:36;index"`
	OrderNumber    string      `json:"order_number"    gorm:"size:32;uniqueIndex"`
	Items          []OrderItem `json:"items"           gorm:"serializer:json;type:text"`
	TotalAmount    float64     `json:"total_amount"    gorm:"type:decimal(12,2)"`
	Status         OrderStatus `json:"status"          gorm:"size:16;index"`
	CustomerName   string      `json:"customer_name"`
	CustomerNotes  string      `json:"customer_notes"  gorm:"type:text"`
	SessionID      string      `json:"session_id"      gorm:"size:128;index"`

	Table        *TableModel        `json:"table,omitempty"        gorm:"foreignKey:TableID"`
	Organization *OrganizationModel `json:"organization,omitempty" gorm:"foreignKey:OrganizationID"`
}

func (OrderModel) TableName() string { return "orders" }

type TableCallStatus string

const (
	TableCallPending      TableCallStatus = "pending"
	TableCallAcknowledged TableCallStatus = "acknowledged"
	TableCallResolved     TableCallStatus = "resolved"
)

// TableCallModel is a customer's request for staff attention at a table.
type TableCallModel struct {
	Base
	OrganizationID string          `json:"organization_id" gorm:"size:36;index"`
	TableID        string          `json:"table_id"        gorm:"size:36;index"`
	CallType       string          `json:"call_type"       gorm:"size:32"`
	CustomerNote   string          `json:"customer_note"   gorm:"type:text"`
	SessionID      string          `json:"session_id"      gorm:"size:128"`
	Status         TableCallStatus `json:"status"          gorm:"size:16;index"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`

	Table *TableModel `json:"table,omitempty" gorm:"foreignKey:TableID"`
}

func (TableCallModel) TableName() string { return "table_calls" }
