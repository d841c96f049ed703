package delivery

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

// Status enumerates delivery order states.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
)

// DeliveryOrder moves stock out of warehouses once four distinct approvers have signed.
type DeliveryOrder struct {
	ID           int64             `json:"id"`
	Number       string            `json:"number"`
	RequestID    *int64            `json:"request_purchase_id,omitempty"`
	RequestCode  string            `json:"request_code,omitempty"`
	LocationID   *int64            `json:"location_id,omitempty"`
	LocationName string            `json:"location_name,omitempty"`
	Notes        string            `json:"notes"`
	Status       Status            `json:"status"`
	CreatedBy    int64             `json:"created_by"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Items        []Item            `json:"items,omitempty"`
	Approvals    []shared.Approval `json:"approvals,omitempty"`
}

// Item is one outgoing line of a delivery order.
type Item struct {
	ID            int64  `json:"id"`
	OrderID       int64  `json:"delivery_order_id"`
	ItemID        int64  `json:"item_id"`
	ItemCode      string `json:"item_code"`
	ItemName      string `json:"item_name"`
	WarehouseID   int64  `json:"warehouse_id"`
	WarehouseName string `json:"warehouse_name,omitempty"`
	Quantity      int64  `json:"quantity"`
	Remarks       string `json:"remarks"`
}

// RequestRef is the MPR a delivery order is issued against.
type RequestRef struct {
	ID           int64
	Code         string
	LocationID   int64
	LocationName string
}

// CreateOrderInput creates a delivery order.
type CreateOrderInput struct {
	Number      string      `json:"number" validate:"required,max=64"`
	RequestCode string      `json:"request_code"`
	Notes       string      `json:"notes" validate:"max=1000"`
	Lines       []LineInput `json:"items" validate:"required,min=1,dive"`
}

// UpdateOrderInput replaces number, MPR link, notes and lines of a pending delivery order.
type UpdateOrderInput struct {
	Number      string      `json:"number" validate:"required,max=64"`
	RequestCode string      `json:"request_code"`
	Notes       string      `json:"notes" validate:"max=1000"`
	Lines       []LineInput `json:"items" validate:"required,min=1,dive"`
}

// LineInput is one requested outgoing line.
type LineInput struct {
	ItemName      string `json:"item_name" validate:"required"`
	ItemCode      string `json:"item_code" validate:"required"`
	Quantity      int64  `json:"quantity" validate:"gt=0"`
	Remarks       string `json:"remarks" validate:"max=500"`
	WarehouseName string `json:"warehouse_name" validate:"required"`
}

// Filter narrows delivery order listings. Search matches the DO number or MPR code.
type Filter struct {
	Status Status
	Search string
	Page   shared.PageRequest
}

// OrderApproval reports quorum progress after an approval.
type OrderApproval struct {
	shared.ApprovalProgress
	Completed bool `json:"completed"`
}

var (
	ErrOrderNotFound     = fmt.Errorf("%w: delivery order", shared.ErrNotFound)
	ErrRequestNotFound   = fmt.Errorf("%w: request purchase", shared.ErrNotFound)
	ErrNumberTaken       = fmt.Errorf("%w: delivery order number already exists", shared.ErrConflict)
	ErrRequestHasOrder   = fmt.Errorf("%w: request purchase already has a delivery order", shared.ErrConflict)
	ErrOrderCompleted    = fmt.Errorf("%w: delivery order is already completed", shared.ErrConflict)
	ErrAlreadyApproved   = fmt.Errorf("%w: you have already approved this delivery order", shared.ErrConflict)
	ErrItemMismatch      = fmt.Errorf("%w: item name does not match item code", shared.ErrValidation)
	ErrNotRegistered     = fmt.Errorf("%w: item is not registered in warehouse", shared.ErrNotFound)
	ErrSignatureRequired = fmt.Errorf("%w: you need to have a signature registered to approve delivery orders", shared.ErrValidation)
	ErrOrderLocked       = fmt.Errorf("%w: completed delivery orders cannot be edited", shared.ErrForbidden)
	ErrOrderUndeletable  = fmt.Errorf("%w: only pending delivery orders can be deleted", shared.ErrForbidden)
)
