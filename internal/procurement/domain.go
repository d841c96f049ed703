package procurement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

// RequestStatus enumerates material purchase request states.
type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestApproved RequestStatus = "APPROVED"
	RequestRejected RequestStatus = "REJECTED"
)

// ItemStatus tracks a single requested line independently of its request.
type ItemStatus string

const (
	ItemPending    ItemStatus = "PENDING"
	ItemInProgress ItemStatus = "IN_PROGRESS"
	ItemCompleted  ItemStatus = "COMPLETED"
)

// OrderStatus enumerates purchase order states. Transitions only move forward.
type OrderStatus string

const (
	OrderPending           OrderStatus = "PENDING"
	OrderPartiallyApproved OrderStatus = "PARTIALLY_APPROVED"
	OrderFullyApproved     OrderStatus = "FULLY_APPROVED"
)

// ReceiptStatus enumerates incoming goods receipt states.
type ReceiptStatus string

const (
	ReceiptPending  ReceiptStatus = "PENDING"
	ReceiptApproved ReceiptStatus = "APPROVED"
)

// RequestPurchase is a material purchase request (MPR).
type RequestPurchase struct {
	ID           int64         `json:"id"`
	RequestCode  string        `json:"request_code"`
	UserID       int64         `json:"user_id"`
	CreatedBy    string        `json:"created_by"`
	LocationID   int64         `json:"location_id"`
	LocationName string        `json:"location_name,omitempty"`
	Status       RequestStatus `json:"status"`
	Remarks      string        `json:"remarks"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Items        []ItemRequest `json:"items,omitempty"`
}

// ItemRequest is one requested line of an MPR. OrderID is set once a purchase order line
// references it.
type ItemRequest struct {
	ID          int64      `json:"id"`
	RequestID   int64      `json:"request_purchase_id"`
	UserID      int64      `json:"user_id"`
	Name        string     `json:"name"`
	Amount      int64      `json:"amount"`
	UseDuration string     `json:"use_duration"`
	Status      ItemStatus `json:"status"`
	OrderID     *int64     `json:"purchase_order_id,omitempty"`
}

// PurchaseOrder consolidates approved MPR lines for one supplier.
type PurchaseOrder struct {
	ID            int64             `json:"id"`
	Number        string            `json:"number"`
	SupplierID    int64             `json:"supplier_id"`
	SupplierName  string            `json:"supplier_name"`
	Notes         string            `json:"notes"`
	Status        OrderStatus       `json:"status"`
	TotalAmount   decimal.Decimal   `json:"total_amount"`
	CreatedBy     int64             `json:"created_by"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	Items         []OrderItem       `json:"items,omitempty"`
	Approvals     []shared.Approval `json:"approvals,omitempty"`
	RequestCodes  []string          `json:"request_codes,omitempty"`
	ReceiptID     *int64            `json:"receipt_id,omitempty"`
	ReceiptNumber string            `json:"receipt_number,omitempty"`
}

// OrderItem is a purchase order line tied to exactly one item request.
type OrderItem struct {
	ID            int64           `json:"id"`
	OrderID       int64           `json:"purchase_order_id"`
	ItemRequestID int64           `json:"item_request_id"`
	RequestID     int64           `json:"request_purchase_id"`
	ItemID        int64           `json:"item_id"`
	ItemCode      string          `json:"item_code"`
	ItemName      string          `json:"item_name"`
	Quantity      int64           `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	ConsignTo     string          `json:"consign_to"`
	SupplierName  string          `json:"supplier_name"`
	Remarks       string          `json:"remarks"`
}

// GoodsReceipt is the incoming goods receipt (IGR) spawned by a fully approved order.
type GoodsReceipt struct {
	ID          int64         `json:"id"`
	Number      string        `json:"number"`
	OrderID     int64         `json:"purchase_order_id"`
	OrderNumber string        `json:"purchase_order_number,omitempty"`
	Status      ReceiptStatus `json:"status"`
	Notes       string        `json:"notes"`
	Remarks     string        `json:"remarks"`
	ApprovedBy  *int64        `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time    `json:"approved_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	Items       []ReceiptItem `json:"items,omitempty"`
	Approvers   []string      `json:"purchase_order_approvers,omitempty"`
}

// ReceiptItem tracks receipt confirmation of one ordered line.
type ReceiptItem struct {
	ID            int64  `json:"id"`
	ReceiptID     int64  `json:"receipt_id"`
	ItemName      string `json:"item_name"`
	ItemCode      string `json:"item_code"`
	Quantity      int64  `json:"quantity"`
	IsReceived    bool   `json:"is_received"`
	WarehouseID   *int64 `json:"warehouse_id,omitempty"`
	WarehouseName string `json:"warehouse_name,omitempty"`
}

// CreateRequestInput creates an MPR.
type CreateRequestInput struct {
	LocationName string             `json:"location_name" validate:"required"`
	Remarks      string             `json:"remarks" validate:"max=500"`
	Lines        []RequestLineInput `json:"items" validate:"required,min=1,dive"`
}

// RequestLineInput is a requested item.
type RequestLineInput struct {
	ID          *int64 `json:"id,omitempty"`
	Name        string `json:"name" validate:"required"`
	Amount      int64  `json:"amount" validate:"gt=0"`
	UseDuration string `json:"use_duration" validate:"max=100"`
}

// UpdateRequestInput upserts MPR lines: lines carrying an id update that line, the rest
// are appended.
type UpdateRequestInput struct {
	Remarks *string            `json:"remarks,omitempty" validate:"omitempty,max=500"`
	Lines   []RequestLineInput `json:"items" validate:"required,min=1,dive"`
}

// RequestFilter narrows MPR listings.
type RequestFilter struct {
	Status  RequestStatus
	OwnerID int64
	Search  string
	Page    shared.PageRequest
}

// CreateOrderInput creates a purchase order from approved MPR lines.
type CreateOrderInput struct {
	Number       string           `json:"number" validate:"required,max=64"`
	SupplierName string           `json:"supplier_name" validate:"required"`
	Notes        string           `json:"notes" validate:"max=1000"`
	Lines        []OrderLineInput `json:"items" validate:"required,min=1,dive"`
}

// UpdateOrderInput replaces the supplier, notes and lines of a pending purchase order.
type UpdateOrderInput struct {
	SupplierName string           `json:"supplier_name" validate:"required"`
	Notes        string           `json:"notes" validate:"max=1000"`
	Lines        []OrderLineInput `json:"items" validate:"required,min=1,dive"`
}

// OrderLineInput references one item request of an approved MPR.
type OrderLineInput struct {
	RequestCode string          `json:"request_code" validate:"required"`
	ItemName    string          `json:"item_name" validate:"required"`
	ItemCode    string          `json:"item_code" validate:"required"`
	Quantity    int64           `json:"quantity" validate:"gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	ConsignTo   string          `json:"consign_to" validate:"max=200"`
	Remarks     string          `json:"remarks" validate:"max=500"`
}

// OrderFilter narrows purchase order listings.
type OrderFilter struct {
	Status OrderStatus
	Search string
	Page   shared.PageRequest
}

// ApproveReceiptInput confirms receipt of IGR lines.
type ApproveReceiptInput struct {
	Lines  []ReceiptLineInput `json:"items" validate:"required,min=1,dive"`
	Remark string             `json:"remark" validate:"max=500"`
}

// ReceiptLineInput marks one IGR line received into a warehouse.
type ReceiptLineInput struct {
	ReceiptItemID int64  `json:"igr_item_id" validate:"required"`
	WarehouseName string `json:"warehouse_name" validate:"required"`
	ItemCode      string `json:"item_code" validate:"required"`
	IsReceived    bool   `json:"is_received"`
}

// ReceiptFilter narrows IGR listings. Search matches IGR or PO numbers.
type ReceiptFilter struct {
	Status ReceiptStatus
	Search string
	Page   shared.PageRequest
}

// OrderApproval reports quorum progress after an approval.
type OrderApproval struct {
	shared.ApprovalProgress
	ReceiptID     *int64 `json:"receipt_id,omitempty"`
	ReceiptNumber string `json:"receipt_number,omitempty"`
}

// ReceiptApproval reports the outcome of an IGR approval call. A partial receipt is a
// successful call with AllReceived false and the receipt still PENDING.
type ReceiptApproval struct {
	Receipt     GoodsReceipt `json:"receipt"`
	AllReceived bool         `json:"all_received"`
	Message     string       `json:"message"`
}

var (
	ErrRequestNotFound     = fmt.Errorf("%w: request purchase", shared.ErrNotFound)
	ErrItemRequestNotFound = fmt.Errorf("%w: item request", shared.ErrNotFound)
	ErrOrderNotFound       = fmt.Errorf("%w: purchase order", shared.ErrNotFound)
	ErrReceiptNotFound     = fmt.Errorf("%w: incoming goods receipt", shared.ErrNotFound)
	ErrReceiptItemNotFound = fmt.Errorf("%w: incoming goods receipt item", shared.ErrNotFound)

	ErrRequestNotPending    = fmt.Errorf("%w: request purchase not found or already approved", shared.ErrConflict)
	ErrRequestRejected      = fmt.Errorf("%w: request purchase is already rejected", shared.ErrConflict)
	ErrRequestReferenced    = fmt.Errorf("%w: request purchase is referenced by a purchase or delivery order", shared.ErrConflict)
	ErrRequestNotApproved   = fmt.Errorf("%w: request purchase must be approved first", shared.ErrConflict)
	ErrRequestLocked        = fmt.Errorf("%w: request purchase can no longer be edited", shared.ErrValidation)
	ErrRequestNotOwner      = fmt.Errorf("%w: only the requester can edit this request purchase", shared.ErrForbidden)
	ErrRequestUndeletable   = fmt.Errorf("%w: only unreferenced pending request purchases can be deleted", shared.ErrForbidden)
	ErrDuplicateItem        = fmt.Errorf("%w: duplicate item in request", shared.ErrValidation)
	ErrUnknownItem          = fmt.Errorf("%w: unknown item", shared.ErrValidation)
	ErrOrderNumberTaken     = fmt.Errorf("%w: purchase order number already exists", shared.ErrConflict)
	ErrInvalidRequestCodes  = fmt.Errorf("%w: one or more MPR codes are invalid or not approved", shared.ErrValidation)
	ErrItemAlreadyOrdered   = fmt.Errorf("%w: item request is already assigned to a purchase order", shared.ErrConflict)
	ErrInvalidPrice         = fmt.Errorf("%w: unit price must not be negative", shared.ErrValidation)
	ErrSignatureRequired    = fmt.Errorf("%w: you need to have a signature registered to approve purchase orders", shared.ErrValidation)
	ErrOrderFullyApproved   = fmt.Errorf("%w: purchase order is already fully approved", shared.ErrConflict)
	ErrOrderAlreadyApproved = fmt.Errorf("%w: you have already approved this purchase order", shared.ErrConflict)
	ErrOrderLocked          = fmt.Errorf("%w: purchase order has approvals, a receipt or is no longer pending", shared.ErrForbidden)
	ErrReceiptApproved      = fmt.Errorf("%w: incoming goods receipt has already been approved", shared.ErrConflict)
	ErrReceiptLocked        = fmt.Errorf("%w: only pending incoming goods receipts can be deleted", shared.ErrForbidden)
	ErrNotRegistered        = fmt.Errorf("%w: item is not registered in warehouse", shared.ErrValidation)
	ErrDuplicateReceiptLine = fmt.Errorf("%w: receipt item submitted more than once", shared.ErrValidation)
	ErrReceiptItemMismatch  = fmt.Errorf("%w: item code does not match the receipt item", shared.ErrValidation)
)
