package inventory

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-supply/internal/history"
	"github.com/odyssey-erp/odyssey-supply/internal/masterdata"
	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

// Entry is the stock of one item in one warehouse. StockQuantity never drops below zero
// and Version is bumped on every stock change.
type Entry struct {
	ID            int64     `json:"id"`
	WarehouseID   int64     `json:"warehouse_id"`
	WarehouseName string    `json:"warehouse_name"`
	ItemID        int64     `json:"item_id"`
	ItemCode      string    `json:"item_code"`
	ItemName      string    `json:"item_name"`
	StockQuantity int64     `json:"stock_quantity"`
	ShelfNumber   string    `json:"shelf_number"`
	ShelfBlock    string    `json:"shelf_block"`
	Version       int64     `json:"version"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AddItemInput registers an item in a warehouse.
type AddItemInput struct {
	WarehouseName string `json:"warehouse_name" validate:"required"`
	ItemCode      string `json:"item_code" validate:"required"`
	StockQuantity int64  `json:"stock_quantity" validate:"gte=0"`
	ShelfNumber   string `json:"shelf_number" validate:"max=32"`
	ShelfBlock    string `json:"shelf_block" validate:"max=32"`
}

// ListFilter narrows entry listings.
type ListFilter struct {
	WarehouseName string
	ItemCode      string
	Search        string
	Page          shared.PageRequest
}

// Summary is the per-item inventory view.
type Summary struct {
	Item       masterdata.Item  `json:"item"`
	TotalStock int64            `json:"total_stock"`
	Entries    []Entry          `json:"entries"`
	Incoming   []history.Record `json:"incoming"`
	Outgoing   []history.Record `json:"outgoing"`
}

var (
	// ErrEntryNotFound indicates the item is not registered in the warehouse.
	ErrEntryNotFound = fmt.Errorf("%w: inventory entry", shared.ErrNotFound)
	// ErrEntryExists indicates the item is already registered in the warehouse.
	ErrEntryExists = fmt.Errorf("%w: item already registered in warehouse", shared.ErrConflict)
	// ErrInsufficientStock is returned when a decrement would drive stock negative.
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", shared.ErrValidation)
	// ErrInvalidQuantity indicates a non-positive movement.
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	// ErrConcurrentModification is returned when the entry version moved under a write.
	ErrConcurrentModification = fmt.Errorf("%w: inventory entry changed concurrently", shared.ErrConflict)
)
