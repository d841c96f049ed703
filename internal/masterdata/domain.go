package masterdata

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

// Item is a stock keeping unit referenced by every document line.
type Item struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// Warehouse owns inventory entries.
type Warehouse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Supplier is the counterparty of a purchase order.
type Supplier struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Location is a site that requests and receives material.
type Location struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

var (
	// ErrItemNotFound indicates the item code or name is unknown.
	ErrItemNotFound = fmt.Errorf("%w: item", shared.ErrNotFound)
	// ErrWarehouseNotFound indicates the warehouse is unknown.
	ErrWarehouseNotFound = fmt.Errorf("%w: warehouse", shared.ErrNotFound)
	// ErrSupplierNotFound indicates the supplier is unknown.
	ErrSupplierNotFound = fmt.Errorf("%w: supplier", shared.ErrNotFound)
	// ErrLocationNotFound indicates the location is unknown.
	ErrLocationNotFound = fmt.Errorf("%w: location", shared.ErrNotFound)
)
