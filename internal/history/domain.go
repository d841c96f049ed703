package history

import (
	"time"

	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

// Type distinguishes stock received from stock issued.
type Type string

const (
	TypeIncoming Type = "INCOMING"
	TypeOutgoing Type = "OUTGOING"
)

// Record is one append-only stock movement. Records are never updated or deleted.
type Record struct {
	ID            int64     `json:"id"`
	Type          Type      `json:"type"`
	ItemID        int64     `json:"item_id"`
	ItemCode      string    `json:"item_code,omitempty"`
	ItemName      string    `json:"item_name,omitempty"`
	WarehouseID   int64     `json:"warehouse_id"`
	WarehouseName string    `json:"warehouse_name,omitempty"`
	Quantity      int64     `json:"quantity"`
	PONumber      string    `json:"po_number,omitempty"`
	IGRNumber     string    `json:"igr_number,omitempty"`
	IGRID         *int64    `json:"igr_id,omitempty"`
	MPRNumber     string    `json:"mpr_number,omitempty"`
	DONumber      string    `json:"do_number,omitempty"`
	DOID          *int64    `json:"do_id,omitempty"`
	LocationID    *int64    `json:"location_id,omitempty"`
	LocationName  string    `json:"location_name,omitempty"`
	Remarks       string    `json:"remarks,omitempty"`
	ActorID       int64     `json:"actor_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Filter narrows history listings. Dates are inclusive calendar days (YYYY-MM-DD).
type Filter struct {
	ItemCode      string `validate:"omitempty,max=64"`
	ItemName      string `validate:"omitempty,max=128"`
	WarehouseName string `validate:"omitempty,max=128"`
	StartDate     string `validate:"omitempty,datetime=2006-01-02"`
	EndDate       string `validate:"omitempty,datetime=2006-01-02"`
	PONumber      string
	IGRNumber     string
	MPRNumber     string
	DONumber      string
	LocationName  string
	Page          shared.PageRequest
}
