package inventory

import (
	"context"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-supply/internal/history"
	"github.com/odyssey-erp/odyssey-supply/internal/masterdata"
	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	InsertEntry(ctx context.Context, e Entry) (int64, error)
	FindEntry(ctx context.Context, warehouseID, itemID int64) (Entry, error)
	ListEntries(ctx context.Context, f ListFilter) ([]Entry, int, error)
	ListEntriesByItem(ctx context.Context, itemID int64) ([]Entry, error)
}

// MasterData resolves the records referenced by inventory entries.
type MasterData interface {
	FindItemByCode(ctx context.Context, code string) (masterdata.Item, error)
	FindWarehouseByName(ctx context.Context, name string) (masterdata.Warehouse, error)
}

// HistoryReader loads the movements of one item.
type HistoryReader interface {
	ListByItem(ctx context.Context, itemID int64, typ history.Type) ([]history.Record, error)
}

// Service coordinates inventory operations outside document workflows.
type Service struct {
	repo    RepositoryPort
	lookup  MasterData
	history HistoryReader
	audit   shared.AuditPort
	logger  *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, lookup MasterData, hist HistoryReader, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, lookup: lookup, history: hist, audit: audit, logger: logger}
}

// AddItemToWarehouse lazily creates the entry for an item in a warehouse.
func (s *Service) AddItemToWarehouse(ctx context.Context, p shared.Principal, input AddItemInput) (Entry, error) {
	if err := p.Require(shared.Operators...); err != nil {
		return Entry{}, err
	}
	if err := shared.Validate(input); err != nil {
		return Entry{}, err
	}
	wh, err := s.lookup.FindWarehouseByName(ctx, input.WarehouseName)
	if err != nil {
		return Entry{}, err
	}
	item, err := s.lookup.FindItemByCode(ctx, input.ItemCode)
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{
		WarehouseID:   wh.ID,
		WarehouseName: wh.Name,
		ItemID:        item.ID,
		ItemCode:      item.Code,
		ItemName:      item.Name,
		StockQuantity: input.StockQuantity,
		ShelfNumber:   input.ShelfNumber,
		ShelfBlock:    input.ShelfBlock,
		Version:       1,
	}
	id, err := s.repo.InsertEntry(ctx, entry)
	if err != nil {
		return Entry{}, err
	}
	entry.ID = id
	s.logger.Info("item added to warehouse", slog.String("item", item.Code), slog.String("warehouse", wh.Name), slog.Int64("stock", entry.StockQuantity))
	shared.RecordAudit(ctx, s.audit, s.logger, shared.AuditLog{
		ActorID:  p.UserID,
		Action:   "inventory.add_item",
		Entity:   shared.EntityInventoryEntry,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     map[string]any{"warehouse": wh.Name, "item_code": item.Code, "stock_quantity": entry.StockQuantity},
	})
	return entry, nil
}

// FindEntry returns the current entry without locking it. Workflow services use it for
// pre-transaction checks.
func (s *Service) FindEntry(ctx context.Context, warehouseID, itemID int64) (Entry, error) {
	return s.repo.FindEntry(ctx, warehouseID, itemID)
}

// ListEntries lists entries for operators.
func (s *Service) ListEntries(ctx context.Context, p shared.Principal, f ListFilter) ([]Entry, shared.Pagination, error) {
	if err := p.Require(shared.Operators...); err != nil {
		return nil, shared.Pagination{}, err
	}
	f.Page = f.Page.Normalize()
	entries, total, err := s.repo.ListEntries(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, shared.NewPagination(f.Page.Page, f.Page.PerPage, total), nil
}

// Summary aggregates the stock and movements of one item.
func (s *Service) Summary(ctx context.Context, p shared.Principal, itemCode string) (Summary, error) {
	if err := p.Require(shared.Operators...); err != nil {
		return Summary{}, err
	}
	item, err := s.lookup.FindItemByCode(ctx, itemCode)
	if err != nil {
		return Summary{}, err
	}
	out := Summary{Item: item}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		entries, err := s.repo.ListEntriesByItem(gctx, item.ID)
		out.Entries = entries
		return err
	})
	g.Go(func() error {
		records, err := s.history.ListByItem(gctx, item.ID, history.TypeIncoming)
		out.Incoming = records
		return err
	})
	g.Go(func() error {
		records, err := s.history.ListByItem(gctx, item.ID, history.TypeOutgoing)
		out.Outgoing = records
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	for _, e := range out.Entries {
		out.TotalStock += e.StockQuantity
	}
	return out, nil
}
