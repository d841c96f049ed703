package procurement

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-supply/internal/history"
	"github.com/odyssey-erp/odyssey-supply/internal/inventory"
	"github.com/odyssey-erp/odyssey-supply/internal/masterdata"
	"github.com/odyssey-erp/odyssey-supply/internal/numbering"
	"github.com/odyssey-erp/odyssey-supply/internal/shared"
	"github.com/odyssey-erp/odyssey-supply/internal/users"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetRequest(ctx context.Context, id int64) (RequestPurchase, error)
	FindApprovedRequests(ctx context.Context, codes []string) ([]RequestPurchase, error)
	ListRequests(ctx context.Context, f RequestFilter) ([]RequestPurchase, int, error)

	GetOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	OrderNumberExists(ctx context.Context, number string) (bool, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]PurchaseOrder, int, error)

	GetReceipt(ctx context.Context, id int64) (GoodsReceipt, error)
	ListReceipts(ctx context.Context, f ReceiptFilter) ([]GoodsReceipt, int, error)
}

// TxRepository exposes transactional operations. Ledger and history writes share the
// transaction with the document updates.
type TxRepository interface {
	inventory.Ledger
	history.Writer
	numbering.Source

	RequestCodeExists(ctx context.Context, code string) (bool, error)
	InsertRequest(ctx context.Context, req RequestPurchase) (int64, error)
	InsertItemRequest(ctx context.Context, item ItemRequest) (int64, error)
	UpdateItemRequest(ctx context.Context, item ItemRequest) error
	GetRequestForUpdate(ctx context.Context, id int64) (RequestPurchase, error)
	GetRequestByCodeForUpdate(ctx context.Context, code string) (RequestPurchase, error)
	UpdateRequest(ctx context.Context, id int64, status RequestStatus, remarks string) error
	// SetOpenItemStatuses moves every non-COMPLETED line of the request to status.
	SetOpenItemStatuses(ctx context.Context, requestID int64, status ItemStatus) (int64, error)
	MarkItemRequests(ctx context.Context, ids []int64, status ItemStatus) error
	CountRequestReferences(ctx context.Context, requestID int64) (int, error)
	DeleteRequest(ctx context.Context, id int64) error

	InsertOrder(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertOrderItem(ctx context.Context, item OrderItem) (int64, error)
	LinkRequests(ctx context.Context, orderID int64, requestIDs []int64) error
	UnlinkRequests(ctx context.Context, orderID int64) error
	GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdateOrder(ctx context.Context, po PurchaseOrder) error
	UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error
	InsertOrderApproval(ctx context.Context, a shared.Approval) (int64, error)
	CountOrderApprovals(ctx context.Context, orderID int64) (int, error)
	DeleteOrderApprovals(ctx context.Context, orderID int64) error
	DeleteOrderItems(ctx context.Context, orderID int64) error
	DeleteOrder(ctx context.Context, id int64) error

	ReceiptNumberExists(ctx context.Context, number string) (bool, error)
	InsertReceipt(ctx context.Context, r GoodsReceipt) (int64, error)
	InsertReceiptItem(ctx context.Context, item ReceiptItem) (int64, error)
	GetReceiptForUpdate(ctx context.Context, id int64) (GoodsReceipt, error)
	UpdateReceiptItem(ctx context.Context, item ReceiptItem) error
	UpdateReceipt(ctx context.Context, r GoodsReceipt) error
	DeleteReceiptItems(ctx context.Context, receiptID int64) error
	DeleteReceipt(ctx context.Context, id int64) error
}

// MasterData resolves master records referenced by documents.
type MasterData interface {
	FindItemByName(ctx context.Context, name string) (masterdata.Item, error)
	FindItemByCode(ctx context.Context, code string) (masterdata.Item, error)
	FindItem(ctx context.Context, code, name string) (masterdata.Item, error)
	FindWarehouseByName(ctx context.Context, name string) (masterdata.Warehouse, error)
	FindSupplierByName(ctx context.Context, name string) (masterdata.Supplier, error)
	FindLocationByName(ctx context.Context, name string) (masterdata.Location, error)
}

// Identity returns the signature on file for approvers.
type Identity interface {
	GetUser(ctx context.Context, id int64) (users.User, error)
}

// StockReader reads inventory entries outside the workflow transaction.
type StockReader interface {
	FindEntry(ctx context.Context, warehouseID, itemID int64) (inventory.Entry, error)
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Locker shared.Locker
	Events shared.EventPublisher
	Now    func() time.Time
}

// Service orchestrates the MPR, purchase order and goods receipt workflows.
type Service struct {
	repo     RepositoryPort
	lookup   MasterData
	identity Identity
	stock    StockReader
	audit    shared.AuditPort
	logger   *slog.Logger
	locker   shared.Locker
	events   shared.EventPublisher
	now      func() time.Time
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, lookup MasterData, identity Identity, stock StockReader, audit shared.AuditPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:     repo,
		lookup:   lookup,
		identity: identity,
		stock:    stock,
		audit:    audit,
		logger:   logger,
		locker:   cfg.Locker,
		events:   cfg.Events,
		now:      now,
	}
}

func (s *Service) recordAudit(ctx context.Context, p shared.Principal, action, entity string, id int64, meta map[string]any) {
	shared.RecordAudit(ctx, s.audit, s.logger, shared.AuditLog{
		ActorID:  p.UserID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now().UTC(),
	})
}

func (s *Service) publish(ctx context.Context, p shared.Principal, entity string, id int64, number, status string) {
	if s.events == nil {
		return
	}
	evt := shared.NewDocumentEvent(entity, id, number, status, p.UserID)
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Warn("publish document event", slog.String("entity", entity), slog.Int64("id", id), slog.Any("error", err))
	}
}

func (s *Service) signature(ctx context.Context, p shared.Principal) (string, error) {
	user, err := s.identity.GetUser(ctx, p.UserID)
	if err != nil {
		return "", err
	}
	if user.SignaturePath == "" {
		return "", ErrSignatureRequired
	}
	return user.SignaturePath, nil
}

func listResult[T any](items []T, total int, page shared.PageRequest) ([]T, shared.Pagination) {
	if items == nil {
		items = []T{}
	}
	return items, shared.NewPagination(page.Page, page.PerPage, total)
}
