package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/text/cases"

	"github.com/odyssey-erp/odyssey-supply/internal/history"
	"github.com/odyssey-erp/odyssey-supply/internal/inventory"
	"github.com/odyssey-erp/odyssey-supply/internal/masterdata"
	"github.com/odyssey-erp/odyssey-supply/internal/shared"
	"github.com/odyssey-erp/odyssey-supply/internal/users"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (DeliveryOrder, error)
	ListOrders(ctx context.Context, f Filter) ([]DeliveryOrder, int, error)
}

// TxRepository exposes transactional operations. Stock and history writes share the
// transaction with the delivery order.
type TxRepository interface {
	inventory.Ledger
	history.Writer

	NumberExists(ctx context.Context, number string, excludeID int64) (bool, error)
	FindRequestByCode(ctx context.Context, code string) (RequestRef, error)
	RequestHasOrder(ctx context.Context, requestID, excludeID int64) (bool, error)
	InsertOrder(ctx context.Context, do DeliveryOrder) (int64, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	GetOrderForUpdate(ctx context.Context, id int64) (DeliveryOrder, error)
	UpdateOrder(ctx context.Context, do DeliveryOrder) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
	InsertApproval(ctx context.Context, a shared.Approval) (int64, error)
	CountApprovals(ctx context.Context, orderID int64) (int, error)
	DeleteApprovals(ctx context.Context, orderID int64) error
	DeleteItems(ctx context.Context, orderID int64) error
	DeleteOrder(ctx context.Context, id int64) error
}

// MasterData resolves items and warehouses named on delivery lines.
type MasterData interface {
	FindItemByCode(ctx context.Context, code string) (masterdata.Item, error)
	FindWarehouseByName(ctx context.Context, name string) (masterdata.Warehouse, error)
}

// Identity returns the signature on file for approvers.
type Identity interface {
	GetUser(ctx context.Context, id int64) (users.User, error)
}

// StockReader reads inventory entries for the availability pre-check.
type StockReader interface {
	FindEntry(ctx context.Context, warehouseID, itemID int64) (inventory.Entry, error)
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Locker shared.Locker
	Events shared.EventPublisher
}

// Service orchestrates the delivery order workflow.
type Service struct {
	repo     RepositoryPort
	lookup   MasterData
	identity Identity
	stock    StockReader
	audit    shared.AuditPort
	logger   *slog.Logger
	locker   shared.Locker
	events   shared.EventPublisher
}

// NewService constructs delivery service.
func NewService(repo RepositoryPort, lookup MasterData, identity Identity, stock StockReader, audit shared.AuditPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
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
	}
}

// CreateOrder files a PENDING delivery order once every line has enough stock.
func (s *Service) CreateOrder(ctx context.Context, p shared.Principal, input CreateOrderInput) (DeliveryOrder, error) {
	if err := p.Require(shared.Operators...); err != nil {
		return DeliveryOrder{}, err
	}
	if err := shared.Validate(input); err != nil {
		return DeliveryOrder{}, err
	}
	items, err := s.resolveLines(ctx, input.Lines)
	if err != nil {
		return DeliveryOrder{}, err
	}

	do := DeliveryOrder{
		Number:    input.Number,
		Notes:     input.Notes,
		Status:    StatusPending,
		CreatedBy: p.UserID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		do.ID, do.RequestID, do.RequestCode, do.LocationID, do.LocationName = 0, nil, "", nil, ""
		if err := checkNumber(ctx, tx, input.Number, 0); err != nil {
			return err
		}
		if err := attachRequest(ctx, tx, &do, input.RequestCode, 0); err != nil {
			return err
		}
		id, err := tx.InsertOrder(ctx, do)
		if err != nil {
			return err
		}
		do.ID = id
		do.Items, err = insertItems(ctx, tx, id, items)
		return err
	})
	if err != nil {
		return DeliveryOrder{}, err
	}
	s.logger.Info("delivery order created", slog.String("number", do.Number), slog.Int("lines", len(do.Items)))
	s.recordAudit(ctx, p, "delivery_order.create", do.ID, map[string]any{"number": do.Number, "request_code": do.RequestCode})
	return do, nil
}

// resolveLines checks every line against master data and current stock.
func (s *Service) resolveLines(ctx context.Context, lines []LineInput) ([]Item, error) {
	fold := cases.Fold()
	out := make([]Item, 0, len(lines))
	for _, line := range lines {
		wh, err := s.lookup.FindWarehouseByName(ctx, line.WarehouseName)
		if err != nil {
			return nil, err
		}
		item, err := s.lookup.FindItemByCode(ctx, line.ItemCode)
		if err != nil {
			return nil, err
		}
		if fold.String(item.Name) != fold.String(line.ItemName) {
			return nil, fmt.Errorf("%w: %q is not %s", ErrItemMismatch, line.ItemName, line.ItemCode)
		}
		entry, err := s.stock.FindEntry(ctx, wh.ID, item.ID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, fmt.Errorf("%w: item %s, warehouse %s", ErrNotRegistered, line.ItemCode, line.WarehouseName)
			}
			return nil, err
		}
		if entry.StockQuantity < line.Quantity {
			return nil, fmt.Errorf("%w for item %s in warehouse %s. available: %d, requested: %d",
				inventory.ErrInsufficientStock, line.ItemCode, line.WarehouseName, entry.StockQuantity, line.Quantity)
		}
		out = append(out, Item{
			ItemID:        item.ID,
			ItemCode:      item.Code,
			ItemName:      item.Name,
			WarehouseID:   wh.ID,
			WarehouseName: wh.Name,
			Quantity:      line.Quantity,
			Remarks:       line.Remarks,
		})
	}
	return out, nil
}

func checkNumber(ctx context.Context, tx TxRepository, number string, excludeID int64) error {
	taken, err := tx.NumberExists(ctx, number, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w (%s)", ErrNumberTaken, number)
	}
	return nil
}

// attachRequest links do to the MPR named by code. An empty code clears the link.
func attachRequest(ctx context.Context, tx TxRepository, do *DeliveryOrder, code string, excludeID int64) error {
	do.RequestID, do.RequestCode, do.LocationID, do.LocationName = nil, "", nil, ""
	if code == "" {
		return nil
	}
	ref, err := tx.FindRequestByCode(ctx, code)
	if err != nil {
		return err
	}
	busy, err := tx.RequestHasOrder(ctx, ref.ID, excludeID)
	if err != nil {
		return err
	}
	if busy {
		return fmt.Errorf("%w (%s)", ErrRequestHasOrder, code)
	}
	do.RequestID, do.RequestCode = &ref.ID, ref.Code
	do.LocationID, do.LocationName = &ref.LocationID, ref.LocationName
	return nil
}

func insertItems(ctx context.Context, tx TxRepository, orderID int64, items []Item) ([]Item, error) {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		item.OrderID = orderID
		id, err := tx.InsertItem(ctx, item)
		if err != nil {
			return nil, err
		}
		item.ID = id
		out = append(out, item)
	}
	return out, nil
}

// ApproveOrder records the caller's signature. The approval that reaches the quorum
// decrements stock for every line and completes the order in the same transaction.
func (s *Service) ApproveOrder(ctx context.Context, p shared.Principal, id int64) (OrderApproval, error) {
	if err := p.Require(shared.Operators...); err != nil {
		return OrderApproval{}, err
	}
	user, err := s.identity.GetUser(ctx, p.UserID)
	if err != nil {
		return OrderApproval{}, err
	}
	if user.SignaturePath == "" {
		return OrderApproval{}, ErrSignatureRequired
	}
	current, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return OrderApproval{}, err
	}
	if err := checkApprovable(current, p.UserID); err != nil {
		return OrderApproval{}, err
	}

	var (
		result OrderApproval
		do     DeliveryOrder
	)
	err = shared.WithDocumentLock(ctx, s.locker, shared.DocumentLockKey(shared.EntityDeliveryOrder, id), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			result = OrderApproval{}
			var err error
			do, err = tx.GetOrderForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if err := checkApprovable(do, p.UserID); err != nil {
				return err
			}
			if _, err := tx.InsertApproval(ctx, shared.Approval{DocumentID: id, ApproverID: p.UserID, SignaturePath: user.SignaturePath}); err != nil {
				return err
			}
			// Touch the row so a concurrent approver on a stale snapshot fails with 40001.
			if err := tx.UpdateStatus(ctx, id, do.Status); err != nil {
				return err
			}
			count, err := tx.CountApprovals(ctx, id)
			if err != nil {
				return err
			}
			if !shared.DeliveryOrderQuorum.Reached(count) {
				result.ApprovalProgress = shared.NewApprovalProgress("Delivery order", count, shared.DeliveryOrderQuorum, string(do.Status))
				return nil
			}
			if err := s.release(ctx, tx, p, do); err != nil {
				return err
			}
			do.Status = StatusCompleted
			if err := tx.UpdateStatus(ctx, id, do.Status); err != nil {
				return err
			}
			result.ApprovalProgress = shared.NewApprovalProgress("Delivery order", count, shared.DeliveryOrderQuorum, string(do.Status))
			result.Completed = true
			return nil
		})
	})
	if err != nil {
		return OrderApproval{}, err
	}
	s.logger.Info("delivery order approved", slog.String("number", do.Number), slog.Int("approvals", result.Approvals), slog.Bool("completed", result.Completed))
	s.recordAudit(ctx, p, "delivery_order.approve", id, map[string]any{"number": do.Number, "approvals": result.Approvals, "status": do.Status})
	if result.Completed {
		s.publish(ctx, p, do)
	}
	return result, nil
}

// release takes every line out of stock and writes its OUTGOING history record.
func (s *Service) release(ctx context.Context, tx TxRepository, p shared.Principal, do DeliveryOrder) error {
	orderID := do.ID
	remark := "Delivery Order completion - " + do.Number
	for _, line := range do.Items {
		item, err := s.lookup.FindItemByCode(ctx, line.ItemCode)
		if err != nil {
			return err
		}
		if _, err := inventory.Decrease(ctx, tx, line.WarehouseID, item.ID, line.Quantity); err != nil {
			if errors.Is(err, inventory.ErrEntryNotFound) {
				return fmt.Errorf("%w: item %s, warehouse %s", ErrNotRegistered, line.ItemCode, line.WarehouseName)
			}
			return err
		}
		if _, err := tx.InsertRecord(ctx, history.Record{
			Type:        history.TypeOutgoing,
			ItemID:      item.ID,
			WarehouseID: line.WarehouseID,
			Quantity:    line.Quantity,
			MPRNumber:   do.RequestCode,
			DONumber:    do.Number,
			DOID:        &orderID,
			LocationID:  do.LocationID,
			Remarks:     remark,
			ActorID:     p.UserID,
		}); err != nil {
			return err
		}
	}
	return nil
}

func checkApprovable(do DeliveryOrder, approverID int64) error {
	if do.Status == StatusCompleted {
		return fmt.Errorf("%w (%s)", ErrOrderCompleted, do.Number)
	}
	if shared.HasApproved(do.Approvals, approverID) {
		return fmt.Errorf("%w (%s)", ErrAlreadyApproved, do.Number)
	}
	return nil
}

// UpdateOrder replaces number, MPR link, notes and lines of a delivery order that has
// not completed yet.
func (s *Service) UpdateOrder(ctx context.Context, p shared.Principal, id int64, input UpdateOrderInput) (DeliveryOrder, error) {
	if err := p.Require(shared.Operators...); err != nil {
		return DeliveryOrder{}, err
	}
	if err := shared.Validate(input); err != nil {
		return DeliveryOrder{}, err
	}
	current, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return DeliveryOrder{}, err
	}
	if current.Status == StatusCompleted {
		return DeliveryOrder{}, fmt.Errorf("%w (%s)", ErrOrderLocked, current.Number)
	}
	items, err := s.resolveLines(ctx, input.Lines)
	if err != nil {
		return DeliveryOrder{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		do, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if do.Status == StatusCompleted {
			return fmt.Errorf("%w (%s)", ErrOrderLocked, do.Number)
		}
		if input.Number != do.Number {
			if err := checkNumber(ctx, tx, input.Number, id); err != nil {
				return err
			}
		}
		if err := attachRequest(ctx, tx, &do, input.RequestCode, id); err != nil {
			return err
		}
		do.Number, do.Notes = input.Number, input.Notes
		if err := tx.UpdateOrder(ctx, do); err != nil {
			return err
		}
		if err := tx.DeleteItems(ctx, id); err != nil {
			return err
		}
		_, err = insertItems(ctx, tx, id, items)
		return err
	})
	if err != nil {
		return DeliveryOrder{}, err
	}
	s.recordAudit(ctx, p, "delivery_order.update", id, map[string]any{"number": input.Number, "lines": len(items)})
	return s.repo.GetOrder(ctx, id)
}

// DeleteOrder removes a PENDING delivery order. Admins may delete completed ones; stock
// and history stay untouched.
func (s *Service) DeleteOrder(ctx context.Context, p shared.Principal, id int64) error {
	if err := p.Require(shared.Operators...); err != nil {
		return err
	}
	var number string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		do, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		number = do.Number
		if !p.IsAdmin() && do.Status != StatusPending {
			return fmt.Errorf("%w (%s is %s)", ErrOrderUndeletable, do.Number, do.Status)
		}
		if err := tx.DeleteApprovals(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteItems(ctx, id); err != nil {
			return err
		}
		return tx.DeleteOrder(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("delivery order deleted", slog.String("number", number))
	s.recordAudit(ctx, p, "delivery_order.delete", id, map[string]any{"number": number})
	return nil
}

// GetOrder returns a delivery order with lines and approvals.
func (s *Service) GetOrder(ctx context.Context, p shared.Principal, id int64) (DeliveryOrder, error) {
	if err := p.Require(shared.Operators...); err != nil {
		return DeliveryOrder{}, err
	}
	return s.repo.GetOrder(ctx, id)
}

// ListOrders lists delivery orders.
func (s *Service) ListOrders(ctx context.Context, p shared.Principal, f Filter) ([]DeliveryOrder, shared.Pagination, error) {
	if err := p.Require(shared.Operators...); err != nil {
		return nil, shared.Pagination{}, err
	}
	f.Page = f.Page.Normalize()
	orders, total, err := s.repo.ListOrders(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if orders == nil {
		orders = []DeliveryOrder{}
	}
	return orders, shared.NewPagination(f.Page.Page, f.Page.PerPage, total), nil
}

func (s *Service) recordAudit(ctx context.Context, p shared.Principal, action string, id int64, meta map[string]any) {
	shared.RecordAudit(ctx, s.audit, s.logger, shared.AuditLog{
		ActorID:  p.UserID,
		Action:   action,
		Entity:   shared.EntityDeliveryOrder,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       time.Now().UTC(),
	})
}

func (s *Service) publish(ctx context.Context, p shared.Principal, do DeliveryOrder) {
	if s.events == nil {
		return
	}
	evt := shared.NewDocumentEvent(shared.EntityDeliveryOrder, do.ID, do.Number, string(do.Status), p.UserID)
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Warn("publish document event", slog.String("number", do.Number), slog.Any("error", err))
	}
}
