package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"github.com/odyssey-erp/odyssey-supply/internal/numbering"
	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

// CreateOrder builds a PENDING purchase order from approved MPR lines.
func (s *Service) CreateOrder(ctx context.Context, p shared.Principal, input CreateOrderInput) (PurchaseOrder, error) {
	if err := p.Require(shared.Operators...); err != nil {
		return PurchaseOrder{}, err
	}
	if err := shared.Validate(input); err != nil {
		return PurchaseOrder{}, err
	}
	exists, err := s.repo.OrderNumberExists(ctx, input.Number)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if exists {
		return PurchaseOrder{}, fmt.Errorf("%w (%s)", ErrOrderNumberTaken, input.Number)
	}
	supplier, err := s.lookup.FindSupplierByName(ctx, input.SupplierName)
	if err != nil {
		return PurchaseOrder{}, err
	}
	items, requestIDs, total, err := s.resolveOrderLines(ctx, input.Lines, supplier.Name, 0)
	if err != nil {
		return PurchaseOrder{}, err
	}

	po := PurchaseOrder{
		Number:       input.Number,
		SupplierID:   supplier.ID,
		SupplierName: supplier.Name,
		Notes:        input.Notes,
		Status:       OrderPending,
		TotalAmount:  total,
		CreatedBy:    p.UserID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertOrder(ctx, po)
		if err != nil {
			return err
		}
		po.ID = id
		po.Items, err = insertOrderItems(ctx, tx, id, items)
		if err != nil {
			return err
		}
		return tx.LinkRequests(ctx, id, requestIDs)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.logger.Info("purchase order created", slog.String("number", po.Number), slog.String("total", po.TotalAmount.StringFixed(2)))
	s.recordAudit(ctx, p, "purchase_order.create", shared.EntityPurchaseOrder, po.ID, map[string]any{"number": po.Number, "total": po.TotalAmount.StringFixed(2)})
	return po, nil
}

func insertOrderItems(ctx context.Context, tx TxRepository, orderID int64, items []OrderItem) ([]OrderItem, error) {
	out := make([]OrderItem, 0, len(items))
	for _, item := range items {
		item.OrderID = orderID
		id, err := tx.InsertOrderItem(ctx, item)
		if err != nil {
			return nil, err
		}
		item.ID = id
		out = append(out, item)
	}
	return out, nil
}

// resolveOrderLines matches every line to an item request of an approved MPR and prices
// it. Item requests already attached to orderID are allowed so an order can be re-saved.
func (s *Service) resolveOrderLines(ctx context.Context, lines []OrderLineInput, supplierName string, orderID int64) ([]OrderItem, []int64, decimal.Decimal, error) {
	codes := make([]string, 0, len(lines))
	seenCode := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if line.UnitPrice.IsNegative() {
			return nil, nil, decimal.Zero, fmt.Errorf("%w (%s)", ErrInvalidPrice, line.ItemName)
		}
		if _, ok := seenCode[line.RequestCode]; !ok {
			seenCode[line.RequestCode] = struct{}{}
			codes = append(codes, line.RequestCode)
		}
	}
	requests, err := s.repo.FindApprovedRequests(ctx, codes)
	if err != nil {
		return nil, nil, decimal.Zero, err
	}
	if len(requests) != len(codes) {
		return nil, nil, decimal.Zero, ErrInvalidRequestCodes
	}
	byCode := make(map[string]RequestPurchase, len(requests))
	for _, req := range requests {
		byCode[req.RequestCode] = req
	}

	fold := cases.Fold()
	var (
		items      = make([]OrderItem, 0, len(lines))
		requestIDs = make([]int64, 0, len(requests))
		linked     = make(map[int64]struct{}, len(requests))
		used       = make(map[int64]struct{}, len(lines))
		total      = decimal.Zero
	)
	for _, line := range lines {
		req := byCode[line.RequestCode]
		match := matchItemRequest(req.Items, line.ItemName, fold, orderID, used)
		if match == nil {
			return nil, nil, decimal.Zero, fmt.Errorf("%w: item %q not found in MPR %s", ErrItemRequestNotFound, line.ItemName, line.RequestCode)
		}
		if match.OrderID != nil && *match.OrderID != orderID {
			return nil, nil, decimal.Zero, fmt.Errorf("%w: item %q from MPR %s", ErrItemAlreadyOrdered, line.ItemName, line.RequestCode)
		}
		if _, dup := used[match.ID]; dup {
			return nil, nil, decimal.Zero, fmt.Errorf("%w: item %q from MPR %s is listed twice", ErrItemAlreadyOrdered, line.ItemName, line.RequestCode)
		}
		used[match.ID] = struct{}{}

		item, err := s.lookup.FindItem(ctx, line.ItemCode, line.ItemName)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, nil, decimal.Zero, fmt.Errorf("%w: item %s (%s) not found in the system", ErrUnknownItem, line.ItemName, line.ItemCode)
			}
			return nil, nil, decimal.Zero, err
		}

		lineTotal := line.UnitPrice.Mul(decimal.NewFromInt(line.Quantity)).Round(2)
		total = total.Add(lineTotal)
		items = append(items, OrderItem{
			ItemRequestID: match.ID,
			RequestID:     req.ID,
			ItemID:        item.ID,
			ItemCode:      item.Code,
			ItemName:      item.Name,
			Quantity:      line.Quantity,
			UnitPrice:     line.UnitPrice.Round(2),
			TotalPrice:    lineTotal,
			ConsignTo:     line.ConsignTo,
			SupplierName:  supplierName,
			Remarks:       line.Remarks,
		})
		if _, ok := linked[req.ID]; !ok {
			linked[req.ID] = struct{}{}
			requestIDs = append(requestIDs, req.ID)
		}
	}
	return items, requestIDs, total, nil
}

// matchItemRequest finds the MPR line named name. An exact match wins over a
// case-insensitive one, and lines this order cannot take (already listed, or ordered
// elsewhere) are passed over while another candidate remains.
func matchItemRequest(items []ItemRequest, name string, fold cases.Caser, orderID int64, used map[int64]struct{}) *ItemRequest {
	var exact, folded []*ItemRequest
	for i := range items {
		switch {
		case items[i].Name == name:
			exact = append(exact, &items[i])
		case fold.String(items[i].Name) == fold.String(name):
			folded = append(folded, &items[i])
		}
	}
	candidates := append(exact, folded...)
	if len(candidates) == 0 {
		return nil
	}
	for _, c := range candidates {
		if _, taken := used[c.ID]; taken {
			continue
		}
		if c.OrderID != nil && *c.OrderID != orderID {
			continue
		}
		return c
	}
	return candidates[0]
}

// ApproveOrder records the caller's signature. The approval that reaches the quorum
// fully approves the order, moves its item requests to IN_PROGRESS and spawns the IGR.
func (s *Service) ApproveOrder(ctx context.Context, p shared.Principal, id int64) (OrderApproval, error) {
	if err := p.Require(shared.Operators...); err != nil {
		return OrderApproval{}, err
	}
	signature, err := s.signature(ctx, p)
	if err != nil {
		return OrderApproval{}, err
	}
	current, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return OrderApproval{}, err
	}
	if err := checkOrderApprovable(current, p.UserID); err != nil {
		return OrderApproval{}, err
	}

	var (
		result OrderApproval
		po     PurchaseOrder
	)
	err = shared.WithDocumentLock(ctx, s.locker, shared.DocumentLockKey(shared.EntityPurchaseOrder, id), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			result = OrderApproval{}
			var err error
			po, err = tx.GetOrderForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if err := checkOrderApprovable(po, p.UserID); err != nil {
				return err
			}
			if _, err := tx.InsertOrderApproval(ctx, shared.Approval{DocumentID: id, ApproverID: p.UserID, SignaturePath: signature}); err != nil {
				return err
			}
			count, err := tx.CountOrderApprovals(ctx, id)
			if err != nil {
				return err
			}
			if !shared.PurchaseOrderQuorum.Reached(count) {
				po.Status = OrderPartiallyApproved
				result.ApprovalProgress = shared.NewApprovalProgress("Purchase order", count, shared.PurchaseOrderQuorum, string(po.Status))
				return tx.UpdateOrderStatus(ctx, id, po.Status)
			}

			po.Status = OrderFullyApproved
			requestItemIDs := make([]int64, 0, len(po.Items))
			for _, item := range po.Items {
				requestItemIDs = append(requestItemIDs, item.ItemRequestID)
			}
			if err := tx.MarkItemRequests(ctx, requestItemIDs, ItemInProgress); err != nil {
				return err
			}
			receipt, err := s.spawnReceipt(ctx, tx, po)
			if err != nil {
				return err
			}
			if err := tx.UpdateOrderStatus(ctx, id, po.Status); err != nil {
				return err
			}
			result.ApprovalProgress = shared.NewApprovalProgress("Purchase order", count, shared.PurchaseOrderQuorum, string(po.Status))
			result.Message = "Purchase order fully approved, IGR created, and item requests updated to IN_PROGRESS"
			result.ReceiptID = &receipt.ID
			result.ReceiptNumber = receipt.Number
			return nil
		})
	})
	if err != nil {
		return OrderApproval{}, err
	}
	s.logger.Info("purchase order approved", slog.String("number", po.Number), slog.Int("approvals", result.Approvals), slog.String("status", string(po.Status)))
	s.recordAudit(ctx, p, "purchase_order.approve", shared.EntityPurchaseOrder, id, map[string]any{"number": po.Number, "approvals": result.Approvals, "status": po.Status})
	if po.Status == OrderFullyApproved {
		s.publish(ctx, p, shared.EntityPurchaseOrder, id, po.Number, string(po.Status))
		s.publish(ctx, p, shared.EntityGoodsReceipt, *result.ReceiptID, result.ReceiptNumber, string(ReceiptPending))
	}
	return result, nil
}

func checkOrderApprovable(po PurchaseOrder, approverID int64) error {
	if po.Status == OrderFullyApproved {
		return fmt.Errorf("%w (%s)", ErrOrderFullyApproved, po.Number)
	}
	if shared.HasApproved(po.Approvals, approverID) {
		return fmt.Errorf("%w (%s)", ErrOrderAlreadyApproved, po.Number)
	}
	return nil
}

// spawnReceipt creates the IGR of a fully approved order, cloning its lines unreceived.
func (s *Service) spawnReceipt(ctx context.Context, tx TxRepository, po PurchaseOrder) (GoodsReceipt, error) {
	year := s.now().Year()
	number, err := numbering.Allocate(ctx, tx, numbering.ReceiptKey(year),
		func(seq int64) string { return numbering.ReceiptNumber(seq, year) },
		tx.ReceiptNumberExists)
	if err != nil {
		return GoodsReceipt{}, err
	}
	receipt := GoodsReceipt{
		Number:      number,
		OrderID:     po.ID,
		OrderNumber: po.Number,
		Status:      ReceiptPending,
		Notes:       po.Notes,
	}
	receipt.ID, err = tx.InsertReceipt(ctx, receipt)
	if err != nil {
		return GoodsReceipt{}, err
	}
	for _, line := range po.Items {
		item := ReceiptItem{
			ReceiptID: receipt.ID,
			ItemName:  line.ItemName,
			ItemCode:  line.ItemCode,
			Quantity:  line.Quantity,
		}
		item.ID, err = tx.InsertReceiptItem(ctx, item)
		if err != nil {
			return GoodsReceipt{}, err
		}
		receipt.Items = append(receipt.Items, item)
	}
	return receipt, nil
}

func checkOrderMutable(po PurchaseOrder) error {
	if len(po.Approvals) > 0 || po.ReceiptID != nil || po.Status != OrderPending {
		return fmt.Errorf("%w (%s)", ErrOrderLocked, po.Number)
	}
	return nil
}

// UpdateOrder replaces supplier, notes and lines of an order nobody has signed yet.
func (s *Service) UpdateOrder(ctx context.Context, p shared.Principal, id int64, input UpdateOrderInput) (PurchaseOrder, error) {
	if err := p.Require(shared.Operators...); err != nil {
		return PurchaseOrder{}, err
	}
	if err := shared.Validate(input); err != nil {
		return PurchaseOrder{}, err
	}
	current, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if err := checkOrderMutable(current); err != nil {
		return PurchaseOrder{}, err
	}
	supplier, err := s.lookup.FindSupplierByName(ctx, input.SupplierName)
	if err != nil {
		return PurchaseOrder{}, err
	}
	items, requestIDs, total, err := s.resolveOrderLines(ctx, input.Lines, supplier.Name, id)
	if err != nil {
		return PurchaseOrder{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := checkOrderMutable(po); err != nil {
			return err
		}
		if err := tx.DeleteOrderItems(ctx, id); err != nil {
			return err
		}
		if err := tx.UnlinkRequests(ctx, id); err != nil {
			return err
		}
		if _, err := insertOrderItems(ctx, tx, id, items); err != nil {
			return err
		}
		if err := tx.LinkRequests(ctx, id, requestIDs); err != nil {
			return err
		}
		po.SupplierID, po.SupplierName, po.Notes, po.TotalAmount = supplier.ID, supplier.Name, input.Notes, total
		return tx.UpdateOrder(ctx, po)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, p, "purchase_order.update", shared.EntityPurchaseOrder, id, map[string]any{"number": current.Number, "total": total.StringFixed(2)})
	return s.repo.GetOrder(ctx, id)
}

// DeleteOrder removes an order without approvals or receipt. Admins may delete orders
// that are no longer PENDING.
func (s *Service) DeleteOrder(ctx context.Context, p shared.Principal, id int64) error {
	if err := p.Require(shared.Operators...); err != nil {
		return err
	}
	var number string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		number = po.Number
		if !p.IsAdmin() && po.Status != OrderPending {
			return fmt.Errorf("%w (%s is %s)", ErrOrderLocked, po.Number, po.Status)
		}
		if po.ReceiptID != nil || len(po.Approvals) > 0 {
			return fmt.Errorf("%w (%s)", ErrOrderLocked, po.Number)
		}
		if err := tx.DeleteOrderApprovals(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteOrderItems(ctx, id); err != nil {
			return err
		}
		if err := tx.UnlinkRequests(ctx, id); err != nil {
			return err
		}
		return tx.DeleteOrder(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("purchase order deleted", slog.String("number", number))
	s.recordAudit(ctx, p, "purchase_order.delete", shared.EntityPurchaseOrder, id, map[string]any{"number": number})
	return nil
}

// GetOrder returns an order with lines, approvals, linked MPR codes and its IGR number.
func (s *Service) GetOrder(ctx context.Context, p shared.Principal, id int64) (PurchaseOrder, error) {
	if err := p.Require(shared.Operators...); err != nil {
		return PurchaseOrder{}, err
	}
	return s.repo.GetOrder(ctx, id)
}

// ListOrders lists purchase orders.
func (s *Service) ListOrders(ctx context.Context, p shared.Principal, f OrderFilter) ([]PurchaseOrder, shared.Pagination, error) {
	if err := p.Require(shared.Operators...); err != nil {
		return nil, shared.Pagination{}, err
	}
	f.Page = f.Page.Normalize()
	items, total, err := s.repo.ListOrders(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	out, page := listResult(items, total, f.Page)
	return out, page, nil
}
