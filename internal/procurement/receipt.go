package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/odyssey-supply/internal/history"
	"github.com/odyssey-erp/odyssey-supply/internal/inventory"
	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

// resolvedReceiptLine is a submitted line checked against master data.
type resolvedReceiptLine struct {
	input       ReceiptLineInput
	warehouseID int64
	itemID      int64
}

// ApproveReceipt records receipt confirmation. Stock is only incremented, and the IGR
// only approved, when the call marks every IGR line received.
func (s *Service) ApproveReceipt(ctx context.Context, p shared.Principal, id int64, input ApproveReceiptInput) (ReceiptApproval, error) {
	if err := p.Require(shared.Operators...); err != nil {
		return ReceiptApproval{}, err
	}
	if err := shared.Validate(input); err != nil {
		return ReceiptApproval{}, err
	}
	current, err := s.repo.GetReceipt(ctx, id)
	if err != nil {
		return ReceiptApproval{}, err
	}
	if current.Status == ReceiptApproved {
		return ReceiptApproval{}, fmt.Errorf("%w (%s)", ErrReceiptApproved, current.Number)
	}
	lines, err := s.resolveReceiptLines(ctx, current, input.Lines)
	if err != nil {
		return ReceiptApproval{}, err
	}
	allReceived := coversAllItems(current.Items, input.Lines)

	var receipt GoodsReceipt
	err = shared.WithDocumentLock(ctx, s.locker, shared.DocumentLockKey(shared.EntityGoodsReceipt, id), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			receipt, err = tx.GetReceiptForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if receipt.Status == ReceiptApproved {
				return fmt.Errorf("%w (%s)", ErrReceiptApproved, receipt.Number)
			}
			quantities := make(map[int64]int64, len(receipt.Items))
			for _, line := range lines {
				warehouseID := line.warehouseID
				if err := tx.UpdateReceiptItem(ctx, ReceiptItem{
					ID:          line.input.ReceiptItemID,
					ReceiptID:   id,
					IsReceived:  line.input.IsReceived,
					WarehouseID: &warehouseID,
				}); err != nil {
					return err
				}
			}
			for i := range receipt.Items {
				quantities[receipt.Items[i].ID] = receipt.Items[i].Quantity
				for _, line := range lines {
					if line.input.ReceiptItemID == receipt.Items[i].ID {
						warehouseID := line.warehouseID
						receipt.Items[i].IsReceived = line.input.IsReceived
						receipt.Items[i].WarehouseID = &warehouseID
					}
				}
			}
			if !allReceived {
				return nil
			}

			receiptID := receipt.ID
			remark := input.Remark
			if remark == "" {
				remark = "IGR approval - " + receipt.Number
			}
			for _, line := range lines {
				if !line.input.IsReceived {
					continue
				}
				qty := quantities[line.input.ReceiptItemID]
				if _, err := inventory.Increase(ctx, tx, line.warehouseID, line.itemID, qty); err != nil {
					if errors.Is(err, inventory.ErrEntryNotFound) {
						return fmt.Errorf("%w: item %s, warehouse %s", ErrNotRegistered, line.input.ItemCode, line.input.WarehouseName)
					}
					return err
				}
				if _, err := tx.InsertRecord(ctx, history.Record{
					Type:        history.TypeIncoming,
					ItemID:      line.itemID,
					WarehouseID: line.warehouseID,
					Quantity:    qty,
					PONumber:    receipt.OrderNumber,
					IGRNumber:   receipt.Number,
					IGRID:       &receiptID,
					Remarks:     remark,
					ActorID:     p.UserID,
				}); err != nil {
					return err
				}
			}
			now := s.now().UTC()
			approver := p.UserID
			receipt.Status = ReceiptApproved
			receipt.Remarks = remark
			receipt.ApprovedBy = &approver
			receipt.ApprovedAt = &now
			return tx.UpdateReceipt(ctx, receipt)
		})
	})
	if err != nil {
		return ReceiptApproval{}, err
	}

	if !allReceived {
		s.logger.Info("goods receipt partially received", slog.String("number", receipt.Number))
		s.recordAudit(ctx, p, "goods_receipt.receive_partial", shared.EntityGoodsReceipt, id, map[string]any{"number": receipt.Number})
		return ReceiptApproval{
			Receipt:     receipt,
			AllReceived: false,
			Message:     "Cannot fully approve IGR. Not all items are marked as received.",
		}, nil
	}
	s.logger.Info("goods receipt approved", slog.String("number", receipt.Number), slog.Int("lines", len(lines)))
	s.recordAudit(ctx, p, "goods_receipt.approve", shared.EntityGoodsReceipt, id, map[string]any{"number": receipt.Number, "po_number": receipt.OrderNumber})
	s.publish(ctx, p, shared.EntityGoodsReceipt, id, receipt.Number, string(receipt.Status))
	return ReceiptApproval{Receipt: receipt, AllReceived: true, Message: "IGR fully received and approved"}, nil
}

func (s *Service) resolveReceiptLines(ctx context.Context, receipt GoodsReceipt, inputs []ReceiptLineInput) ([]resolvedReceiptLine, error) {
	known := make(map[int64]ReceiptItem, len(receipt.Items))
	for _, item := range receipt.Items {
		known[item.ID] = item
	}
	seen := make(map[int64]struct{}, len(inputs))
	out := make([]resolvedReceiptLine, 0, len(inputs))
	for _, in := range inputs {
		expected, ok := known[in.ReceiptItemID]
		if !ok {
			return nil, fmt.Errorf("%w: id %d not found in %s", ErrReceiptItemNotFound, in.ReceiptItemID, receipt.Number)
		}
		if _, dup := seen[in.ReceiptItemID]; dup {
			return nil, fmt.Errorf("%w: id %d", ErrDuplicateReceiptLine, in.ReceiptItemID)
		}
		seen[in.ReceiptItemID] = struct{}{}
		if !strings.EqualFold(strings.TrimSpace(in.ItemCode), expected.ItemCode) {
			return nil, fmt.Errorf("%w: got %s, want %s", ErrReceiptItemMismatch, in.ItemCode, expected.ItemCode)
		}
		wh, err := s.lookup.FindWarehouseByName(ctx, in.WarehouseName)
		if err != nil {
			return nil, err
		}
		item, err := s.lookup.FindItemByCode(ctx, in.ItemCode)
		if err != nil {
			return nil, err
		}
		if in.IsReceived {
			if _, err := s.stock.FindEntry(ctx, wh.ID, item.ID); err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					return nil, fmt.Errorf("%w: item %s, warehouse %s", ErrNotRegistered, in.ItemCode, in.WarehouseName)
				}
				return nil, err
			}
		}
		out = append(out, resolvedReceiptLine{input: in, warehouseID: wh.ID, itemID: item.ID})
	}
	return out, nil
}

// coversAllItems reports whether every IGR line has a submitted line marked received.
func coversAllItems(items []ReceiptItem, inputs []ReceiptLineInput) bool {
	received := make(map[int64]bool, len(inputs))
	for _, in := range inputs {
		if in.IsReceived {
			received[in.ReceiptItemID] = true
		}
	}
	for _, item := range items {
		if !received[item.ID] {
			return false
		}
	}
	return len(items) > 0
}

// DeleteReceipt removes a PENDING IGR. Admins may delete approved receipts; stock and
// history stay untouched.
func (s *Service) DeleteReceipt(ctx context.Context, p shared.Principal, id int64) error {
	if err := p.Require(shared.Operators...); err != nil {
		return err
	}
	var number string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		receipt, err := tx.GetReceiptForUpdate(ctx, id)
		if err != nil {
			return err
		}
		number = receipt.Number
		if !p.IsAdmin() && receipt.Status != ReceiptPending {
			return fmt.Errorf("%w (%s)", ErrReceiptLocked, receipt.Number)
		}
		if err := tx.DeleteReceiptItems(ctx, id); err != nil {
			return err
		}
		return tx.DeleteReceipt(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("goods receipt deleted", slog.String("number", number))
	s.recordAudit(ctx, p, "goods_receipt.delete", shared.EntityGoodsReceipt, id, map[string]any{"number": number})
	return nil
}

// GetReceipt returns an IGR with its lines and warehouse names.
func (s *Service) GetReceipt(ctx context.Context, p shared.Principal, id int64) (GoodsReceipt, error) {
	if err := p.Require(shared.Operators...); err != nil {
		return GoodsReceipt{}, err
	}
	return s.repo.GetReceipt(ctx, id)
}

// ListReceipts lists IGRs with their PO number and PO approvers.
func (s *Service) ListReceipts(ctx context.Context, p shared.Principal, f ReceiptFilter) ([]GoodsReceipt, shared.Pagination, error) {
	if err := p.Require(shared.Operators...); err != nil {
		return nil, shared.Pagination{}, err
	}
	f.Page = f.Page.Normalize()
	items, total, err := s.repo.ListReceipts(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	out, page := listResult(items, total, f.Page)
	return out, page, nil
}
