package procurement

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

func spawnReceipt(t *testing.T, f fixture) GoodsReceipt {
	t.Helper()
	ctx := context.Background()
	req := f.approvedRequest(t)
	po, err := f.svc.CreateOrder(ctx, staffA, orderInput("PO-001", req.RequestCode))
	require.NoError(t, err)
	var res OrderApproval
	for _, p := range []shared.Principal{staffA, staffB, staffC} {
		res, err = f.svc.ApproveOrder(ctx, p, po.ID)
		require.NoError(t, err)
	}
	receipt, err := f.repo.GetReceipt(ctx, *res.ReceiptID)
	require.NoError(t, err)
	return receipt
}

func TestApproveReceiptRejectsInconsistentLines(t *testing.T) {
	cases := []struct {
		name  string
		lines func(bolt, nut ReceiptItem) []ReceiptLineInput
		want  error
	}{
		{
			name: "repeated receipt item",
			lines: func(bolt, nut ReceiptItem) []ReceiptLineInput {
				return []ReceiptLineInput{
					{ReceiptItemID: bolt.ID, WarehouseName: "Main Warehouse", ItemCode: "BLT-01", IsReceived: true},
					{ReceiptItemID: bolt.ID, WarehouseName: "Main Warehouse", ItemCode: "BLT-01", IsReceived: true},
					{ReceiptItemID: nut.ID, WarehouseName: "Main Warehouse", ItemCode: "NUT-01", IsReceived: true},
				}
			},
			want: ErrDuplicateReceiptLine,
		},
		{
			name: "item code of another line",
			lines: func(bolt, nut ReceiptItem) []ReceiptLineInput {
				return []ReceiptLineInput{
					{ReceiptItemID: bolt.ID, WarehouseName: "Main Warehouse", ItemCode: "NUT-01", IsReceived: true},
					{ReceiptItemID: nut.ID, WarehouseName: "Main Warehouse", ItemCode: "NUT-01", IsReceived: true},
				}
			},
			want: ErrReceiptItemMismatch,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			receipt := spawnReceipt(t, f)
			before, err := f.repo.FindEntry(ctx, warehouseID, boltID)
			require.NoError(t, err)

			_, err = f.svc.ApproveReceipt(ctx, staffA, receipt.ID, ApproveReceiptInput{Lines: tc.lines(receipt.Items[0], receipt.Items[1])})
			require.ErrorIs(t, err, tc.want)
			require.ErrorIs(t, err, shared.ErrValidation)

			after, err := f.repo.FindEntry(ctx, warehouseID, boltID)
			require.NoError(t, err)
			require.Equal(t, before.StockQuantity, after.StockQuantity)
			state := f.repo.snapshot()
			require.Empty(t, state.records)
			require.Equal(t, ReceiptPending, state.receipts[receipt.ID].Status)
		})
	}
}

func TestReceiptNumbersContinuePastImportedReceipts(t *testing.T) {
	f := newFixture(t)
	f.repo.mu.Lock()
	for i := int64(1); i <= 12; i++ {
		id := f.repo.state.id()
		f.repo.state.receipts[id] = GoodsReceipt{
			ID:      id,
			Number:  fmt.Sprintf("IGR-%04d-2026", i),
			OrderID: 1000 + i,
			Status:  ReceiptApproved,
		}
	}
	lastYear := f.repo.state.id()
	f.repo.state.receipts[lastYear] = GoodsReceipt{ID: lastYear, Number: "IGR-0099-2025", OrderID: 2000, Status: ReceiptApproved}
	f.repo.mu.Unlock()

	receipt := spawnReceipt(t, f)
	require.Equal(t, "IGR-0013-2026", receipt.Number)
}
