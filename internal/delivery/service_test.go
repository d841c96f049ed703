package delivery

import (
	"context"
	"maps"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-supply/internal/history"
	"github.com/odyssey-erp/odyssey-supply/internal/inventory"
	"github.com/odyssey-erp/odyssey-supply/internal/masterdata"
	"github.com/odyssey-erp/odyssey-supply/internal/shared"
	"github.com/odyssey-erp/odyssey-supply/internal/users"
)

type memoryState struct {
	orders    map[int64]DeliveryOrder
	items     map[int64]Item
	approvals map[int64]shared.Approval
	requests  map[string]RequestRef
	entries   map[int64]inventory.Entry
	records   []history.Record
	writes    map[int64]int
	nextID    int64
}

func (s *memoryState) clone() *memoryState {
	return &memoryState{
		orders:    maps.Clone(s.orders),
		items:     maps.Clone(s.items),
		approvals: maps.Clone(s.approvals),
		requests:  maps.Clone(s.requests),
		entries:   maps.Clone(s.entries),
		records:   slices.Clone(s.records),
		writes:    maps.Clone(s.writes),
		nextID:    s.nextID,
	}
}

func (s *memoryState) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memoryState) order(id int64) (DeliveryOrder, error) {
	do, ok := s.orders[id]
	if !ok {
		return DeliveryOrder{}, ErrOrderNotFound
	}
	for _, itemID := range slices.Sorted(maps.Keys(s.items)) {
		if it := s.items[itemID]; it.OrderID == id {
			do.Items = append(do.Items, it)
		}
	}
	for _, approvalID := range slices.Sorted(maps.Keys(s.approvals)) {
		if a := s.approvals[approvalID]; a.DocumentID == id {
			do.Approvals = append(do.Approvals, a)
		}
	}
	return do, nil
}

func (s *memoryState) entry(warehouseID, itemID int64) (inventory.Entry, error) {
	for _, e := range s.entries {
		if e.WarehouseID == warehouseID && e.ItemID == itemID {
			return e, nil
		}
	}
	return inventory.Entry{}, inventory.ErrEntryNotFound
}

type memoryRepo struct {
	mu    sync.Mutex
	state *memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: &memoryState{
		orders:    make(map[int64]DeliveryOrder),
		items:     make(map[int64]Item),
		approvals: make(map[int64]shared.Approval),
		requests:  make(map[string]RequestRef),
		entries:   make(map[int64]inventory.Entry),
	}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	work := r.state.clone()
	if err := fn(ctx, &memoryTx{s: work}); err != nil {
		return err
	}
	r.state = work
	return nil
}

func (r *memoryRepo) GetOrder(_ context.Context, id int64) (DeliveryOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.order(id)
}

func (r *memoryRepo) ListOrders(_ context.Context, f Filter) ([]DeliveryOrder, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []DeliveryOrder
	for _, id := range slices.Sorted(maps.Keys(r.state.orders)) {
		do, _ := r.state.order(id)
		if f.Status != "" && do.Status != f.Status {
			continue
		}
		if f.Search != "" && !strings.Contains(do.Number, f.Search) {
			continue
		}
		out = append(out, do)
	}
	return out, len(out), nil
}

func (r *memoryRepo) FindEntry(_ context.Context, warehouseID, itemID int64) (inventory.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.entry(warehouseID, itemID)
}

func (r *memoryRepo) setStock(warehouseID, itemID, qty int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.state.entries {
		if e.WarehouseID == warehouseID && e.ItemID == itemID {
			e.StockQuantity = qty
			e.Version++
			r.state.entries[id] = e
			return
		}
	}
	id := r.state.id()
	r.state.entries[id] = inventory.Entry{ID: id, WarehouseID: warehouseID, ItemID: itemID, StockQuantity: qty, Version: 1}
}

func (r *memoryRepo) snapshot() *memoryState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

type memoryTx struct {
	s *memoryState
}

func (t *memoryTx) GetEntryForUpdate(_ context.Context, warehouseID, itemID int64) (inventory.Entry, error) {
	return t.s.entry(warehouseID, itemID)
}

func (t *memoryTx) UpdateStock(_ context.Context, entryID, version, qty int64) error {
	e, ok := t.s.entries[entryID]
	if !ok {
		return inventory.ErrEntryNotFound
	}
	if qty < 0 {
		return inventory.ErrInsufficientStock
	}
	if e.Version != version {
		return inventory.ErrConcurrentModification
	}
	e.StockQuantity = qty
	e.Version++
	t.s.entries[entryID] = e
	return nil
}

func (t *memoryTx) InsertRecord(_ context.Context, rec history.Record) (int64, error) {
	rec.ID = t.s.id()
	t.s.records = append(t.s.records, rec)
	return rec.ID, nil
}

func (t *memoryTx) NumberExists(_ context.Context, number string, excludeID int64) (bool, error) {
	for _, do := range t.s.orders {
		if do.Number == number && do.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) FindRequestByCode(_ context.Context, code string) (RequestRef, error) {
	ref, ok := t.s.requests[code]
	if !ok {
		return RequestRef{}, ErrRequestNotFound
	}
	return ref, nil
}

func (t *memoryTx) RequestHasOrder(_ context.Context, requestID, excludeID int64) (bool, error) {
	for _, do := range t.s.orders {
		if do.RequestID != nil && *do.RequestID == requestID && do.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) InsertOrder(_ context.Context, do DeliveryOrder) (int64, error) {
	do.ID = t.s.id()
	do.Items, do.Approvals = nil, nil
	t.s.orders[do.ID] = do
	return do.ID, nil
}

func (t *memoryTx) InsertItem(_ context.Context, item Item) (int64, error) {
	item.ID = t.s.id()
	t.s.items[item.ID] = item
	return item.ID, nil
}

func (t *memoryTx) GetOrderForUpdate(_ context.Context, id int64) (DeliveryOrder, error) {
	return t.s.order(id)
}

func (t *memoryTx) UpdateOrder(_ context.Context, do DeliveryOrder) error {
	current := t.s.orders[do.ID]
	current.Number, current.Notes = do.Number, do.Notes
	current.RequestID, current.RequestCode, current.LocationID, current.LocationName = do.RequestID, do.RequestCode, do.LocationID, do.LocationName
	t.s.orders[do.ID] = current
	return nil
}

func (t *memoryTx) UpdateStatus(_ context.Context, id int64, status Status) error {
	do := t.s.orders[id]
	do.Status = status
	t.s.orders[id] = do
	if t.s.writes == nil {
		t.s.writes = map[int64]int{}
	}
	t.s.writes[id]++
	return nil
}

func (t *memoryTx) InsertApproval(_ context.Context, a shared.Approval) (int64, error) {
	for _, existing := range t.s.approvals {
		if existing.DocumentID == a.DocumentID && existing.ApproverID == a.ApproverID {
			return 0, ErrAlreadyApproved
		}
	}
	a.ID = t.s.id()
	t.s.approvals[a.ID] = a
	return a.ID, nil
}

func (t *memoryTx) CountApprovals(_ context.Context, orderID int64) (int, error) {
	n := 0
	for _, a := range t.s.approvals {
		if a.DocumentID == orderID {
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) DeleteApprovals(_ context.Context, orderID int64) error {
	for id, a := range t.s.approvals {
		if a.DocumentID == orderID {
			delete(t.s.approvals, id)
		}
	}
	return nil
}

func (t *memoryTx) DeleteItems(_ context.Context, orderID int64) error {
	for id, it := range t.s.items {
		if it.OrderID == orderID {
			delete(t.s.items, id)
		}
	}
	return nil
}

func (t *memoryTx) DeleteOrder(_ context.Context, id int64) error {
	delete(t.s.orders, id)
	return nil
}

type memoryMasterData struct{}

func (memoryMasterData) FindItemByCode(_ context.Context, code string) (masterdata.Item, error) {
	switch code {
	case "BLT-01":
		return masterdata.Item{ID: boltID, Code: code, Name: "Bolt M8"}, nil
	case "NUT-01":
		return masterdata.Item{ID: nutID, Code: code, Name: "Nut M8"}, nil
	}
	return masterdata.Item{}, masterdata.ErrItemNotFound
}

func (memoryMasterData) FindWarehouseByName(_ context.Context, name string) (masterdata.Warehouse, error) {
	if name == "Main Warehouse" {
		return masterdata.Warehouse{ID: warehouseID, Name: name}, nil
	}
	return masterdata.Warehouse{}, masterdata.ErrWarehouseNotFound
}

type memoryIdentity struct{}

func (memoryIdentity) GetUser(_ context.Context, id int64) (users.User, error) {
	u := users.User{ID: id, Role: shared.RoleStaff}
	if id != unsignedID {
		u.SignaturePath = "signatures/approver.png"
	}
	return u, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DocumentEvent
}

func (p *recordingPublisher) Publish(_ context.Context, evt shared.DocumentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

const (
	boltID      = 101
	nutID       = 102
	warehouseID = 201
	unsignedID  = 99
)

var (
	staff = shared.Principal{UserID: 1, Username: "andi", Role: shared.RoleStaff}
	admin = shared.Principal{UserID: 9, Username: "dewi", Role: shared.RoleAdmin}
)

func approvers() []shared.Principal {
	return []shared.Principal{
		staff,
		{UserID: 2, Username: "bima", Role: shared.RoleStaff},
		{UserID: 3, Username: "citra", Role: shared.RoleStaff},
		admin,
		{UserID: 5, Username: "eko", Role: shared.RoleStaff},
	}
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *recordingPublisher) {
	t.Helper()
	repo := newMemoryRepo()
	repo.setStock(warehouseID, boltID, 10)
	repo.setStock(warehouseID, nutID, 5)
	repo.state.requests["MPR-0001JKT"] = RequestRef{ID: 77, Code: "MPR-0001JKT", LocationID: 401, LocationName: "Jakarta"}
	events := &recordingPublisher{}
	svc := NewService(repo, memoryMasterData{}, memoryIdentity{}, repo, nil, nil, ServiceConfig{Events: events})
	return svc, repo, events
}

func doInput(number string) CreateOrderInput {
	return CreateOrderInput{
		Number:      number,
		RequestCode: "MPR-0001JKT",
		Lines: []LineInput{
			{ItemName: "Bolt M8", ItemCode: "BLT-01", Quantity: 4, WarehouseName: "Main Warehouse"},
			{ItemName: "nut m8", ItemCode: "NUT-01", Quantity: 5, WarehouseName: "Main Warehouse"},
		},
	}
}

func stockOf(t *testing.T, repo *memoryRepo, itemID int64) int64 {
	t.Helper()
	e, err := repo.FindEntry(context.Background(), warehouseID, itemID)
	require.NoError(t, err)
	return e.StockQuantity
}

func TestCreateOrderChecksStock(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	input := doInput("DO-001")
	input.Lines[1].Quantity = 6
	_, err := svc.CreateOrder(ctx, staff, input)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.Contains(t, err.Error(), "available: 5, requested: 6")

	input = doInput("DO-001")
	input.Lines[0].WarehouseName = "Annex"
	_, err = svc.CreateOrder(ctx, staff, input)
	require.ErrorIs(t, err, shared.ErrNotFound)

	input = doInput("DO-001")
	input.Lines[0].ItemName = "Washer"
	_, err = svc.CreateOrder(ctx, staff, input)
	require.ErrorIs(t, err, ErrItemMismatch)

	_, err = svc.CreateOrder(ctx, shared.Principal{UserID: 50, Role: shared.RoleUser}, doInput("DO-001"))
	require.ErrorIs(t, err, shared.ErrForbidden)

	require.Empty(t, repo.snapshot().orders)
	require.Empty(t, repo.snapshot().items)
}

func TestCreateOrderLinksRequest(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	do, err := svc.CreateOrder(ctx, staff, doInput("DO-001"))
	require.NoError(t, err)
	require.Equal(t, StatusPending, do.Status)
	require.Equal(t, "MPR-0001JKT", do.RequestCode)
	require.Equal(t, "Jakarta", do.LocationName)
	require.Len(t, do.Items, 2)
	require.Equal(t, "Nut M8", do.Items[1].ItemName)

	_, err = svc.CreateOrder(ctx, staff, doInput("DO-001"))
	require.ErrorIs(t, err, ErrNumberTaken)

	_, err = svc.CreateOrder(ctx, staff, doInput("DO-002"))
	require.ErrorIs(t, err, ErrRequestHasOrder)

	unknown := doInput("DO-002")
	unknown.RequestCode = "MPR-0404JKT"
	_, err = svc.CreateOrder(ctx, staff, unknown)
	require.ErrorIs(t, err, ErrRequestNotFound)

	standalone := doInput("DO-002")
	standalone.RequestCode = ""
	do, err = svc.CreateOrder(ctx, staff, standalone)
	require.NoError(t, err)
	require.Nil(t, do.RequestID)
}

func TestApproveOrderQuorumReleasesStock(t *testing.T) {
	svc, repo, events := newTestService(t)
	ctx := context.Background()
	do, err := svc.CreateOrder(ctx, staff, doInput("DO-001"))
	require.NoError(t, err)

	_, err = svc.ApproveOrder(ctx, shared.Principal{UserID: unsignedID, Role: shared.RoleStaff}, do.ID)
	require.ErrorIs(t, err, ErrSignatureRequired)

	signers := approvers()
	for i, p := range signers[:3] {
		res, err := svc.ApproveOrder(ctx, p, do.ID)
		require.NoError(t, err)
		require.False(t, res.Completed)
		require.Equal(t, i+1, res.Approvals)
		require.Equal(t, string(StatusPending), res.Status)
	}
	require.EqualValues(t, 10, stockOf(t, repo, boltID))

	_, err = svc.ApproveOrder(ctx, staff, do.ID)
	require.ErrorIs(t, err, ErrAlreadyApproved)

	res, err := svc.ApproveOrder(ctx, signers[3], do.ID)
	require.NoError(t, err)
	require.True(t, res.Completed)
	require.Equal(t, "Delivery order approved successfully (4/4 approvals)", res.Message)
	require.EqualValues(t, 6, stockOf(t, repo, boltID))
	require.EqualValues(t, 0, stockOf(t, repo, nutID))

	records := repo.snapshot().records
	require.Len(t, records, 2)
	for _, rec := range records {
		require.Equal(t, history.TypeOutgoing, rec.Type)
		require.Equal(t, "MPR-0001JKT", rec.MPRNumber)
		require.Equal(t, "DO-001", rec.DONumber)
		require.Equal(t, do.ID, *rec.DOID)
		require.EqualValues(t, 401, *rec.LocationID)
		require.Equal(t, "Delivery Order completion - DO-001", rec.Remarks)
	}

	_, err = svc.ApproveOrder(ctx, signers[4], do.ID)
	require.ErrorIs(t, err, ErrOrderCompleted)

	require.Len(t, events.events, 1)
	require.Equal(t, string(StatusCompleted), events.events[0].Status)
}

func TestApproveOrderRejectsRepeatedSigner(t *testing.T) {
	cases := []struct {
		name  string
		prior int
	}{
		{name: "after first approval", prior: 1},
		{name: "one short of quorum", prior: 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo, events := newTestService(t)
			ctx := context.Background()
			do, err := svc.CreateOrder(ctx, staff, doInput("DO-001"))
			require.NoError(t, err)

			signers := approvers()
			for _, p := range signers[:tc.prior] {
				_, err := svc.ApproveOrder(ctx, p, do.ID)
				require.NoError(t, err)
			}

			_, err = svc.ApproveOrder(ctx, signers[tc.prior-1], do.ID)
			require.ErrorIs(t, err, ErrAlreadyApproved)
			require.ErrorIs(t, err, shared.ErrConflict)

			stored, err := repo.GetOrder(ctx, do.ID)
			require.NoError(t, err)
			require.Len(t, stored.Approvals, tc.prior)
			require.Equal(t, StatusPending, stored.Status)
			require.EqualValues(t, 10, stockOf(t, repo, boltID))
			require.Empty(t, events.events)

			res, err := svc.ApproveOrder(ctx, signers[tc.prior], do.ID)
			require.NoError(t, err)
			require.Equal(t, tc.prior+1, res.Approvals)
		})
	}
}

func TestApproveOrderWritesOrderRowEveryTime(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	do, err := svc.CreateOrder(ctx, staff, doInput("DO-001"))
	require.NoError(t, err)

	for i, p := range approvers()[:3] {
		_, err := svc.ApproveOrder(ctx, p, do.ID)
		require.NoError(t, err)
		require.Equal(t, i+1, repo.snapshot().writes[do.ID])
	}
}

func TestApproveOrderRollsBackWhenStockShrank(t *testing.T) {
	svc, repo, events := newTestService(t)
	ctx := context.Background()
	do, err := svc.CreateOrder(ctx, staff, doInput("DO-001"))
	require.NoError(t, err)

	signers := approvers()
	for _, p := range signers[:3] {
		_, err := svc.ApproveOrder(ctx, p, do.ID)
		require.NoError(t, err)
	}
	repo.setStock(warehouseID, nutID, 2)

	_, err = svc.ApproveOrder(ctx, signers[3], do.ID)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	state := repo.snapshot()
	require.Empty(t, state.records)
	require.Len(t, state.approvals, 3)
	require.Equal(t, StatusPending, state.orders[do.ID].Status)
	require.EqualValues(t, 10, stockOf(t, repo, boltID))
	require.EqualValues(t, 2, stockOf(t, repo, nutID))
	require.Empty(t, events.events)
}

func TestUpdateOrder(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	first, err := svc.CreateOrder(ctx, staff, doInput("DO-001"))
	require.NoError(t, err)
	standalone := doInput("DO-002")
	standalone.RequestCode = ""
	second, err := svc.CreateOrder(ctx, staff, standalone)
	require.NoError(t, err)

	_, err = svc.UpdateOrder(ctx, staff, second.ID, UpdateOrderInput{Number: "DO-001", Lines: standalone.Lines})
	require.ErrorIs(t, err, ErrNumberTaken)

	_, err = svc.UpdateOrder(ctx, staff, second.ID, UpdateOrderInput{Number: "DO-002", RequestCode: "MPR-0001JKT", Lines: standalone.Lines})
	require.ErrorIs(t, err, ErrRequestHasOrder)

	updated, err := svc.UpdateOrder(ctx, staff, first.ID, UpdateOrderInput{
		Number:      "DO-001",
		RequestCode: "MPR-0001JKT",
		Notes:       "bolts only",
		Lines:       []LineInput{{ItemName: "Bolt M8", ItemCode: "BLT-01", Quantity: 2, WarehouseName: "Main Warehouse"}},
	})
	require.NoError(t, err)
	require.Equal(t, "bolts only", updated.Notes)
	require.Len(t, updated.Items, 1)
	require.EqualValues(t, 2, updated.Items[0].Quantity)

	for _, p := range approvers()[:4] {
		_, err := svc.ApproveOrder(ctx, p, first.ID)
		require.NoError(t, err)
	}
	_, err = svc.UpdateOrder(ctx, staff, first.ID, UpdateOrderInput{Number: "DO-001", Lines: standalone.Lines})
	require.ErrorIs(t, err, ErrOrderLocked)
}

func TestDeleteOrderGating(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	do, err := svc.CreateOrder(ctx, staff, doInput("DO-001"))
	require.NoError(t, err)
	for _, p := range approvers()[:4] {
		_, err := svc.ApproveOrder(ctx, p, do.ID)
		require.NoError(t, err)
	}

	require.ErrorIs(t, svc.DeleteOrder(ctx, staff, do.ID), ErrOrderUndeletable)
	require.NoError(t, svc.DeleteOrder(ctx, admin, do.ID))

	state := repo.snapshot()
	require.Empty(t, state.orders)
	require.Empty(t, state.items)
	require.Empty(t, state.approvals)
	require.Len(t, state.records, 2)
	require.EqualValues(t, 6, stockOf(t, repo, boltID))

	boltsOnly := doInput("DO-002")
	boltsOnly.Lines = boltsOnly.Lines[:1]
	pending, err := svc.CreateOrder(ctx, staff, boltsOnly)
	require.NoError(t, err)
	_, err = svc.ApproveOrder(ctx, staff, pending.ID)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteOrder(ctx, staff, pending.ID))
	_, err = repo.GetOrder(ctx, pending.ID)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestApproveHandler(t *testing.T) {
	svc, _, _ := newTestService(t)
	do, err := svc.CreateOrder(context.Background(), staff, doInput("DO-001"))
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), staff)))
		})
	})
	NewHandler(svc).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/"+strconv.FormatInt(do.ID, 10)+"/approve", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "(1/4 approvals)")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/"+strconv.FormatInt(do.ID, 10)+"/approve", nil))
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/abc", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
