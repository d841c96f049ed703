package masterdata

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

type countingRepo struct {
	items map[string]Item
	calls int
}

func (r *countingRepo) ItemByCode(_ context.Context, code string) (Item, error) {
	r.calls++
	if it, ok := r.items[code]; ok {
		return it, nil
	}
	return Item{}, ErrItemNotFound
}

func (r *countingRepo) ItemByName(_ context.Context, name string) (Item, error) {
	r.calls++
	for _, it := range r.items {
		if it.Name == name {
			return it, nil
		}
	}
	return Item{}, ErrItemNotFound
}

func (r *countingRepo) ItemByCodeAndName(_ context.Context, code, name string) (Item, error) {
	r.calls++
	if it, ok := r.items[code]; ok && it.Name == name {
		return it, nil
	}
	return Item{}, ErrItemNotFound
}

func (r *countingRepo) WarehouseByName(context.Context, string) (Warehouse, error) {
	return Warehouse{ID: 1, Name: "Main"}, nil
}

func (r *countingRepo) WarehouseByID(context.Context, int64) (Warehouse, error) {
	return Warehouse{ID: 1, Name: "Main"}, nil
}

func (r *countingRepo) SupplierByName(context.Context, string) (Supplier, error) {
	return Supplier{}, ErrSupplierNotFound
}

func (r *countingRepo) LocationByName(context.Context, string) (Location, error) {
	return Location{ID: 1, Code: "JKT", Name: "Jakarta"}, nil
}

func (r *countingRepo) LocationByID(context.Context, int64) (Location, error) {
	return Location{ID: 1, Code: "JKT", Name: "Jakarta"}, nil
}

func newCachedService(t *testing.T) (*Service, *countingRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := &countingRepo{items: map[string]Item{"BLT-01": {ID: 3, Code: "BLT-01", Name: "Bolt M8"}}}
	return NewService(repo, NewCache(client, time.Minute)), repo, mr
}

func TestLookupIsCached(t *testing.T) {
	svc, repo, _ := newCachedService(t)
	ctx := context.Background()

	first, err := svc.FindItemByCode(ctx, "BLT-01")
	require.NoError(t, err)
	second, err := svc.FindItemByCode(ctx, "BLT-01")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, repo.calls)
}

func TestNotFoundIsNotCached(t *testing.T) {
	svc, repo, _ := newCachedService(t)
	ctx := context.Background()

	_, err := svc.FindItemByCode(ctx, "NOPE")
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.FindItemByCode(ctx, "NOPE")
	require.ErrorIs(t, err, ErrItemNotFound)
	require.Equal(t, 2, repo.calls)
}

func TestCacheExpiryAndInvalidate(t *testing.T) {
	svc, repo, mr := newCachedService(t)
	ctx := context.Background()

	_, err := svc.FindItem(ctx, "BLT-01", "Bolt M8")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = svc.FindItem(ctx, "BLT-01", "Bolt M8")
	require.NoError(t, err)
	require.Equal(t, 2, repo.calls)

	require.NoError(t, svc.cache.Invalidate(ctx))
	_, err = svc.FindItem(ctx, "BLT-01", "Bolt M8")
	require.NoError(t, err)
	require.Equal(t, 3, repo.calls)
}

func TestServiceWithoutCache(t *testing.T) {
	repo := &countingRepo{items: map[string]Item{"BLT-01": {ID: 3, Code: "BLT-01", Name: "Bolt M8"}}}
	svc := NewService(repo, nil)
	it, err := svc.FindItemByName(context.Background(), "Bolt M8")
	require.NoError(t, err)
	require.EqualValues(t, 3, it.ID)
}
