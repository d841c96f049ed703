package masterdata

import (
	"context"
	"strconv"
)

// Service answers existence/identity lookups for the workflow engine.
type Service struct {
	repo  Repository
	cache *Cache
}

// NewService builds Service. cache may be nil.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// FindItemByCode resolves an item by its unique code.
func (s *Service) FindItemByCode(ctx context.Context, code string) (Item, error) {
	return fetch(ctx, s.cache, cacheKey("item", "code", code), func(ctx context.Context) (Item, error) {
		return s.repo.ItemByCode(ctx, code)
	})
}

// FindItemByName resolves an item by its exact name.
func (s *Service) FindItemByName(ctx context.Context, name string) (Item, error) {
	return fetch(ctx, s.cache, cacheKey("item", "name", name), func(ctx context.Context) (Item, error) {
		return s.repo.ItemByName(ctx, name)
	})
}

// FindItem resolves an item matching both code and name.
func (s *Service) FindItem(ctx context.Context, code, name string) (Item, error) {
	return fetch(ctx, s.cache, cacheKey("item", "pair", code, name), func(ctx context.Context) (Item, error) {
		return s.repo.ItemByCodeAndName(ctx, code, name)
	})
}

// FindWarehouseByName resolves a warehouse.
func (s *Service) FindWarehouseByName(ctx context.Context, name string) (Warehouse, error) {
	return fetch(ctx, s.cache, cacheKey("warehouse", "name", name), func(ctx context.Context) (Warehouse, error) {
		return s.repo.WarehouseByName(ctx, name)
	})
}

// GetWarehouse resolves a warehouse by id.
func (s *Service) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	return fetch(ctx, s.cache, cacheKey("warehouse", "id", strconv.FormatInt(id, 10)), func(ctx context.Context) (Warehouse, error) {
		return s.repo.WarehouseByID(ctx, id)
	})
}

// FindSupplierByName resolves a supplier.
func (s *Service) FindSupplierByName(ctx context.Context, name string) (Supplier, error) {
	return fetch(ctx, s.cache, cacheKey("supplier", "name", name), func(ctx context.Context) (Supplier, error) {
		return s.repo.SupplierByName(ctx, name)
	})
}

// FindLocationByName resolves a location.
func (s *Service) FindLocationByName(ctx context.Context, name string) (Location, error) {
	return fetch(ctx, s.cache, cacheKey("location", "name", name), func(ctx context.Context) (Location, error) {
		return s.repo.LocationByName(ctx, name)
	})
}

// GetLocation resolves a location by id.
func (s *Service) GetLocation(ctx context.Context, id int64) (Location, error) {
	return fetch(ctx, s.cache, cacheKey("location", "id", strconv.FormatInt(id, 10)), func(ctx context.Context) (Location, error) {
		return s.repo.LocationByID(ctx, id)
	})
}
