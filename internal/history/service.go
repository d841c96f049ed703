package history

import (
	"context"

	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

// RepositoryPort abstracts history reads for the service.
type RepositoryPort interface {
	List(ctx context.Context, typ Type, f Filter) ([]Record, int, error)
	ListByItem(ctx context.Context, itemID int64, typ Type) ([]Record, error)
}

// Service exposes the item history queries.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListIncoming lists INCOMING records.
func (s *Service) ListIncoming(ctx context.Context, p shared.Principal, f Filter) ([]Record, shared.Pagination, error) {
	return s.list(ctx, p, TypeIncoming, f)
}

// ListOutgoing lists OUTGOING records.
func (s *Service) ListOutgoing(ctx context.Context, p shared.Principal, f Filter) ([]Record, shared.Pagination, error) {
	return s.list(ctx, p, TypeOutgoing, f)
}

// ListByItem returns the full history of one item, used by the inventory summary.
func (s *Service) ListByItem(ctx context.Context, itemID int64, typ Type) ([]Record, error) {
	return s.repo.ListByItem(ctx, itemID, typ)
}

func (s *Service) list(ctx context.Context, p shared.Principal, typ Type, f Filter) ([]Record, shared.Pagination, error) {
	if err := p.Require(shared.Operators...); err != nil {
		return nil, shared.Pagination{}, err
	}
	if err := shared.Validate(f); err != nil {
		return nil, shared.Pagination{}, err
	}
	f.Page = f.Page.Normalize()
	records, total, err := s.repo.List(ctx, typ, f)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if records == nil {
		records = []Record{}
	}
	return records, shared.NewPagination(f.Page.Page, f.Page.PerPage, total), nil
}
