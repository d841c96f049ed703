package users

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

// RepositoryPort is implemented by Repository and test fakes.
type RepositoryPort interface {
	GetUser(ctx context.Context, id int64) (User, error)
}

// Service exposes user lookups.
type Service struct {
	repo RepositoryPort
}

// NewService constructs a Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// GetUser returns the account for id.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// ResolvePrincipal loads the acting principal, rejecting accounts with an unknown role.
func (s *Service) ResolvePrincipal(ctx context.Context, id int64) (shared.Principal, error) {
	if id <= 0 {
		return shared.Principal{}, shared.ErrUnauthenticated
	}
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return shared.Principal{}, err
	}
	if !user.Role.IsValid() {
		return shared.Principal{}, fmt.Errorf("%w: user %d has role %q", shared.ErrForbidden, id, user.Role)
	}
	return user.Principal(), nil
}
