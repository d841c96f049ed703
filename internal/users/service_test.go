package users

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

type memoryRepo map[int64]User

func (m memoryRepo) GetUser(_ context.Context, id int64) (User, error) {
	if u, ok := m[id]; ok {
		return u, nil
	}
	return User{}, fmt.Errorf("%w %d", ErrUserNotFound, id)
}

func TestResolvePrincipal(t *testing.T) {
	svc := NewService(memoryRepo{
		1: {ID: 1, Username: "admin", Role: shared.RoleAdmin},
		2: {ID: 2, Username: "ghost", Role: shared.Role("Guest")},
	})
	ctx := context.Background()

	p, err := svc.ResolvePrincipal(ctx, 1)
	require.NoError(t, err)
	require.True(t, p.IsAdmin())
	require.Equal(t, "admin", p.Username)

	_, err = svc.ResolvePrincipal(ctx, 0)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)

	_, err = svc.ResolvePrincipal(ctx, 2)
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.ResolvePrincipal(ctx, 9)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
