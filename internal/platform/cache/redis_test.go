package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client, err := New(ctx, Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, Ping(ctx, client, time.Second))

	mr.Close()
	require.Error(t, Ping(ctx, client, 200*time.Millisecond))
}

func TestNewFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), Options{Addr: addr, PingTimeout: 200 * time.Millisecond})
	require.ErrorContains(t, err, "platform/cache: ping")
}

func TestPingWithoutClient(t *testing.T) {
	require.Error(t, Ping(context.Background(), nil, 0))
}
