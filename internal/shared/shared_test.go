package shared

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestPrincipalRequire(t *testing.T) {
	staff := Principal{UserID: 7, Username: "sinta", Role: RoleStaff}
	require.NoError(t, staff.Require(Operators...))
	require.ErrorIs(t, staff.Require(RoleAdmin), ErrForbidden)
	require.False(t, staff.IsAdmin())

	anon := Principal{}
	require.ErrorIs(t, anon.Require(RoleUser), ErrUnauthenticated)

	ctx := ContextWithPrincipal(context.Background(), staff)
	got, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, staff, got)
}

type sampleInput struct {
	Name  string       `validate:"required"`
	Lines []sampleLine `validate:"required,min=1,dive"`
}

type sampleLine struct {
	Qty int `validate:"gt=0"`
}

func TestValidateWrapsFieldErrors(t *testing.T) {
	err := Validate(sampleInput{Lines: []sampleLine{{Qty: 0}}})
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "Name is required")
	require.Contains(t, err.Error(), "Lines[0].Qty must be greater than 0")

	require.NoError(t, Validate(sampleInput{Name: "ok", Lines: []sampleLine{{Qty: 1}}}))
}

func TestApprovalProgress(t *testing.T) {
	p := NewApprovalProgress("Purchase order", 2, PurchaseOrderQuorum, "PARTIALLY_APPROVED")
	require.Equal(t, "Purchase order approved successfully (2/3 approvals)", p.Message)
	require.False(t, PurchaseOrderQuorum.Reached(2))
	require.True(t, DeliveryOrderQuorum.Reached(4))
	require.True(t, HasApproved([]Approval{{ApproverID: 3}}, 3))
}

func TestDocumentLockerSerializes(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	locker := NewDocumentLocker(rdb, time.Second)

	var inside, maxInside int32
	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(context.Background(), DocumentLockKey(EntityPurchaseOrder, 1), func(context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					cur := atomic.LoadInt32(&maxInside)
					if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), maxInside)
}

type stubPublisher struct {
	events []DocumentEvent
	err    error
}

func (s *stubPublisher) Publish(_ context.Context, evt DocumentEvent) error {
	s.events = append(s.events, evt)
	return s.err
}

func TestPublishersFanOut(t *testing.T) {
	a := &stubPublisher{}
	b := &stubPublisher{err: errors.New("queue down")}
	evt := NewDocumentEvent(EntityDeliveryOrder, 9, "DO-9", "COMPLETED", 1)
	err := Publishers{a, nil, b}.Publish(context.Background(), evt)
	require.Error(t, err)
	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)
	require.Equal(t, evt.ID, a.events[0].ID)
}
