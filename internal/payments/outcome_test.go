package payments

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwaiterPollsUntilPaid(t *testing.T) {
	var calls atomic.Int32
	lookup := func(ctx context.Context, pctx PaymentContext, req LookupRequest) (PaymentDetails, error) {
		if calls.Add(1) < 3 {
			return PaymentDetails{Reference: req.Reference, Status: StatusPending}, nil
		}
		return PaymentDetails{Reference: req.Reference, TransactionReference: "MNFY|9", Status: StatusPaid, Amount: 43000}, nil
	}
	awaiter, err := NewAwaiter(lookup, WithPollInterval(time.Millisecond), WithAwaitTimeout(time.Second))
	require.NoError(t, err)

	outcome, err := awaiter.Await(context.Background(), PaymentContext{}, LookupRequest{Reference: "ORD-1-1"})
	require.NoError(t, err)
	assert.True(t, outcome.IsCompleted())
	assert.Equal(t, "MNFY|9", outcome.TransactionReference())
	assert.Equal(t, int64(43000), outcome.Amount())
	assert.Equal(t, int32(3), calls.Load())
}

func TestAwaiterCancelled(t *testing.T) {
	lookup := func(context.Context, PaymentContext, LookupRequest) (PaymentDetails, error) {
		return PaymentDetails{Status: StatusFailed}, nil
	}
	awaiter, err := NewAwaiter(lookup)
	require.NoError(t, err)

	outcome, err := awaiter.Await(context.Background(), PaymentContext{}, LookupRequest{Reference: "ORD-1-1"})
	require.NoError(t, err)
	assert.False(t, outcome.IsCompleted())
	assert.Equal(t, "cancelled", outcome.String())
}

func TestAwaiterWokenByNotify(t *testing.T) {
	lookup := func(context.Context, PaymentContext, LookupRequest) (PaymentDetails, error) {
		return PaymentDetails{Status: StatusPending}, nil
	}
	awaiter, err := NewAwaiter(lookup, WithPollInterval(time.Hour), WithAwaitTimeout(5*time.Second))
	require.NoError(t, err)

	go func() {
		for !awaiter.Notify(PaymentDetails{Reference: "ORD-2-1", TransactionReference: "MNFY|2", Status: StatusPaid, Amount: 100}) {
			time.Sleep(time.Millisecond)
		}
	}()

	outcome, err := awaiter.Await(context.Background(), PaymentContext{}, LookupRequest{Reference: "ORD-2-1"})
	require.NoError(t, err)
	assert.Equal(t, Completed("MNFY|2", 100), outcome)
	assert.False(t, awaiter.Notify(PaymentDetails{Reference: "ORD-2-1", Status: StatusPaid}), "waiter should be unregistered")
}

func TestAwaiterNotifyRequiresReceivingWaiter(t *testing.T) {
	awaiter, err := NewAwaiter(func(context.Context, PaymentContext, LookupRequest) (PaymentDetails, error) {
		return PaymentDetails{Status: StatusPending}, nil
	})
	require.NoError(t, err)

	// registered but not receiving, as when Await is inside a lookup or about to time out
	ch := awaiter.register("ORD-5-1")
	defer awaiter.unregister("ORD-5-1", ch)

	assert.False(t, awaiter.Notify(PaymentDetails{Reference: "ORD-5-1", Status: StatusPaid}))
	select {
	case details := <-ch:
		t.Fatalf("undelivered notification was queued: %+v", details)
	default:
	}
}

func TestAwaiterTimeout(t *testing.T) {
	lookup := func(context.Context, PaymentContext, LookupRequest) (PaymentDetails, error) {
		return PaymentDetails{Status: StatusPending}, nil
	}
	awaiter, err := NewAwaiter(lookup, WithPollInterval(time.Millisecond), WithAwaitTimeout(20*time.Millisecond))
	require.NoError(t, err)

	_, err = awaiter.Await(context.Background(), PaymentContext{}, LookupRequest{Reference: "ORD-3-1"})
	assert.ErrorIs(t, err, ErrAwaitTimeout)
}

func TestAwaiterLookupError(t *testing.T) {
	boom := errors.New("gateway down")
	lookup := func(context.Context, PaymentContext, LookupRequest) (PaymentDetails, error) {
		return PaymentDetails{}, boom
	}
	awaiter, err := NewAwaiter(lookup)
	require.NoError(t, err)

	_, err = awaiter.Await(context.Background(), PaymentContext{}, LookupRequest{Reference: "ORD-4-1"})
	assert.ErrorIs(t, err, boom)

	_, err = NewAwaiter(nil)
	assert.Error(t, err)
}
