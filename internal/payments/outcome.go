package payments

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrAwaitTimeout is returned when the gateway neither confirms nor cancels within the await window.
var ErrAwaitTimeout = errors.New("payments: timed out waiting for gateway result")

// Outcome is the tagged result of a hosted payment: Completed with the gateway's transaction
// reference, or Cancelled.
type Outcome struct {
	completed            bool
	transactionReference string
	amount               int64
}

// Completed builds a successful outcome.
func Completed(transactionReference string, amount int64) Outcome {
	return Outcome{completed: true, transactionReference: strings.TrimSpace(transactionReference), amount: amount}
}

// Cancelled builds a cancelled outcome.
func Cancelled() Outcome {
	return Outcome{}
}

// IsCompleted reports whether the payment went through.
func (o Outcome) IsCompleted() bool { return o.completed }

// TransactionReference is the gateway's id for the completed payment.
func (o Outcome) TransactionReference() string { return o.transactionReference }

// Amount is the amount the gateway reports as paid, in whole naira.
func (o Outcome) Amount() int64 { return o.amount }

func (o Outcome) String() string {
	if o.completed {
		return "completed(" + o.transactionReference + ")"
	}
	return "cancelled"
}

// OutcomeFromDetails maps a terminal gateway state to an Outcome. ok is false while pending.
func OutcomeFromDetails(details PaymentDetails) (outcome Outcome, ok bool) {
	switch details.Status {
	case StatusPaid:
		ref := details.TransactionReference
		if ref == "" {
			ref = details.Reference
		}
		return Completed(ref, details.Amount), true
	case StatusCancelled, StatusFailed:
		return Cancelled(), true
	default:
		return Outcome{}, false
	}
}

// LookupFunc queries the gateway for the current payment state.
type LookupFunc func(ctx context.Context, pctx PaymentContext, req LookupRequest) (PaymentDetails, error)

// Awaiter turns the gateway's asynchronous completion into a blocking call. It polls the gateway
// and can be woken early by webhook notifications.
type Awaiter struct {
	lookup   LookupFunc
	timeout  time.Duration
	interval time.Duration

	mu      sync.Mutex
	waiters map[string][]chan PaymentDetails
}

// AwaiterOption customises the awaiter.
type AwaiterOption func(*Awaiter)

// WithAwaitTimeout bounds how long Await blocks.
func WithAwaitTimeout(timeout time.Duration) AwaiterOption {
	return func(a *Awaiter) {
		if timeout > 0 {
			a.timeout = timeout
		}
	}
}

// WithPollInterval sets the delay between gateway lookups.
func WithPollInterval(interval time.Duration) AwaiterOption {
	return func(a *Awaiter) {
		if interval > 0 {
			a.interval = interval
		}
	}
}

// NewAwaiter constructs an awaiter over the lookup function, typically Manager.LookupPayment.
func NewAwaiter(lookup LookupFunc, opts ...AwaiterOption) (*Awaiter, error) {
	if lookup == nil {
		return nil, errors.New("payments: lookup function is required")
	}
	a := &Awaiter{
		lookup:   lookup,
		timeout:  45 * time.Second,
		interval: 2 * time.Second,
		waiters:  make(map[string][]chan PaymentDetails),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// Await blocks until the payment identified by req reaches a terminal state, the await window
// elapses (ErrAwaitTimeout) or ctx is done.
func (a *Awaiter) Await(ctx context.Context, pctx PaymentContext, req LookupRequest) (Outcome, error) {
	notify := a.register(req.Reference)
	defer a.unregister(req.Reference, notify)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		details, err := a.lookup(ctx, pctx, req)
		if err != nil && ctx.Err() == nil {
			return Outcome{}, err
		}
		if err == nil {
			if outcome, ok := OutcomeFromDetails(details); ok {
				return outcome, nil
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Outcome{}, ErrAwaitTimeout
			}
			return Outcome{}, ctx.Err()
		case details := <-notify:
			if outcome, ok := OutcomeFromDetails(details); ok {
				return outcome, nil
			}
		case <-ticker.C:
		}
	}
}

// Notify hands a webhook-reported state to a caller currently blocked on that reference. It
// reports true only when a waiter took the value; a waiter that is mid-lookup or already leaving
// does not count, and the caller must then settle the payment itself.
func (a *Awaiter) Notify(details PaymentDetails) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	delivered := false
	for _, ch := range a.waiters[details.Reference] {
		select {
		case ch <- details:
			delivered = true
		default:
		}
	}
	return delivered
}

func (a *Awaiter) register(reference string) chan PaymentDetails {
	ch := make(chan PaymentDetails)
	a.mu.Lock()
	a.waiters[reference] = append(a.waiters[reference], ch)
	a.mu.Unlock()
	return ch
}

func (a *Awaiter) unregister(reference string, ch chan PaymentDetails) {
	a.mu.Lock()
	defer a.mu.Unlock()
	list := a.waiters[reference]
	for i, candidate := range list {
		if candidate == ch {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(a.waiters, reference)
		return
	}
	a.waiters[reference] = list
}
