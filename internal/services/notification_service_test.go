package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/optimistics/storefront/internal/domain"
)

type recordingEmailPublisher struct {
	mu   sync.Mutex
	jobs []domain.EmailJob
	err  error
}

func (p *recordingEmailPublisher) PublishEmail(_ context.Context, job domain.EmailJob) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, job)
	return "msg", p.err
}

func newTestNotificationService(t *testing.T, pub *recordingEmailPublisher, events *[]string) NotificationService {
	t.Helper()
	svc, err := NewNotificationService(NotificationServiceDeps{
		Publisher: pub,
		Go:        func(task func()) { task() },
		Clock:     func() time.Time { return checkoutNow },
		Logger: func(_ context.Context, event string, _ map[string]any) {
			if events != nil {
				*events = append(*events, event)
			}
		},
	})
	require.NoError(t, err)
	return svc
}

func TestFormatNaira(t *testing.T) {
	assert.Equal(t, "₦40,000", FormatNaira(40000))
	assert.Equal(t, "₦0", FormatNaira(0))
	assert.Equal(t, "-₦1,250", FormatNaira(-1250))
}

func TestNotificationOrderConfirmation(t *testing.T) {
	pub := &recordingEmailPublisher{}
	svc := newTestNotificationService(t, pub, nil)

	svc.OrderConfirmation(context.Background(), sampleOrder("ORD-1", domain.OrderStatusProcessing))

	require.Len(t, pub.jobs, 1)
	job := pub.jobs[0]
	assert.Equal(t, domain.EmailOrderConfirmation, job.Kind)
	assert.Equal(t, "ada@example.com", job.To)
	assert.Equal(t, "ORD-1", job.OrderID)
	assert.Equal(t, "₦12,500", job.Variables["total"])
	assert.Equal(t, "NGN", job.Variables["currency"])
	assert.Equal(t, "2", job.Variables["itemCount"])
	assert.Equal(t, checkoutNow, job.QueuedAt)
}

func TestNotificationStatusChangeOnlyForShippedAndDelivered(t *testing.T) {
	pub := &recordingEmailPublisher{}
	svc := newTestNotificationService(t, pub, nil)
	ctx := context.Background()

	svc.OrderStatusChanged(ctx, sampleOrder("ORD-1", domain.OrderStatusCancelled))
	svc.OrderStatusChanged(ctx, sampleOrder("ORD-1", domain.OrderStatusShipped))
	svc.OrderStatusChanged(ctx, sampleOrder("ORD-1", domain.OrderStatusDelivered))

	require.Len(t, pub.jobs, 2)
	assert.Equal(t, domain.EmailOrderShipped, pub.jobs[0].Kind)
	assert.Equal(t, domain.EmailOrderDelivered, pub.jobs[1].Kind)
}

func TestNotificationFailuresAreSwallowed(t *testing.T) {
	pub := &recordingEmailPublisher{err: errors.New("pubsub down")}
	var events []string
	svc := newTestNotificationService(t, pub, &events)

	svc.PaymentReceipt(context.Background(), sampleOrder("ORD-1", domain.OrderStatusProcessing))
	svc.Welcome(context.Background(), UserProfile{UID: "u1"})

	assert.Equal(t, []string{"notification.publish_failed", "notification.skipped"}, events)
}
