package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/optimistics/storefront/internal/domain"
	"github.com/optimistics/storefront/internal/platform/config"
)

// NewClient opens a Pub/Sub client for the configured project, honouring the emulator host.
func NewClient(ctx context.Context, cfg config.PubSubConfig, opts ...option.ClientOption) (*pubsub.Client, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, errors.New("pubsub: project id is required")
	}
	if host := strings.TrimSpace(cfg.EmulatorHost); host != "" {
		if err := os.Setenv("PUBSUB_EMULATOR_HOST", host); err != nil {
			return nil, fmt.Errorf("pubsub: set emulator host: %w", err)
		}
		opts = append(opts,
			option.WithEndpoint(host),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub: new client: %w", err)
	}
	return client, nil
}

// Publisher enqueues transactional email jobs and reconciliation alerts on Pub/Sub topics.
type Publisher struct {
	emails          *pubsub.Topic
	reconciliations *pubsub.Topic
	marshal         func(any) ([]byte, error)
}

// NewPublisher constructs a Pub/Sub backed publisher. Either topic may be nil, in which case the
// matching publish call reports an error.
func NewPublisher(emails, reconciliations *pubsub.Topic) (*Publisher, error) {
	if emails == nil && reconciliations == nil {
		return nil, errors.New("pubsub publisher: at least one topic is required")
	}
	return &Publisher{
		emails:          emails,
		reconciliations: reconciliations,
		marshal:         json.Marshal,
	}, nil
}

// PublishEmail queues an email job for the mail worker.
func (p *Publisher) PublishEmail(ctx context.Context, job domain.EmailJob) (string, error) {
	if p == nil || p.emails == nil {
		return "", errors.New("pubsub publisher: email topic not configured")
	}
	if strings.TrimSpace(job.To) == "" {
		return "", errors.New("pubsub publisher: email recipient is required")
	}

	attrs := make(map[string]string)
	setAttr(attrs, "kind", string(job.Kind))
	setAttr(attrs, "orderId", job.OrderID)
	return p.publish(ctx, p.emails, job, attrs, "email job")
}

// PublishReconciliation raises a reconciliation alert for operators.
func (p *Publisher) PublishReconciliation(ctx context.Context, event domain.ReconciliationEvent) (string, error) {
	if p == nil || p.reconciliations == nil {
		return "", errors.New("pubsub publisher: reconciliation topic not configured")
	}

	attrs := make(map[string]string)
	setAttr(attrs, "reconciliationId", event.ReconciliationID)
	setAttr(attrs, "kind", string(event.Kind))
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "paymentReference", event.PaymentReference)
	if event.Amount > 0 {
		attrs["amount"] = strconv.FormatInt(event.Amount, 10)
	}
	return p.publish(ctx, p.reconciliations, event, attrs, "reconciliation event")
}

func (p *Publisher) publish(ctx context.Context, topic *pubsub.Topic, payload any, attrs map[string]string, label string) (string, error) {
	data, err := p.marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", label, err)
	}

	result := topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", label, err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
