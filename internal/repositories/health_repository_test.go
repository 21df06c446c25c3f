package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/optimistics/storefront/internal/domain"
)

func TestDependencyHealthRepositoryCollectSuccess(t *testing.T) {
	now := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Check: func(context.Context) error { return nil }},
		{Name: "pubsub", Check: func(context.Context) error { return nil }},
	}, WithDependencyClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected status ok, got %s", report.Status)
	}
	if len(report.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(report.Checks))
	}
	if report.Checks["firestore"].CheckedAt != now {
		t.Fatalf("expected injected clock, got %s", report.Checks["firestore"].CheckedAt)
	}
}

func TestDependencyHealthRepositoryDegradedAndTimeout(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "pubsub", Check: func(context.Context) error { return errors.New("topic missing") }},
		{Name: "firestore", Timeout: 5 * time.Millisecond, Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected error status, got %s", report.Status)
	}
	if got := report.Checks["pubsub"]; got.Status != domain.HealthStatusDegraded || got.Detail != "topic missing" {
		t.Fatalf("unexpected pubsub check %#v", got)
	}
	if got := report.Checks["firestore"]; got.Detail != "timeout" {
		t.Fatalf("expected timeout detail, got %#v", got)
	}
}

func TestNewDependencyHealthRepositoryValidates(t *testing.T) {
	if _, err := NewDependencyHealthRepository(nil); err == nil {
		t.Fatalf("expected error for empty checks")
	}
	if _, err := NewDependencyHealthRepository([]DependencyCheck{{Name: "x"}}); err == nil {
		t.Fatalf("expected error for missing check func")
	}
}
