package service

import (
	"context"
	"fmt"
	"sync/atomic"

	"bakery-inventory/internal/models"
	"bakery-inventory/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ReconcileStore is what full reconciliation needs from the store
type ReconcileStore interface {
	EventLog
	ListIngredients(ctx context.Context, accountID uuid.UUID) ([]models.Ingredient, error)
	ListAccountIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Reconciler resyncs whole accounts. The demand window slides every day, so
// statuses can go stale without any mutation; this catches them up.
type Reconciler struct {
	repo         ReconcileStore
	synchronizer *StatusSynchronizer
	publisher    EventPublisher
	concurrency  int
	logger       *zap.Logger
}

// NewReconciler creates a new reconciler
func NewReconciler(repo ReconcileStore, synchronizer *StatusSynchronizer, publisher EventPublisher, concurrency int) *Reconciler {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Reconciler{
		repo:         repo,
		synchronizer: synchronizer,
		publisher:    publisher,
		concurrency:  concurrency,
		logger:       util.Named("reconcile"),
	}
}

// RequestReconcile publishes a reconcile request for the worker to pick up
func (r *Reconciler) RequestReconcile(ctx context.Context, accountID uuid.UUID) (string, error) {
	event := &models.ReconcileRequestedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeReconcileRequested),
		AccountID: accountID,
	}
	if err := r.publisher.PublishReconcileRequested(ctx, event); err != nil {
		return "", fmt.Errorf("failed to publish reconcile request: %w", err)
	}
	return event.EventID, nil
}

// HandleReconcileRequested resyncs the requesting account once per event
func (r *Reconciler) HandleReconcileRequested(ctx context.Context, event *models.ReconcileRequestedEvent) error {
	ctx, span := util.StartSpan(ctx, "Reconciler.HandleReconcileRequested")
	defer span.End()

	processed, err := r.repo.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		r.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	if _, err := r.ReconcileAccount(ctx, event.AccountID); err != nil {
		return err
	}
	util.ReconcileRunsTotal.WithLabelValues("request").Inc()

	if err := r.repo.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		r.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}

// ReconcileAccount resyncs every ingredient of one account
func (r *Reconciler) ReconcileAccount(ctx context.Context, accountID uuid.UUID) (SyncResult, error) {
	ingredients, err := r.repo.ListIngredients(ctx, accountID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("failed to list ingredients: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(ingredients))
	for _, ing := range ingredients {
		ids = append(ids, ing.ID)
	}

	result, err := r.synchronizer.Sync(ctx, accountID, ids)
	if err != nil {
		return result, err
	}
	r.logger.Info("Account reconciled",
		util.AccountField(accountID),
		zap.Int("checked", result.Checked),
		zap.Int("updated", result.Updated),
		zap.Int("stale", result.Stale),
		zap.Int("failed", result.Failed))
	return result, nil
}

// ReconcileAll resyncs every account, a bounded number at a time. Failures
// are logged per account; the count of failed accounts is returned.
func (r *Reconciler) ReconcileAll(ctx context.Context) (int, error) {
	accounts, err := r.repo.ListAccountIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list accounts: %w", err)
	}
	util.ReconcileRunsTotal.WithLabelValues("schedule").Inc()

	var (
		g      errgroup.Group
		failed atomic.Int32
	)
	g.SetLimit(r.concurrency)

	for _, accountID := range accounts {
		if ctx.Err() != nil {
			break
		}
		accountID := accountID
		g.Go(func() error {
			if _, err := r.ReconcileAccount(ctx, accountID); err != nil {
				r.logger.Error("Account reconciliation failed", util.AccountField(accountID), zap.Error(err))
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(failed.Load()), ctx.Err()
}
