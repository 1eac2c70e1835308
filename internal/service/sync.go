package service

import (
	"context"
	"fmt"
	"time"

	"bakery-inventory/internal/models"
	"bakery-inventory/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	syncLockAttempts = 20
	syncLockBackoff  = 50 * time.Millisecond
)

// StatusReader is the slice of the ingredient store the synchronizer needs
type StatusReader interface {
	GetIngredientsByIDs(ctx context.Context, accountID uuid.UUID, ids []uuid.UUID) ([]models.Ingredient, error)
	CompareAndSetStatus(ctx context.Context, snapshot *models.Ingredient, status models.StockStatus) (bool, error)
}

// SyncResult reports what a synchronization pass did
type SyncResult struct {
	Checked int
	Updated int
	Stale   int
	Failed  int
}

// StatusSynchronizer recomputes and persists cached stock statuses
type StatusSynchronizer struct {
	ingredients StatusReader
	aggregator  *RequirementAggregator
	locker      Locker
	publisher   EventPublisher
	opts        Options
	logger      *zap.Logger
}

// NewStatusSynchronizer creates a new status synchronizer. locker and
// publisher may be nil.
func NewStatusSynchronizer(
	ingredients StatusReader,
	aggregator *RequirementAggregator,
	locker Locker,
	publisher EventPublisher,
	opts Options,
) *StatusSynchronizer {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &StatusSynchronizer{
		ingredients: ingredients,
		aggregator:  aggregator,
		locker:      locker,
		publisher:   publisher,
		opts:        opts.withDefaults(),
		logger:      util.Named("sync"),
	}
}

// SyncStatuses re-resolves the status of the given ingredients against the
// demand window and writes only those whose status changed. Individual write
// failures are logged and do not fail the call.
func (s *StatusSynchronizer) SyncStatuses(ctx context.Context, accountID uuid.UUID, ingredientIDs []uuid.UUID) error {
	_, err := s.Sync(ctx, accountID, ingredientIDs)
	return err
}

// Sync is SyncStatuses with a report of the writes performed
func (s *StatusSynchronizer) Sync(ctx context.Context, accountID uuid.UUID, ingredientIDs []uuid.UUID) (SyncResult, error) {
	var result SyncResult
	ids := uniqueIDs(ingredientIDs)
	if len(ids) == 0 {
		return result, nil
	}

	ctx, span := util.StartSpan(ctx, "StatusSynchronizer.Sync",
		attribute.String("account_id", accountID.String()),
		attribute.Int("ingredients", len(ids)))
	defer span.End()

	start := time.Now()
	defer func() {
		util.StatusSyncLatency.Observe(time.Since(start).Seconds())
	}()

	unlock := s.lock(ctx, accountID)
	defer unlock()

	from, to := s.opts.DemandWindow()
	reqs, err := s.aggregator.ComputeRequirements(ctx, accountID, from, to)
	if err != nil {
		util.RecordError(span, err)
		return result, fmt.Errorf("failed to compute requirements: %w", err)
	}
	required := requirementIndex(reqs)

	ingredients, err := s.ingredients.GetIngredientsByIDs(ctx, accountID, ids)
	if err != nil {
		util.RecordError(span, err)
		return result, fmt.Errorf("failed to read ingredients: %w", err)
	}

	for i := range ingredients {
		ing := &ingredients[i]
		result.Checked++

		demand := decimal.Zero
		if req, ok := required[ing.ID]; ok {
			demand = req.Required
		}

		newStatus := ResolveStatus(ing.StockQuantity, ing.StockLow, demand)
		if newStatus == ing.StockStatus {
			continue
		}

		changed, err := s.ingredients.CompareAndSetStatus(ctx, ing, newStatus)
		if err != nil {
			result.Failed++
			util.StatusWriteFailuresTotal.Inc()
			s.logger.Error("Failed to persist stock status",
				util.AccountField(accountID),
				zap.String("ingredient_id", ing.ID.String()),
				zap.String("status", string(newStatus)),
				zap.Error(err))
			continue
		}
		if !changed {
			result.Stale++
			util.StatusWriteStaleTotal.Inc()
			s.logger.Warn("Ingredient changed during status sync, skipping write",
				util.AccountField(accountID),
				zap.String("ingredient_id", ing.ID.String()))
			continue
		}

		result.Updated++
		util.StatusWritesTotal.WithLabelValues(string(newStatus)).Inc()
		s.logger.Info("Stock status updated",
			util.AccountField(accountID),
			zap.String("ingredient", ing.Name),
			zap.String("from", string(ing.StockStatus)),
			zap.String("to", string(newStatus)))

		event := &models.StockStatusChangedEvent{
			BaseEvent:    models.NewBaseEvent(models.EventTypeStockStatusChanged),
			AccountID:    accountID,
			IngredientID: ing.ID,
			Name:         ing.Name,
			From:         ing.StockStatus,
			To:           newStatus,
			Quantity:     ing.StockQuantity,
			Required:     demand,
		}
		if err := s.publisher.PublishStockStatusChanged(ctx, event); err != nil {
			s.logger.Error("Failed to publish StockStatusChanged event", zap.Error(err))
		}
	}

	return result, nil
}

// lock takes the per-account sync lock when a locker is configured. If the
// lock cannot be taken in time the sync proceeds unlocked; status writes are
// compare-and-swap so a concurrent run cannot overwrite newer state.
func (s *StatusSynchronizer) lock(ctx context.Context, accountID uuid.UUID) func() {
	if s.locker == nil {
		return func() {}
	}

	key := "status-sync:" + accountID.String()
	for attempt := 0; attempt < syncLockAttempts; attempt++ {
		token, ok, err := s.locker.AcquireLock(ctx, key, s.opts.SyncLockTTL)
		if err != nil {
			s.logger.Warn("Sync lock unavailable", util.AccountField(accountID), zap.Error(err))
			return func() {}
		}
		if ok {
			return func() {
				if err := s.locker.ReleaseLock(context.Background(), key, token); err != nil {
					s.logger.Warn("Failed to release sync lock", util.AccountField(accountID), zap.Error(err))
				}
			}
		}

		select {
		case <-ctx.Done():
			return func() {}
		case <-time.After(syncLockBackoff):
		}
	}

	s.logger.Warn("Sync lock busy, proceeding without it", util.AccountField(accountID))
	return func() {}
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
