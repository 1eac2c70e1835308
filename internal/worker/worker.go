package worker

import (
	"context"
	"time"

	"bakery-inventory/internal/broker"
	"bakery-inventory/internal/service"
	"bakery-inventory/internal/util"

	"go.uber.org/zap"
)

// ReconcileWorker resyncs stock statuses in the background: on request via
// the inventory topic, and for every account on a fixed interval so that
// statuses follow the demand window as it slides day by day.
type ReconcileWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	reconciler   *service.Reconciler
	interval     time.Duration
	logger       *zap.Logger
}

// NewReconcileWorker creates a new reconcile worker. consumer may be nil to
// run the schedule only; interval <= 0 disables the schedule.
func NewReconcileWorker(
	consumer *broker.Consumer,
	reconciler *service.Reconciler,
	interval time.Duration,
) *ReconcileWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnReconcileRequested(reconciler.HandleReconcileRequested)

	return &ReconcileWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		reconciler:   reconciler,
		interval:     interval,
		logger:       util.Named("worker"),
	}
}

// Start blocks until ctx is done
func (w *ReconcileWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting reconcile worker", zap.Duration("interval", w.interval))

	if w.interval > 0 {
		go w.runSchedule(ctx)
	}

	if w.consumer == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ReconcileWorker) Stop() error {
	w.logger.Info("Stopping reconcile worker")
	if w.consumer == nil {
		return nil
	}
	return w.consumer.Close()
}

func (w *ReconcileWorker) runSchedule(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.reconcileAll(ctx)
		}
	}
}

func (w *ReconcileWorker) reconcileAll(ctx context.Context) {
	start := time.Now()
	failed, err := w.reconciler.ReconcileAll(ctx)
	if err != nil {
		w.logger.Error("Scheduled reconciliation failed", zap.Error(err))
		return
	}
	w.logger.Info("Scheduled reconciliation finished",
		zap.Int("failed_accounts", failed),
		zap.Duration("took", time.Since(start)))
}
