package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"auction-service/internal/auctionerrors"
	"auction-service/internal/broker"
	"auction-service/internal/models"
	"auction-service/internal/service"
)

// ReconcileWorker consumes normalized payment events from Kafka and applies
// them to orders
type ReconcileWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	reconciler   *service.Reconciler
}

// NewReconcileWorker creates a new reconcile worker
func NewReconcileWorker(consumer *broker.Consumer, reconciler *service.Reconciler) *ReconcileWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnPaymentCallback(func(ctx context.Context, event *models.PaymentCallbackEvent) error {
		err := reconciler.Reconcile(ctx, &event.Payment)
		if isTerminalReconcileError(err) {
			// Logged and flagged inside the reconciler; retrying cannot
			// resolve these, so commit the message.
			return nil
		}
		return err
	})

	return &ReconcileWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		reconciler:   reconciler,
	}
}

// isTerminalReconcileError reports whether an event must not be redelivered
func isTerminalReconcileError(err error) bool {
	return errors.Is(err, auctionerrors.ErrUnknownOrder) ||
		errors.Is(err, auctionerrors.ErrAmountMismatch) ||
		errors.Is(err, auctionerrors.ErrLateSettlement)
}

// Start starts the worker
func (w *ReconcileWorker) Start(ctx context.Context) error {
	log.Println("Starting reconcile worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ReconcileWorker) Stop() error {
	log.Println("Stopping reconcile worker...")
	return w.consumer.Close()
}

// SessionWorker drives time-based session transitions. Ticks are safe to
// overlap across replicas: every transition is guarded by the session
// version counter, so concurrent ticks for one session resolve to a single
// state change.
type SessionWorker struct {
	engine   *service.SessionEngine
	interval time.Duration
}

// NewSessionWorker creates a new session scheduler worker
func NewSessionWorker(engine *service.SessionEngine, interval time.Duration) *SessionWorker {
	return &SessionWorker{engine: engine, interval: interval}
}

// Start runs the scheduler loop until the context is cancelled
func (w *SessionWorker) Start(ctx context.Context) error {
	log.Printf("Starting session scheduler, interval=%s", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Session scheduler stopping...")
			return ctx.Err()
		case now := <-ticker.C:
			if err := w.engine.ActivateDue(ctx, now); err != nil {
				log.Printf("Scheduler activation pass failed: %v", err)
			}
			if err := w.engine.CloseDue(ctx, now); err != nil {
				log.Printf("Scheduler expiry pass failed: %v", err)
			}
		}
	}
}
