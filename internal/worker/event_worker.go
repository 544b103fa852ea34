// Package worker consumes change events and keeps per-user spending totals.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tracker/internal/amqp"
	"tracker/internal/core"
	"tracker/internal/log"
	"tracker/internal/store"
)

type entry struct {
	userID     uuid.UUID
	categoryID uuid.UUID
	sum        decimal.Decimal
}

// EventWorker applies events to a tally of live records. Applying the same
// event twice has no further effect, so redelivered messages are harmless.
// A record once removed, by its own delete or a cascade, is never counted
// again, even when its create arrives late.
type EventWorker struct {
	logger *log.Logger

	mu        sync.Mutex
	records   map[uuid.UUID]entry
	removed   map[uuid.UUID]struct{}
	processed map[amqp.EventType]int64
}

func NewEventWorker(logger *log.Logger) *EventWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &EventWorker{
		logger:    logger.WithComponent(log.ComponentWorker),
		records:   make(map[uuid.UUID]entry),
		removed:   make(map[uuid.UUID]struct{}),
		processed: make(map[amqp.EventType]int64),
	}
}

// Seed loads every stored record so totals are correct before the first
// event arrives.
func (w *EventWorker) Seed(ctx context.Context, records store.RecordRepository) error {
	all, err := records.ListRecords(ctx, core.RecordFilter{})
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}

	w.mu.Lock()
	for _, r := range all {
		w.records[r.ID] = entry{userID: r.UserID, categoryID: r.CategoryID, sum: r.Sum.Amount}
	}
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "Seeded totals from storage", "records", len(all))
	return nil
}

// HandleEvent applies e. Malformed events are logged and acknowledged; they
// would fail the same way on every redelivery.
func (w *EventWorker) HandleEvent(ctx context.Context, e amqp.Event) error {
	logger := w.logger.With(log.FieldEventType, string(e.Type), "resource_id", e.ResourceID.String())

	w.mu.Lock()
	defer w.mu.Unlock()

	switch e.Type {
	case amqp.EventRecordCreated:
		if e.UserID == nil || e.CategoryID == nil {
			logger.WarnContext(ctx, "Record event without references, skipping")
			return nil
		}
		sum, err := decimal.NewFromString(e.Sum)
		if err != nil {
			logger.WarnContext(ctx, "Record event with invalid sum, skipping", "sum", e.Sum)
			return nil
		}
		_, seen := w.records[e.ResourceID]
		_, gone := w.removed[e.ResourceID]
		if !seen && !gone {
			w.records[e.ResourceID] = entry{userID: *e.UserID, categoryID: *e.CategoryID, sum: sum}
		}
		logger.InfoContext(ctx, "Record created",
			log.FieldUserID, e.UserID.String(),
			log.FieldSum, sum.String(),
			"user_total", w.userTotalLocked(*e.UserID).String())

	case amqp.EventRecordDeleted:
		delete(w.records, e.ResourceID)
		w.removed[e.ResourceID] = struct{}{}
		logger.InfoContext(ctx, "Record deleted")

	case amqp.EventUserDeleted:
		removed := w.removeWhereLocked(func(en entry) bool { return en.userID == e.ResourceID })
		logger.InfoContext(ctx, "User deleted", "records_removed", removed)

	case amqp.EventCategoryDeleted:
		removed := w.removeWhereLocked(func(en entry) bool { return en.categoryID == e.ResourceID })
		logger.InfoContext(ctx, "Category deleted", "records_removed", removed)

	case amqp.EventUserCreated, amqp.EventCategoryCreated:
		logger.DebugContext(ctx, "Resource created")

	default:
		logger.WarnContext(ctx, "Unknown event type, skipping")
		return nil
	}

	w.processed[e.Type]++
	return nil
}

func (w *EventWorker) removeWhereLocked(match func(entry) bool) int {
	n := 0
	for id, en := range w.records {
		if match(en) {
			delete(w.records, id)
			w.removed[id] = struct{}{}
			n++
		}
	}
	return n
}

func (w *EventWorker) userTotalLocked(userID uuid.UUID) decimal.Decimal {
	total := decimal.Zero
	for _, en := range w.records {
		if en.userID == userID {
			total = total.Add(en.sum)
		}
	}
	return total
}

// UserTotal is the sum of every live record owned by userID.
func (w *EventWorker) UserTotal(userID uuid.UUID) decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.userTotalLocked(userID)
}

// Processed reports how many events of type t have been applied.
func (w *EventWorker) Processed(t amqp.EventType) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.processed[t]
}
