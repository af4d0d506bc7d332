package scheduler

import (
	"context"

	"github.com/sirupsen/logrus"

	"rostersync/internal/model"
)

// WorkItem is one queued processing request for a district.
type WorkItem struct {
	DistrictID int
	Action     model.ProcessingAction
}

// Runner executes one work item. Satisfied by sync.Processor.
type Runner interface {
	Process(ctx context.Context, districtID int, action model.ProcessingAction) error
}

// Queue is a bounded FIFO of district work. The scheduler produces, consumer
// goroutines drain; a full queue pushes back on the producer rather than
// buffering without bound.
type Queue struct {
	items  chan WorkItem
	logger *logrus.Entry
}

// NewQueue creates a queue holding up to size items.
func NewQueue(size int, logger *logrus.Entry) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{
		items:  make(chan WorkItem, size),
		logger: logger.WithField("component", "work-queue"),
	}
}

// Enqueue adds an item without blocking. Returns false when the queue is
// full; the producer retries on its next tick.
func (q *Queue) Enqueue(item WorkItem) bool {
	select {
	case q.items <- item:
		return true
	default:
		return false
	}
}

// Len reports the number of queued items.
func (q *Queue) Len() int {
	return len(q.items)
}

// Run drains the queue until the context is cancelled. Processing errors are
// logged, not propagated: they are already recorded on the district's history
// and must not take the consumer down.
func (q *Queue) Run(ctx context.Context, runner Runner) {
	for {
		select {
		case <-ctx.Done():
			q.logger.Info("Stopping work queue consumer...")
			return
		case item := <-q.items:
			if err := runner.Process(ctx, item.DistrictID, item.Action); err != nil {
				q.logger.Errorf("District %d %s failed: %v", item.DistrictID, item.Action, err)
			}
		}
	}
}
