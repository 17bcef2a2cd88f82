package sales

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/salesdesk/salesdesk/internal/platform/worker"
	"github.com/salesdesk/salesdesk/internal/users"
	"github.com/salesdesk/salesdesk/jobs"
)

// Directory resolves notification recipients.
type Directory interface {
	Contact(ctx context.Context, id int64) (users.Contact, error)
}

// Enqueuer submits sale notice tasks.
type Enqueuer interface {
	EnqueueSaleNotice(ctx context.Context, taskType string, payload jobs.SaleNoticePayload) (*asynq.TaskInfo, error)
}

// NotificationRecorder counts notification outcomes.
type NotificationRecorder interface {
	RecordNotification(event string, err error)
}

// QueueNotifier hands sale events to the job queue from the worker pool so
// the request path never waits on Redis or the user store.
type QueueNotifier struct {
	pool      *worker.Pool
	directory Directory
	queue     Enqueuer
	metrics   NotificationRecorder
	logger    *slog.Logger
}

// NewQueueNotifier builds a notifier. metrics may be nil.
func NewQueueNotifier(pool *worker.Pool, directory Directory, queue Enqueuer, metrics NotificationRecorder, logger *slog.Logger) *QueueNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueNotifier{pool: pool, directory: directory, queue: queue, metrics: metrics, logger: logger}
}

// SaleCreated notifies the creator that the sale was entered.
func (n *QueueNotifier) SaleCreated(_ context.Context, ev SaleEvent) error {
	return n.dispatch(jobs.TaskSaleCreated, ev)
}

// SaleActivated notifies the original creator that the sale went live.
func (n *QueueNotifier) SaleActivated(_ context.Context, ev SaleEvent) error {
	return n.dispatch(jobs.TaskSaleActivated, ev)
}

// dispatch returns only submission errors. Delivery errors are logged from
// the pool task.
func (n *QueueNotifier) dispatch(taskType string, ev SaleEvent) error {
	if ev.RecipientID <= 0 {
		return fmt.Errorf("sales: %s notice for sale %d without recipient", taskType, ev.SaleID)
	}
	err := n.pool.Go(func(ctx context.Context) {
		err := n.enqueue(ctx, taskType, ev)
		n.record(taskType, err)
		if err != nil {
			n.logger.Warn("sale notice not enqueued",
				slog.String("task", taskType),
				slog.Int64("sale_id", ev.SaleID),
				slog.Any("error", err))
		}
	})
	if err != nil {
		n.record(taskType, err)
		return fmt.Errorf("sales: submit %s notice: %w", taskType, err)
	}
	return nil
}

func (n *QueueNotifier) enqueue(ctx context.Context, taskType string, ev SaleEvent) error {
	contact, err := n.directory.Contact(ctx, ev.RecipientID)
	if err != nil {
		return fmt.Errorf("recipient %d: %w", ev.RecipientID, err)
	}
	_, err = n.queue.EnqueueSaleNotice(ctx, taskType, jobs.SaleNoticePayload{
		SaleID:         ev.SaleID,
		ClientName:     ev.ClientName,
		ClientRut:      ev.ClientRut,
		StatusID:       ev.StatusID,
		RecipientID:    contact.ID,
		RecipientName:  contact.Name,
		RecipientEmail: contact.Email,
		ActorID:        ev.ActorID,
	})
	return err
}

func (n *QueueNotifier) record(taskType string, err error) {
	if n.metrics != nil {
		n.metrics.RecordNotification(taskType, err)
	}
}
