package sales

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/salesdesk/salesdesk/internal/platform/worker"
	"github.com/salesdesk/salesdesk/internal/shared"
	"github.com/salesdesk/salesdesk/internal/users"
	"github.com/salesdesk/salesdesk/jobs"
)

type fakeDirectory map[int64]users.Contact

func (d fakeDirectory) Contact(_ context.Context, id int64) (users.Contact, error) {
	c, ok := d[id]
	if !ok {
		return users.Contact{}, shared.ErrNotFound
	}
	return c, nil
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []string
	sent  []jobs.SaleNoticePayload
	done  chan struct{}
}

func (q *fakeQueue) EnqueueSaleNotice(_ context.Context, taskType string, p jobs.SaleNoticePayload) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	q.tasks = append(q.tasks, taskType)
	q.sent = append(q.sent, p)
	q.mu.Unlock()
	q.done <- struct{}{}
	return &asynq.TaskInfo{}, nil
}

type fakeOutcomes struct {
	mu   sync.Mutex
	errs []error
	done chan struct{}
}

func (o *fakeOutcomes) RecordNotification(_ string, err error) {
	o.mu.Lock()
	o.errs = append(o.errs, err)
	o.mu.Unlock()
	o.done <- struct{}{}
}

func newPool(t *testing.T) *worker.Pool {
	t.Helper()
	pool, err := worker.New(context.Background(), worker.Config{Size: 2, TaskTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close(time.Second) })
	return pool
}

func waitFor(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestQueueNotifierEnqueuesWithContact(t *testing.T) {
	queue := &fakeQueue{done: make(chan struct{}, 1)}
	outcomes := &fakeOutcomes{done: make(chan struct{}, 1)}
	dir := fakeDirectory{3: {ID: 3, Name: "Eva Rojas", Email: "eva@acme.cl"}}
	n := NewQueueNotifier(newPool(t), dir, queue, outcomes, nil)

	err := n.SaleActivated(context.Background(), SaleEvent{SaleID: 42, ClientName: "Ana Pérez", RecipientID: 3, ActorID: 5})
	require.NoError(t, err)
	waitFor(t, queue.done)
	waitFor(t, outcomes.done)

	require.Equal(t, []string{jobs.TaskSaleActivated}, queue.tasks)
	require.Equal(t, "eva@acme.cl", queue.sent[0].RecipientEmail)
	require.Equal(t, "Eva Rojas", queue.sent[0].RecipientName)
	require.Equal(t, int64(42), queue.sent[0].SaleID)
	require.Equal(t, []error{nil}, outcomes.errs)
}

func TestQueueNotifierRecordsLookupFailure(t *testing.T) {
	queue := &fakeQueue{done: make(chan struct{}, 1)}
	outcomes := &fakeOutcomes{done: make(chan struct{}, 1)}
	n := NewQueueNotifier(newPool(t), fakeDirectory{}, queue, outcomes, nil)

	require.NoError(t, n.SaleCreated(context.Background(), SaleEvent{SaleID: 1, RecipientID: 9}))
	waitFor(t, outcomes.done)
	require.Len(t, outcomes.errs, 1)
	require.True(t, errors.Is(outcomes.errs[0], shared.ErrNotFound))
	require.Empty(t, queue.tasks)
}

func TestQueueNotifierRejectsMissingRecipientAndClosedPool(t *testing.T) {
	outcomes := &fakeOutcomes{done: make(chan struct{}, 1)}
	pool := newPool(t)
	n := NewQueueNotifier(pool, fakeDirectory{}, &fakeQueue{done: make(chan struct{}, 1)}, outcomes, nil)

	require.Error(t, n.SaleCreated(context.Background(), SaleEvent{SaleID: 1}))

	pool.Close(time.Second)
	err := n.SaleCreated(context.Background(), SaleEvent{SaleID: 1, RecipientID: 3})
	require.ErrorIs(t, err, worker.ErrPoolClosed)
	waitFor(t, outcomes.done)
}
