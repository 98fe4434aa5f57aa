package queue

import (
	"context"

	"github.com/alitto/pond/v2"
)

// RequestQueueManager runs request handlers on a bounded worker pool so a
// burst of traffic queues up instead of opening unbounded store connections.
type RequestQueueManager struct {
	pool       pond.Pool
	MaxWorkers int
}

func NewRequestQueueManager(queueSize int, maxWorkers int) *RequestQueueManager {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	opts := []pond.Option{pond.WithContext(context.Background())}
	if queueSize > 0 {
		opts = append(opts, pond.WithQueueSize(queueSize))
	}
	return &RequestQueueManager{
		pool:       pond.NewPool(maxWorkers, opts...),
		MaxWorkers: maxWorkers,
	}
}

// Run executes fn on a worker and waits for it. It blocks while the queue
// is full and fails once the manager has been shut down.
func (rqm *RequestQueueManager) Run(fn func() error) error {
	return rqm.pool.SubmitErr(fn).Wait()
}

// WaitingTasks reports how many jobs are queued for a free worker.
func (rqm *RequestQueueManager) WaitingTasks() uint64 {
	return rqm.pool.WaitingTasks()
}

func (rqm *RequestQueueManager) RunningWorkers() int64 {
	return rqm.pool.RunningWorkers()
}

// Shutdown stops accepting jobs and waits for the queued ones to finish.
func (rqm *RequestQueueManager) Shutdown() {
	rqm.pool.StopAndWait()
}
