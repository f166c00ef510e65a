package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/clinicflow/scheduling-ai/pkg/logging"
)

// KindExport asks a worker to write the booking to the export target.
const KindExport = "export_booking"

// Job is the unit of queued follow-up work for a booking.
type Job struct {
	Kind      string `json:"kind"`
	BookingID string `json:"booking_id"`
	SessionID string `json:"session_id,omitempty"`
}

// Handler processes one job. Returning an error leaves the message on the
// queue for redelivery.
type Handler func(ctx context.Context, job Job) error

// Dispatcher pulls jobs off the queue and routes them to registered
// handlers with a pool of workers.
type Dispatcher struct {
	queue    Queue
	logger   *logging.Logger
	workers  int
	handlers map[string]Handler

	mu     sync.Mutex
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewDispatcher creates a dispatcher over the given queue.
func NewDispatcher(queue Queue, workers int, logger *logging.Logger) *Dispatcher {
	if queue == nil {
		panic("jobs: queue required")
	}
	if workers <= 0 {
		workers = 2
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		queue:    queue,
		logger:   logger,
		workers:  workers,
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a job kind. Must be called before Start.
func (d *Dispatcher) Register(kind string, h Handler) {
	d.handlers[kind] = h
}

// Enqueue serializes and sends a job.
func (d *Dispatcher) Enqueue(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("jobs: marshal job: %w", err)
	}
	if err := d.queue.Send(ctx, string(body)); err != nil {
		return fmt.Errorf("jobs: enqueue %s: %w", job.Kind, err)
	}
	d.logger.Debug("jobs: enqueued", "kind", job.Kind, "booking_id", job.BookingID)
	return nil
}

// Start launches the worker pool. It returns immediately.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.runWorker(ctx, i)
	}
	d.logger.Info("jobs: dispatcher started", "workers", d.workers)
}

// Stop cancels the workers and waits for them to drain.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	d.wg.Wait()
	d.logger.Info("jobs: dispatcher stopped")
}

func (d *Dispatcher) runWorker(ctx context.Context, id int) {
	defer d.wg.Done()
	for {
		msgs, err := d.queue.Receive(ctx, 10, 5)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			d.logger.Error("jobs: receive failed", "worker", id, "error", err)
			continue
		}
		for _, msg := range msgs {
			d.handleMessage(ctx, msg)
		}
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg Message) {
	var job Job
	if err := json.Unmarshal([]byte(msg.Body), &job); err != nil {
		d.logger.Error("jobs: malformed message dropped", "message_id", msg.ID, "error", err)
		d.queue.Delete(ctx, msg.ReceiptHandle)
		return
	}

	handler, ok := d.handlers[job.Kind]
	if !ok {
		d.logger.Error("jobs: no handler for kind, dropping", "kind", job.Kind, "message_id", msg.ID)
		d.queue.Delete(ctx, msg.ReceiptHandle)
		return
	}

	if err := handler(ctx, job); err != nil {
		// Leave the message for redelivery.
		d.logger.Error("jobs: handler failed", "kind", job.Kind, "booking_id", job.BookingID, "error", err)
		return
	}

	if err := d.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		d.logger.Error("jobs: delete failed", "message_id", msg.ID, "error", err)
	}
}
