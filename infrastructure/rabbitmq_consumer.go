// infrastructure/rabbitmq_consumer.go
package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/vitovidale/autosplit-service/domain"
)

type TaskHandler interface {
	Run(ctx context.Context, task domain.Task) error
}

// TaskWorker consumes the work queue and runs tasks on a bounded pool.
// Revocations arrive on the control exchange and cancel the matching task
// if it is running on this worker.
type TaskWorker struct {
	handler     TaskHandler
	revoked     RevocationStore
	concurrency int
	pool        *workerpool.WorkerPool
	logger      *zap.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func NewTaskWorker(handler TaskHandler, revoked RevocationStore, concurrency int, logger *zap.Logger) *TaskWorker {
	return &TaskWorker{
		handler:     handler,
		revoked:     revoked,
		concurrency: concurrency,
		pool:        workerpool.New(concurrency),
		logger:      logger.Named("TaskWorker"),
		running:     make(map[string]context.CancelFunc),
	}
}

// Consume blocks until ctx is cancelled or the broker closes the delivery
// channel, then waits for in-flight tasks.
func (w *TaskWorker) Consume(ctx context.Context, ch *amqp.Channel) error {
	defer w.pool.StopWait()

	if err := declareTopology(ch); err != nil {
		return err
	}
	if err := ch.Qos(w.concurrency, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}
	controls, err := w.subscribeControl(ch)
	if err != nil {
		return err
	}

	consumerTag := fmt.Sprintf("autosplit_worker_%d", time.Now().UnixNano())
	deliveries, err := ch.Consume(
		TaskQueueName,
		consumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %w", err)
	}
	w.logger.Info("Waiting for tasks", zap.String("queue", TaskQueueName), zap.Int("concurrency", w.concurrency))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping task consumer")
			if err := ch.Cancel(consumerTag, false); err != nil {
				w.logger.Warn("Failed to cancel consumer", zap.Error(err))
			}
			return nil
		case c, ok := <-controls:
			if !ok {
				controls = nil
				continue
			}
			w.cancelRunning(string(c.Body))
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed by broker")
			}
			w.pool.Submit(func() { w.handle(ctx, d) })
		}
	}
}

func (w *TaskWorker) subscribeControl(ch *amqp.Channel) (<-chan amqp.Delivery, error) {
	q, err := ch.QueueDeclare(
		"",    // name (server generated)
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare control queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", ControlExchange, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind control queue to '%s': %w", ControlExchange, err)
	}
	controls, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume control queue: %w", err)
	}
	return controls, nil
}

func (w *TaskWorker) handle(ctx context.Context, d amqp.Delivery) {
	var task domain.Task
	if err := json.Unmarshal(d.Body, &task); err != nil {
		w.logger.Error("Dropping malformed task", zap.String("messageID", d.MessageId), zap.Error(err))
		recordTask(domain.TaskKind(d.Type), "malformed")
		w.settle(d, false)
		return
	}
	log := w.logger.With(zap.String("taskID", task.ID), zap.String("kind", string(task.Kind)))

	revoked, err := w.revoked.IsRevoked(ctx, task.ID)
	if err != nil {
		log.Warn("Revocation check failed, running task", zap.Error(err))
	}
	if revoked {
		log.Info("Skipping revoked task")
		recordTask(task.Kind, "revoked")
		w.settle(d, true)
		return
	}

	taskCtx, cancel := context.WithCancel(ctx)
	w.track(task.ID, cancel)
	err = w.handler.Run(taskCtx, task)
	w.untrack(task.ID)
	cancel()

	switch {
	case err == nil:
		recordTask(task.Kind, "ok")
		w.settle(d, true)
	case errors.Is(err, context.Canceled) && ctx.Err() == nil:
		log.Info("Task cancelled by revocation")
		recordTask(task.Kind, "cancelled")
		w.settle(d, true)
	case ctx.Err() != nil:
		log.Warn("Task interrupted by shutdown, requeueing", zap.Error(err))
		recordTask(task.Kind, "requeued")
		if nerr := d.Nack(false, true); nerr != nil {
			log.Error("failed to requeue message", zap.Error(nerr))
		}
	default:
		log.Error("Task failed", zap.Error(err))
		recordTask(task.Kind, "error")
		w.settle(d, false)
	}
}

func (w *TaskWorker) settle(d amqp.Delivery, ok bool) {
	var err error
	if ok {
		err = d.Ack(false)
	} else {
		err = d.Nack(false, false)
	}
	if err != nil {
		w.logger.Error("failed to acknowledge message", zap.String("messageID", d.MessageId), zap.Error(err))
	}
}

func (w *TaskWorker) track(taskID string, cancel context.CancelFunc) {
	w.mu.Lock()
	w.running[taskID] = cancel
	w.mu.Unlock()
}

func (w *TaskWorker) untrack(taskID string) {
	w.mu.Lock()
	delete(w.running, taskID)
	w.mu.Unlock()
}

// cancelRunning reports whether taskID was running here.
func (w *TaskWorker) cancelRunning(taskID string) bool {
	w.mu.Lock()
	cancel, ok := w.running[taskID]
	w.mu.Unlock()
	if ok {
		w.logger.Info("Cancelling revoked task", zap.String("taskID", taskID))
		cancel()
	}
	return ok
}
