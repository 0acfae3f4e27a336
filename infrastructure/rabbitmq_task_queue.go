// infrastructure/rabbitmq_task_queue.go
package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/vitovidale/autosplit-service/domain"
)

const (
	TaskQueueName    = "autosplit.tasks"
	ControlExchange  = "autosplit.control"
	delayQueuePrefix = "autosplit.delay."
)

var _ domain.TaskQueue = (*RabbitMQTaskQueue)(nil)

// amqpChannel is the subset of *amqp.Channel the queue needs.
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RevocationStore records revoked task ids so workers can skip them.
type RevocationStore interface {
	Revoke(ctx context.Context, taskID string) error
	IsRevoked(ctx context.Context, taskID string) (bool, error)
}

// RabbitMQTaskQueue publishes tasks to the work queue. Delayed tasks are
// parked in a per-delay queue whose messages dead-letter into the work
// queue once their TTL runs out.
type RabbitMQTaskQueue struct {
	mu       sync.Mutex
	ch       amqpChannel
	revoked  RevocationStore
	declared map[time.Duration]string
	logger   *zap.Logger
}

func NewRabbitMQTaskQueue(ch amqpChannel, revoked RevocationStore, logger *zap.Logger) (*RabbitMQTaskQueue, error) {
	if err := declareTopology(ch); err != nil {
		return nil, err
	}
	return &RabbitMQTaskQueue{
		ch:       ch,
		revoked:  revoked,
		declared: make(map[time.Duration]string),
		logger:   logger.Named("RabbitMQTaskQueue"),
	}, nil
}

func declareTopology(ch amqpChannel) error {
	if _, err := ch.QueueDeclare(
		TaskQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		return fmt.Errorf("failed to declare queue '%s': %w", TaskQueueName, err)
	}
	if err := ch.ExchangeDeclare(
		ControlExchange,
		"fanout",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		return fmt.Errorf("failed to declare exchange '%s': %w", ControlExchange, err)
	}
	return nil
}

func (q *RabbitMQTaskQueue) Enqueue(ctx context.Context, task domain.Task, delay time.Duration) (domain.TaskHandle, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return domain.TaskHandle{}, fmt.Errorf("marshal task %s: %w", task.ID, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	routingKey := TaskQueueName
	if delay > 0 {
		routingKey, err = q.delayQueue(delay)
		if err != nil {
			return domain.TaskHandle{}, err
		}
	}

	err = q.ch.PublishWithContext(ctx, "", routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    task.ID,
		Type:         string(task.Kind),
		Timestamp:    task.EnqueuedAt,
		Body:         body,
	})
	if err != nil {
		return domain.TaskHandle{}, fmt.Errorf("publish task %s: %w", task.ID, err)
	}

	q.logger.Debug("Task enqueued",
		zap.String("taskID", task.ID),
		zap.String("kind", string(task.Kind)),
		zap.Duration("delay", delay),
	)
	return domain.TaskHandle{TaskID: task.ID, Delay: delay}, nil
}

// delayQueue declares the holding queue for delay once per process. The
// queue expires when idle for a while past its TTL.
func (q *RabbitMQTaskQueue) delayQueue(delay time.Duration) (string, error) {
	if name, ok := q.declared[delay]; ok {
		return name, nil
	}
	ttl := delay.Milliseconds()
	name := fmt.Sprintf("%s%d", delayQueuePrefix, ttl)
	args := amqp.Table{
		"x-message-ttl":             ttl,
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": TaskQueueName,
		"x-expires":                 ttl*2 + time.Minute.Milliseconds(),
	}
	if _, err := q.ch.QueueDeclare(name, true, false, false, false, args); err != nil {
		return "", fmt.Errorf("failed to declare delay queue '%s': %w", name, err)
	}
	q.declared[delay] = name
	return name, nil
}

// Revoke marks the task so any worker that receives it drops it, then tells
// running workers to cancel it.
func (q *RabbitMQTaskQueue) Revoke(ctx context.Context, taskID string) error {
	if err := q.revoked.Revoke(ctx, taskID); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	err := q.ch.PublishWithContext(ctx, ControlExchange, "", false, false, amqp.Publishing{
		ContentType: "text/plain",
		Body:        []byte(taskID),
	})
	if err != nil {
		q.logger.Warn("Failed to broadcast revocation", zap.String("taskID", taskID), zap.Error(err))
	}
	return nil
}
