// infrastructure/connections.go
package infrastructure

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Retry policy for dependencies that may still be starting.
const (
	connectAttempts = 5
	connectWait     = 5 * time.Second
)

func retry(ctx context.Context, logger *zap.Logger, what string, fn func() error) error {
	var err error
	for i := 0; i < connectAttempts; i++ {
		if err = fn(); err == nil {
			logger.Info("Connection established", zap.String("dependency", what))
			return nil
		}
		logger.Warn("Connection attempt failed, retrying",
			zap.String("dependency", what),
			zap.Int("attempt", i+1),
			zap.Int("of", connectAttempts),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(connectWait):
		}
	}
	return fmt.Errorf("could not connect to %s after %d attempts: %w", what, connectAttempts, err)
}

func ConnectPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := retry(ctx, logger, "postgres", func() error { return db.PingContext(ctx) }); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func ConnectRedis(ctx context.Context, addr, password string, database int, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: database})
	if err := retry(ctx, logger, "redis", func() error { return client.Ping(ctx).Err() }); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func ConnectRabbitMQ(ctx context.Context, url string, logger *zap.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	err := retry(ctx, logger, "rabbitmq", func() error {
		var err error
		conn, err = amqp.Dial(url)
		return err
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// RabbitMQHealth opens and closes a channel to prove the connection is usable.
func RabbitMQHealth(conn *amqp.Connection) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if conn == nil || conn.IsClosed() {
			return fmt.Errorf("disconnected")
		}
		ch, err := conn.Channel()
		if err != nil {
			return err
		}
		return ch.Close()
	}
}
