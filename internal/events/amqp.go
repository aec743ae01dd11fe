package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"flashloan-executor/internal/observability"
)

// DefaultQueue is the queue outcomes are published to.
const DefaultQueue = "flashloan.outcomes"

// AMQPConfig configures an AMQPPublisher.
type AMQPConfig struct {
	URL          string
	Queue        string
	DialAttempts int
	RetryDelay   time.Duration
}

// DefaultAMQPConfig returns defaults for everything but the URL.
func DefaultAMQPConfig(url string) AMQPConfig {
	return AMQPConfig{
		URL:          url,
		Queue:        DefaultQueue,
		DialAttempts: 10,
		RetryDelay:   3 * time.Second,
	}
}

// AMQPPublisher publishes outcomes as persistent JSON messages to a durable queue.
type AMQPPublisher struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	logger  *zap.Logger
}

// NewAMQPPublisher connects to the broker, retrying the dial, and declares the queue.
func NewAMQPPublisher(ctx context.Context, cfg AMQPConfig, logger *zap.Logger) (*AMQPPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
	}
	if cfg.DialAttempts <= 0 {
		cfg.DialAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var conn *amqp.Connection
	var err error
	for i := 0; i < cfg.DialAttempts; i++ {
		conn, err = amqp.Dial(cfg.URL)
		if err == nil {
			break
		}
		if i < cfg.DialAttempts-1 {
			logger.Warn("amqp dial failed, retrying",
				zap.Int("attempt", i+1),
				zap.Int("max_attempts", cfg.DialAttempts),
				zap.Duration("delay", cfg.RetryDelay),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.RetryDelay):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("dial amqp after %d attempts: %w", cfg.DialAttempts, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	_, err = ch.QueueDeclare(
		cfg.Queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}

	logger.Info("amqp publisher ready", zap.String("queue", cfg.Queue))
	return &AMQPPublisher{conn: conn, channel: ch, queue: cfg.Queue, logger: logger}, nil
}

var _ Publisher = (*AMQPPublisher)(nil)

// Publish implements Publisher.
func (p *AMQPPublisher) Publish(ctx context.Context, o Outcome) (err error) {
	defer func() { observability.RecordEventPublished(err) }()

	body, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    o.ExecutionID,
			Timestamp:    time.Unix(o.Timestamp, 0),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.queue, err)
	}
	p.logger.Debug("outcome published",
		zap.String("queue", p.queue),
		zap.String("execution_id", o.ExecutionID),
	)
	return nil
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}
