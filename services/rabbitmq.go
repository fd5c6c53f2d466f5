package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rateadjuster/config"
	"rateadjuster/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// amqpPublisher is the publishing half of *amqp.Channel.
type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitMQService publishes adjustment events to an exchange.
type RabbitMQService struct {
	conn       *amqp.Connection
	channel    amqpPublisher
	exchange   string
	routingKey string
	logger     *zap.Logger
}

// NewRabbitMQService connects and declares the exchange
func NewRabbitMQService(cfg *config.Config, logger *zap.Logger) (*RabbitMQService, error) {
	var conn *amqp.Connection
	var err error

	logger.Info("Connecting to RabbitMQ", zap.String("exchange", cfg.RabbitMQExchange))

	maxRetries := 3
	for attempt := 1; attempt <= maxRetries; attempt++ {
		conn, err = amqp.Dial(cfg.RabbitMQURL)
		if err == nil {
			break
		}

		logger.Warn("Failed to connect to RabbitMQ",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		cfg.RabbitMQExchange, // name
		"direct",             // type
		true,                 // durable
		false,                // auto-deleted
		false,                // internal
		false,                // no-wait
		nil,                  // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	logger.Info("Exchange declared", zap.String("exchange", cfg.RabbitMQExchange))

	return &RabbitMQService{
		conn:       conn,
		channel:    channel,
		exchange:   cfg.RabbitMQExchange,
		routingKey: cfg.RabbitMQRoutingKey,
		logger:     logger,
	}, nil
}

// NotifyAdjustment publishes the adjustment as a persistent JSON message.
func (r *RabbitMQService) NotifyAdjustment(ctx context.Context, adj *models.Adjustment) error {
	body, err := json.Marshal(adj)
	if err != nil {
		return fmt.Errorf("failed to marshal adjustment: %w", err)
	}

	err = r.channel.PublishWithContext(ctx,
		r.exchange,   // exchange
		r.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    adj.AdjustedAt,
			Headers: amqp.Table{
				"device_id": adj.DeviceID,
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	r.logger.Debug("Published adjustment to RabbitMQ",
		zap.String("device_id", adj.DeviceID),
		zap.String("routing_key", r.routingKey))

	return nil
}

// Close gracefully closes RabbitMQ connection
func (r *RabbitMQService) Close() error {
	r.logger.Info("Closing RabbitMQ connection")

	if ch, ok := r.channel.(*amqp.Channel); ok && ch != nil {
		if err := ch.Close(); err != nil {
			r.logger.Error("Error closing channel", zap.Error(err))
		}
	}

	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			r.logger.Error("Error closing connection", zap.Error(err))
			return err
		}
	}

	return nil
}
