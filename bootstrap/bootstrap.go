// Package bootstrap wires the processor from configuration for every entry point.
package bootstrap

import (
	"context"
	"fmt"

	"rateadjuster/config"
	"rateadjuster/services"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
)

// App holds the wired processor and whatever must be closed on shutdown.
type App struct {
	Processor *services.BlobProcessor
	closers   []func() error
	logger    *zap.Logger
}

// Close releases notifier connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Error during shutdown", zap.Error(err))
		}
	}
}

// New builds the twin registry and notifiers selected by cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	registry, err := NewRegistry(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	app := &App{logger: logger}

	var notifiers services.MultiNotifier
	if cfg.TelegramEnabled() {
		telegramService, err := services.NewTelegramService(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Telegram service: %w", err)
		}
		notifiers = append(notifiers, telegramService)
	}
	if cfg.RabbitMQEnabled() {
		rabbit, err := services.NewRabbitMQService(cfg, logger)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to initialize RabbitMQ service: %w", err)
		}
		notifiers = append(notifiers, rabbit)
		app.closers = append(app.closers, rabbit.Close)
	}
	if cfg.MQTTEnabled() {
		publisher, err := services.NewMQTTPublisher(cfg, logger)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to initialize MQTT publisher: %w", err)
		}
		notifiers = append(notifiers, publisher)
		app.closers = append(app.closers, publisher.Close)
	}

	var notifier services.AdjustmentNotifier
	if len(notifiers) > 0 {
		notifier = notifiers
	}

	adjuster := services.NewTwinAdjuster(registry, logger)
	app.Processor = services.NewBlobProcessor(adjuster, notifier, logger)

	logger.Info("Production rate adjuster initialized",
		zap.String("twin_registry", cfg.TwinRegistry),
		zap.Float64("quality_threshold", services.QualityThresholdPercent),
		zap.Int("rate_step", services.RateStep),
		zap.Int("rate_floor", services.RateFloor),
		zap.Int("notifiers", len(notifiers)),
	)

	return app, nil
}

// NewRegistry connects to the twin registry named by cfg.TwinRegistry.
func NewRegistry(ctx context.Context, cfg *config.Config, logger *zap.Logger) (services.TwinRegistry, error) {
	switch cfg.TwinRegistry {
	case config.RegistryIoTHub:
		registry, err := services.NewIoTHubRegistry(cfg.IoTHubConnection, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize IoT Hub registry: %w", err)
		}
		return registry, nil

	case config.RegistryFirebase:
		registry, err := services.NewFirebaseTwinRegistry(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Firebase registry: %w", err)
		}
		return registry, nil

	case config.RegistryDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("unable to load SDK config: %w", err)
		}
		registry, err := services.NewDynamoTwinRegistry(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTwinsTable, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize DynamoDB registry: %w", err)
		}
		return registry, nil

	default:
		return nil, fmt.Errorf("unknown twin registry %q", cfg.TwinRegistry)
	}
}
