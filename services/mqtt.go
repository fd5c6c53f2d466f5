package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rateadjuster/config"
	"rateadjuster/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const mqttPublishTimeout = 5 * time.Second

// MQTTPublisher announces new production rates on
// {prefix}/{deviceID}/production-rate so edge gateways can apply them.
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
	logger *zap.Logger
}

func NewMQTTPublisher(cfg *config.Config, logger *zap.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.MQTTBroker))
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetUsername(cfg.MQTTUsername)
	opts.SetPassword(cfg.MQTTPassword)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("timeout connecting to MQTT broker %s", cfg.MQTTBroker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	logger.Info("Connected to MQTT broker", zap.String("broker", cfg.MQTTBroker))

	return &MQTTPublisher{client: client, prefix: cfg.MQTTTopicPrefix, logger: logger}, nil
}

func (m *MQTTPublisher) topic(deviceID string) string {
	return fmt.Sprintf("%s/%s/production-rate", m.prefix, deviceID)
}

// NotifyAdjustment publishes the adjustment with QoS 1.
func (m *MQTTPublisher) NotifyAdjustment(ctx context.Context, adj *models.Adjustment) error {
	payload, err := json.Marshal(adj)
	if err != nil {
		return fmt.Errorf("failed to marshal adjustment: %w", err)
	}

	topic := m.topic(adj.DeviceID)
	token := m.client.Publish(topic, 1, false, payload)

	timeout := mqttPublishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("timeout publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	m.logger.Debug("Published adjustment to MQTT", zap.String("topic", topic))
	return nil
}

// Close disconnects from the broker, waiting up to 250ms for in-flight work.
func (m *MQTTPublisher) Close() error {
	m.client.Disconnect(250)
	return nil
}
