package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Twin registry backends selectable through TWIN_REGISTRY.
const (
	RegistryIoTHub   = "iothub"
	RegistryFirebase = "firebase"
	RegistryDynamoDB = "dynamodb"
)

type Config struct {
	// Device twin registry
	TwinRegistry      string
	IoTHubConnection  string
	FirebaseDbUrl     string
	FirebaseSAJSON    string
	FirebaseTwinsPath string
	DynamoTwinsTable  string

	// Adjustment notifications, each one optional
	RabbitMQURL        string
	RabbitMQExchange   string
	RabbitMQRoutingKey string
	MQTTBroker         string
	MQTTUsername       string
	MQTTPassword       string
	MQTTClientID       string
	MQTTTopicPrefix    string
	TelegramBotToken   string
	TelegramChatID     string
	TelegramCooldown   int // seconds

	// Host
	HTTPPort string
	LogLevel string
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	config := &Config{
		TwinRegistry:      strings.ToLower(getEnv("TWIN_REGISTRY", RegistryIoTHub)),
		IoTHubConnection:  getEnv("IOTHUB_CONNECTION", ""),
		FirebaseDbUrl:     getEnv("FIREBASE_DB_URL", ""),
		FirebaseSAJSON:    getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
		FirebaseTwinsPath: getEnv("FIREBASE_TWINS_PATH", "twins"),
		DynamoTwinsTable:  getEnv("DYNAMODB_TWINS_TABLE", ""),

		RabbitMQURL:        getEnv("RABBITMQ_URL", ""),
		RabbitMQExchange:   getEnv("RABBITMQ_EXCHANGE", "production-rate"),
		RabbitMQRoutingKey: getEnv("RABBITMQ_ROUTING_KEY", "production_rate_adjusted"),
		MQTTBroker:         getEnv("MQTT_BROKER", ""),
		MQTTUsername:       getEnv("MQTT_USERNAME", ""),
		MQTTPassword:       getEnv("MQTT_PASSWORD", ""),
		MQTTClientID:       getEnv("MQTT_CLIENT_ID", "production-rate-adjuster"),
		MQTTTopicPrefix:    getEnv("MQTT_TOPIC_PREFIX", "devices"),
		TelegramBotToken:   getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:     getEnv("TELEGRAM_CHAT_ID", ""),
		TelegramCooldown:   getEnvInt("TELEGRAM_COOLDOWN_SECONDS", 300),

		HTTPPort: getEnv("FUNCTIONS_CUSTOMHANDLER_PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return config, nil
}

// Validate checks that the selected twin registry has what it needs to connect.
func (c *Config) Validate() error {
	switch c.TwinRegistry {
	case RegistryIoTHub:
		if c.IoTHubConnection == "" {
			return errors.New("IOTHUB_CONNECTION is required for the iothub registry")
		}
	case RegistryFirebase:
		if c.FirebaseDbUrl == "" || c.FirebaseSAJSON == "" {
			return errors.New("FIREBASE_DB_URL and FIREBASE_SERVICE_ACCOUNT_JSON are required for the firebase registry")
		}
	case RegistryDynamoDB:
		if c.DynamoTwinsTable == "" {
			return errors.New("DYNAMODB_TWINS_TABLE is required for the dynamodb registry")
		}
	default:
		return fmt.Errorf("unknown TWIN_REGISTRY %q", c.TwinRegistry)
	}

	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		return errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	return nil
}

func (c *Config) TelegramEnabled() bool { return c.TelegramBotToken != "" && c.TelegramChatID != "" }
func (c *Config) RabbitMQEnabled() bool { return c.RabbitMQURL != "" }
func (c *Config) MQTTEnabled() bool     { return c.MQTTBroker != "" }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
