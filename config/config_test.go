package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TWIN_REGISTRY", "")
	t.Setenv("IOTHUB_CONNECTION", "HostName=hub.azure-devices.net;SharedAccessKeyName=service;SharedAccessKey=a2V5")
	t.Setenv("TELEGRAM_COOLDOWN_SECONDS", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, RegistryIoTHub, cfg.TwinRegistry)
	assert.Equal(t, "twins", cfg.FirebaseTwinsPath)
	assert.Equal(t, "production-rate", cfg.RabbitMQExchange)
	assert.Equal(t, "devices", cfg.MQTTTopicPrefix)
	assert.Equal(t, 300, cfg.TelegramCooldown)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigRegistryIsCaseInsensitive(t *testing.T) {
	t.Setenv("TWIN_REGISTRY", "DynamoDB")
	t.Setenv("DYNAMODB_TWINS_TABLE", "device-twins")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, RegistryDynamoDB, cfg.TwinRegistry)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"iothub without connection", Config{TwinRegistry: RegistryIoTHub}, true},
		{"firebase complete", Config{TwinRegistry: RegistryFirebase, FirebaseDbUrl: "https://x.firebaseio.com", FirebaseSAJSON: "{}"}, false},
		{"firebase without credentials", Config{TwinRegistry: RegistryFirebase, FirebaseDbUrl: "https://x.firebaseio.com"}, true},
		{"dynamodb without table", Config{TwinRegistry: RegistryDynamoDB}, true},
		{"unknown registry", Config{TwinRegistry: "etcd"}, true},
		{"telegram token without chat", Config{TwinRegistry: RegistryDynamoDB, DynamoTwinsTable: "t", TelegramBotToken: "123:abc"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNotifierToggles(t *testing.T) {
	cfg := Config{}
	assert.False(t, cfg.TelegramEnabled())
	assert.False(t, cfg.RabbitMQEnabled())
	assert.False(t, cfg.MQTTEnabled())

	cfg = Config{TelegramBotToken: "t", TelegramChatID: "1", RabbitMQURL: "amqp://localhost", MQTTBroker: "localhost:1883"}
	assert.True(t, cfg.TelegramEnabled())
	assert.True(t, cfg.RabbitMQEnabled())
	assert.True(t, cfg.MQTTEnabled())
}
