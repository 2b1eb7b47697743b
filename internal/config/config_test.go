package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_DefaultsAreUsableWithNoEnvOrFile(t *testing.T) {
	cfg, err := Load()
	assert.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "nats://localhost:4222", cfg.Bus.URL)
	assert.Equal(t, "chat.user-messages", cfg.Bus.UserMessagesSubject)
	assert.Equal(t, "history-writer", cfg.Bus.HistoryConsumerName)
	assert.Equal(t, "memory-writer", cfg.Bus.MemoryConsumerName)
	assert.Equal(t, 10, cfg.Worker.MaxConcurrency)
	assert.Equal(t, 240, cfg.Shutdown.GeneratorGraceSeconds)
	assert.Equal(t, 60, cfg.Shutdown.WriterGraceSeconds)
	assert.Equal(t, 2.0, cfg.Memory.APITimeoutSecs)
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	t.Setenv("BUS_URL", "nats://bus.internal:4222")
	t.Setenv("MAX_CONCURRENCY", "42")

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, "nats://bus.internal:4222", cfg.Bus.URL)
	assert.Equal(t, 42, cfg.Worker.MaxConcurrency)
}
