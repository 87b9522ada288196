package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxforge/orchestrator/internal/sandbox"
)

func TestValidateDefaultsToMemoryBackend(t *testing.T) {
	c := &Config{SandboxStoreBackend: "memory", LogFormat: "json"}
	require.NoError(t, c.Validate())
}

func TestValidatePostgresRequiresDatabaseURL(t *testing.T) {
	c := &Config{SandboxStoreBackend: "postgres", LogFormat: "json"}
	err := c.Validate()
	require.Error(t, err)
	assert.Equal(t, sandbox.KindValidation, sandbox.KindOf(err))
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	c := &Config{SandboxStoreBackend: "sqlite", LogFormat: "json"}
	err := c.Validate()
	require.Error(t, err)
}

func TestValidateRejectsUnknownLogFormat(t *testing.T) {
	c := &Config{SandboxStoreBackend: "memory", LogFormat: "xml"}
	err := c.Validate()
	require.Error(t, err)
}

func TestListenAddr(t *testing.T) {
	c := &Config{Host: "0.0.0.0", Port: 8080}
	assert.Equal(t, "0.0.0.0:8080", c.ListenAddr())
}
