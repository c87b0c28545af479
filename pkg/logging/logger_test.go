package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "json")

	logger.Info("Price stored", "asset", "0xabc", "price", "100", "error", errors.New("boom"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Price stored", entry["message"])
	assert.Equal(t, "0xabc", entry["asset"])
	assert.Equal(t, "100", entry["price"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLogger_WithAddsContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "json").With("component", "keeper")

	logger.Warn("Store failed", "asset")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "keeper", entry["component"])
	_, hasDangling := entry["asset"]
	assert.False(t, hasDangling)
}

func TestNoopLogger(t *testing.T) {
	logger := NewNoopLogger()
	assert.NotPanics(t, func() {
		logger.Debug("ignored", "k", 1)
		logger.With("a", "b").Error("ignored")
	})
}

func TestGlobal(t *testing.T) {
	t.Cleanup(func() { SetGlobal(nil) })

	assert.NotNil(t, Global())

	var buf bytes.Buffer
	SetGlobal(New(&buf, "json"))
	Global().Info("via global")
	assert.Contains(t, buf.String(), "via global")
}
