package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("json by default", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(WithOutput(&buf))
		log.Info("hello", "key", "value")

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "hello", record["msg"])
		assert.Equal(t, "value", record["key"])
	})

	t.Run("text format", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(WithOutput(&buf), WithFormat(FormatText))
		log.Info("hello")
		assert.True(t, strings.Contains(buf.String(), "msg=hello"))
	})

	t.Run("static attrs on every record", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(WithOutput(&buf), WithAttr(slog.String("service", "notifyd")))
		log.Info("x")

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "notifyd", record["service"])
	})

	t.Run("development enables debug", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(WithDevelopment("notifyd"), WithOutput(&buf))
		log.Debug("visible")
		assert.NotEmpty(t, buf.String())
	})

	t.Run("production suppresses debug", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(WithProduction("notifyd"), WithOutput(&buf))
		log.Debug("hidden")
		assert.Empty(t, buf.String())
	})

	t.Run("invalid format panics", func(t *testing.T) {
		assert.Panics(t, func() { New(WithFormat("xml")) })
	})
}
