package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/txauth/pkg/constants"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]interface{}{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestLogger_MasksSensitiveFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(Options{Level: constants.LogLevelDebug, Output: &buf})

	log.Info(context.Background(), "issued",
		String("refresh_token", "eyJhbGciOiJIUzUxMiJ9.payload.sig"),
		String("password", "short"),
		String("token_type", "auth"),
		Int("count", 3),
	)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "issued", e["message"])
	assert.Equal(t, "eyJh***.sig", e["refresh_token"])
	assert.Equal(t, "***", e["password"])
	assert.Equal(t, "auth", e["token_type"])
	assert.EqualValues(t, 3, e["count"])
}

func TestLogger_RequestIDAndComponent(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(Options{Level: constants.LogLevelInfo, Output: &buf}).WithComponent("issuer")

	ctx := context.WithValue(context.Background(), constants.ContextKeyRequestID, "req-42")
	log.Error(ctx, "failed", assertErr("boom"))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "req-42", entries[0]["request_id"])
	assert.Equal(t, "issuer", entries[0]["component"])
	assert.Equal(t, "boom", entries[0]["error"])
}

func TestLevelSwitch(t *testing.T) {
	var buf bytes.Buffer
	sw := NewLevelSwitch(constants.LogLevelWarn)
	log := NewLogger(Options{Output: &buf, Switch: sw})

	log.Info(context.Background(), "hidden")
	assert.Empty(t, buf.String())

	assert.True(t, sw.Set(constants.LogLevelDebug))
	assert.False(t, sw.Set(constants.LogLevelDebug))
	assert.Equal(t, "debug", sw.Level())

	log.Debug(context.Background(), "shown")
	assert.Contains(t, buf.String(), "shown")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
