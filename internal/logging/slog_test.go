package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufLogger(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, nil))
	return NewSlogLogger(l), &buf
}

func TestSlogLogger_InfoWithFields(t *testing.T) {
	log, buf := newBufLogger(t)

	log.With("device_id", "d1").Info(context.Background(), "push complete", "accepted", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "push complete", rec["msg"])
	assert.Equal(t, "d1", rec["device_id"])
	assert.Equal(t, float64(3), rec["accepted"])
}

func TestSlogLogger_ErrorLevel(t *testing.T) {
	log, buf := newBufLogger(t)

	log.Error(context.Background(), "sync failed")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "ERROR", rec["level"])
}
