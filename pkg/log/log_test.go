package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextLogger(t *testing.T) {
	ctx := context.Background()

	l1 := Ctx(ctx)
	require.NotNil(t, l1)
	assert.Equal(t, defaultLogger, l1)

	customLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	require.NotEqual(t, defaultLogger, customLogger)

	l2 := Ctx(With(ctx, customLogger))
	require.NotNil(t, l2)
	assert.Equal(t, customLogger, l2)
}

func TestWithMeterGroup(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := WithMeterGroup(With(context.Background(), base), "LU0000010637000000000000070232")
	ctx = WithAttrs(ctx, "cycle", "refresh")

	Ctx(ctx).Info("hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "LU0000010637000000000000070232", rec["meterGroup"])
	assert.Equal(t, "refresh", rec["cycle"])
	assert.Equal(t, "hello", rec["msg"])
}
