package contextutil

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerFromContext(t *testing.T) {
	t.Run("returns stored logger", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))

		ctx := WithLogger(context.Background(), logger)
		got := LoggerFromContext(ctx)
		if got != logger {
			t.Error("LoggerFromContext() did not return the stored logger")
		}

		got.Info("probe", "key", "value")
		if !strings.Contains(buf.String(), "probe") {
			t.Errorf("log output = %q", buf.String())
		}
	})

	t.Run("falls back to default", func(t *testing.T) {
		if got := LoggerFromContext(context.Background()); got != slog.Default() {
			t.Error("LoggerFromContext() did not fall back to the default logger")
		}
	})
}
