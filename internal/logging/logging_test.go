package logging

import (
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewOperationErrorNilPassthrough(t *testing.T) {
	if err := NewOperationError("op", "sess", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestOperationErrorUnwrapsAndFormats(t *testing.T) {
	base := errors.New("boom")
	err := NewOperationError("usecase.classify", "sess-1", base)

	if !errors.Is(err, base) {
		t.Fatal("expected errors.Is to match the wrapped error")
	}
	if got := err.Error(); !strings.Contains(got, "session_id=sess-1") || !strings.HasPrefix(got, "usecase.classify") {
		t.Fatalf("unexpected message: %s", got)
	}

	err = NewOperationError("config.load", "", base)
	if got := err.Error(); got != "config.load: boom" {
		t.Fatalf("unexpected message: %s", got)
	}
}

func TestWithOperationAddsFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	WithOperation(logger, "wizard.submit", "sess-2").Info("hello")
	WithOperation(logger, "health", "").Info("bye")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	first := entries[0].ContextMap()
	if first["operation"] != "wizard.submit" || first["session_id"] != "sess-2" {
		t.Fatalf("unexpected fields: %v", first)
	}
	if _, ok := entries[1].ContextMap()["session_id"]; ok {
		t.Fatal("expected session_id to be omitted when empty")
	}
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	logger, err := NewLogger(Options{Level: "warn"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("expected info to be disabled at warn level")
	}
	if !logger.Core().Enabled(zapcore.ErrorLevel) {
		t.Fatal("expected error to be enabled")
	}
}
