package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Run("level is applied", func(t *testing.T) {
		logger, err := New("development", "debug")
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if !logger.Core().Enabled(zapcore.DebugLevel) {
			t.Errorf("debug level should be enabled")
		}
	})

	t.Run("production defaults to info", func(t *testing.T) {
		logger, err := New("production", "")
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if logger.Core().Enabled(zapcore.DebugLevel) {
			t.Errorf("debug level should be disabled")
		}
	})

	t.Run("invalid level", func(t *testing.T) {
		if _, err := New("development", "loud"); err == nil {
			t.Errorf("expected an error")
		}
		if logger := Must("development", "loud"); logger == nil {
			t.Errorf("Must returned nil")
		}
	})
}
