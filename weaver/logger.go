package weaver

import (
	"go.uber.org/zap"

	"github.com/wippyai/autodispose/weaver/internal/engine"
)

// Logger returns the weaver's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	return engine.Logger()
}

// SetLogger installs l for debug output and for diagnostics without a sink.
func SetLogger(l *zap.Logger) {
	engine.SetLogger(l)
}
