package logger

import (
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
)

// InstallSlog routes the process-wide slog default logger into the zap core,
// so libraries that log through slog end up in the same stream.
func InstallSlog(l *zap.Logger) *slog.Logger {
	handler := zapslog.NewHandler(l.Core(), zapslog.WithName("slog"), zapslog.WithCaller(true))
	std := slog.New(handler)
	slog.SetDefault(std)
	return std
}
