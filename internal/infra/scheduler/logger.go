package scheduler

import (
	"fmt"
	"log/slog"

	"github.com/go-co-op/gocron/v2"
)

// slogAdapter routes gocron's own log lines into slog.
type slogAdapter struct {
	logger *slog.Logger
}

func newSlogAdapter(logger *slog.Logger) gocron.Logger {
	return &slogAdapter{logger: logger.With(slog.String("component", "gocron"))}
}

func (l *slogAdapter) Debug(msg string, args ...any) {
	l.logger.Debug(msg, toSlogArgs(args)...)
}

func (l *slogAdapter) Info(msg string, args ...any) {
	l.logger.Info(msg, toSlogArgs(args)...)
}

func (l *slogAdapter) Warn(msg string, args ...any) {
	l.logger.Warn(msg, toSlogArgs(args)...)
}

func (l *slogAdapter) Error(msg string, args ...any) {
	l.logger.Error(msg, toSlogArgs(args)...)
}

func toSlogArgs(args []any) []any {
	slogArgs := make([]any, 0, len(args))

	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			key, ok := args[i].(string)
			if !ok {
				key = fmt.Sprintf("%v", args[i])
			}

			slogArgs = append(slogArgs, key, args[i+1])
		} else {
			slogArgs = append(slogArgs, "value", args[i])
		}
	}

	return slogArgs
}
