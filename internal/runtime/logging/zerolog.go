package logging

import (
	"github.com/rs/zerolog"
)

// NewZerologServiceLogger wraps a zerolog.Logger. Trace maps onto zerolog's
// trace level, so it is only emitted when the logger level allows it.
func NewZerologServiceLogger(log zerolog.Logger) ServiceLogger {
	return &zerologLogger{log: log}
}

type zerologLogger struct {
	log zerolog.Logger
}

func (z *zerologLogger) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return z
	}
	return &zerologLogger{log: z.log.With().Fields(map[string]any(fields)).Logger()}
}

func (z *zerologLogger) Debug(msg string, fields LogFields) {
	z.log.Debug().Fields(map[string]any(fields)).Msg(msg)
}

func (z *zerologLogger) Info(msg string, fields LogFields) {
	z.log.Info().Fields(map[string]any(fields)).Msg(msg)
}

func (z *zerologLogger) Error(msg string, err error, fields LogFields) {
	z.log.Error().Err(err).Fields(map[string]any(fields)).Msg(msg)
}

func (z *zerologLogger) Trace(msg string, fields LogFields) {
	z.log.Trace().Fields(map[string]any(fields)).Msg(msg)
}
