package sessionguard

import "github.com/rs/zerolog"

// ZerologAdapter bridges the Logger interface to a zerolog.Logger so
// applications with structured logging can plug in directly.
type ZerologAdapter struct {
	log zerolog.Logger
}

// NewZerologAdapter wraps log as a Logger.
func NewZerologAdapter(log zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{log: log}
}

var _ Logger = (*ZerologAdapter)(nil)

func (z *ZerologAdapter) Debug(format string, args ...any) {
	z.log.Debug().Msgf(format, args...)
}

func (z *ZerologAdapter) Info(format string, args ...any) {
	z.log.Info().Msgf(format, args...)
}

func (z *ZerologAdapter) Warn(format string, args ...any) {
	z.log.Warn().Msgf(format, args...)
}

func (z *ZerologAdapter) Error(format string, args ...any) {
	z.log.Error().Msgf(format, args...)
}
