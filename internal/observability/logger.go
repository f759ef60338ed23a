package observability

import (
	"github.com/danmuck/ledgerd/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger applies the runtime logging profile, tags every line with app
// and, when level parses, overrides the global level.
func InitLogger(app, level string) zerolog.Logger {
	logging.ConfigureRuntime()
	if lvl, ok := logging.ParseLevel(level); ok {
		zerolog.SetGlobalLevel(lvl)
	}
	logger := log.Logger.With().Str("app", app).Logger()
	log.Logger = logger
	return logger
}
