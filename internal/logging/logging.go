package logging

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Init(path string, level zerolog.Level) {
	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		panic(fmt.Errorf("failed to open log file: %w", err))
	}

	multi := zerolog.MultiLevelWriter(logFile, os.Stderr)

	logger := zerolog.New(multi).Level(level).With().Timestamp().Logger()
	log.Logger = logger

	if level == zerolog.DebugLevel {
		log.Debug().Msg("Log level set to DEBUG")
	}
}

// SetQuiet drops the global level to warnings for the steady-state portion of
// a run. Startup and the final report log at the configured level.
func SetQuiet(quiet bool) {
	if quiet {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
}
