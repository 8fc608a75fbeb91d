package main

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// setupLogging configures the global zerolog logger from the environment.
// The returned closer flushes the rotating log file, if any.
func setupLogging() io.Closer {
	var out io.Writer = os.Stdout
	if os.Getenv("LOG_FORMAT") != "JSON" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	var file *lumberjack.Logger
	if path := os.Getenv("LOG_FILE"); path != "" {
		file = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    envInt("LOG_MAX_SIZE_MB", 32),
			MaxBackups: envInt("LOG_MAX_BACKUPS", 3),
			MaxAge:     envInt("LOG_MAX_AGE_DAYS", 14),
			Compress:   true,
		}
		// The file always gets JSON, whatever the console shows.
		out = zerolog.MultiLevelWriter(out, file)
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	if os.Getenv("DEBUG") == "YES" {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	if file == nil {
		return nopCloser{}
	}
	log.Debug().Str("file", file.Filename).Int("max_size_mb", file.MaxSize).Msg("log file enabled")
	return file
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
