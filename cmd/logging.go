package cmd

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

type logConfig struct {
	Level     string
	LogFormat string
	LogFile   string
}

// initLogger configures the global logger from flags and config. It runs
// before every command.
func initLogger() error {
	cfg := &logConfig{
		Level:     viper.GetString("log_level"),
		LogFormat: viper.GetString("log_format"),
		LogFile:   viper.GetString("log_file"),
	}
	if verbose {
		cfg.Level = "debug"
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}
	logConfigFile()
	return nil
}

// InitLogger points the global zerolog logger at stderr (and LogFile when
// set) and applies Level.
func InitLogger(config *logConfig) error {
	var logWriter io.Writer
	if config.LogFormat == "json" {
		logWriter = os.Stderr
	} else {
		logWriter = zerolog.ConsoleWriter{
			Out:     os.Stderr,
			NoColor: !isatty.IsTerminal(os.Stderr.Fd()),
		}
	}

	if config.LogFile != "" {
		logWriter = io.MultiWriter(
			logWriter,
			zerolog.ConsoleWriter{
				NoColor: true,
				Out: &lumberjack.Logger{
					Filename:   config.LogFile,
					MaxSize:    10, // megabytes
					MaxBackups: 3,
					MaxAge:     28, // days
				},
			})
	}

	log.Logger = log.Output(logWriter)

	level := strings.ToLower(config.Level)
	if level == "" {
		level = "warn"
	}
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		return errors.Errorf("invalid log level %q (use debug, info, warn or error)", config.Level)
	}

	return nil
}
