// Package logger builds the slog logger shared by every bot in the fleet.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	charmLog "github.com/charmbracelet/log"

	"corridorbots/pkg/config"
)

const (
	formatText = "text"
	formatJSON = "json"

	envLogFormat    = "CORRIDOR_LOG_FORMAT"
	envLogLevel     = "CORRIDOR_LOG_LEVEL"
	envLogAddSource = "CORRIDOR_LOG_ADD_SOURCE"
)

// options is the logging config after environment overrides.
type options struct {
	format    string
	level     charmLog.Level
	addSource bool
}

// New builds the process logger writing to w. Text output goes through
// charmbracelet/log; JSON output writes one LogEntry per line.
func New(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	opts, err := resolve(cfg)
	if err != nil {
		return nil, err
	}

	if opts.format == formatJSON {
		return slog.New(newEntryHandler(w, slog.Level(opts.level), opts.addSource)), nil
	}

	return slog.New(charmLog.NewWithOptions(w, charmLog.Options{
		Level:           opts.level,
		ReportTimestamp: true,
		ReportCaller:    opts.addSource,
		Formatter:       charmLog.TextFormatter,
	})), nil
}

func resolve(cfg config.LoggingConfig) (options, error) {
	format := override(cfg.Format, envLogFormat)
	if format == "" {
		format = formatText
	}
	if format != formatText && format != formatJSON {
		return options{}, fmt.Errorf("unsupported log format %q", format)
	}

	levelText := override(cfg.Level, envLogLevel)
	switch levelText {
	case "":
		levelText = "info"
	case "warning":
		levelText = "warn"
	}
	level, err := charmLog.ParseLevel(levelText)
	if err != nil || level > charmLog.ErrorLevel {
		return options{}, fmt.Errorf("unsupported log level %q", levelText)
	}

	addSource := cfg.AddSource
	if env := override("", envLogAddSource); env != "" {
		addSource = env == "1" || env == "true" || env == "yes" || env == "on"
	}

	return options{format: format, level: level, addSource: addSource}, nil
}

// override returns the lower-cased env value when set, else the config value.
func override(configured, env string) string {
	if value := strings.TrimSpace(os.Getenv(env)); value != "" {
		return strings.ToLower(value)
	}

	return strings.ToLower(strings.TrimSpace(configured))
}
