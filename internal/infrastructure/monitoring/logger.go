package monitoring

import (
	"io"

	"github.com/turtacn/txauth/internal/config"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/logger"
)

// NewLogger builds the process logger from the log section. A nil out
// writes to stdout.
func NewLogger(cfg *config.LogConfig, out io.Writer) logger.Logger {
	return logger.NewLogger(logger.Options{
		Level:  constants.ParseLogLevel(cfg.Level),
		Format: cfg.Format,
		Output: out,
	})
}

// NewSwitchableLogger is NewLogger with a level that can be changed later,
// used by the server so config reloads can adjust verbosity.
func NewSwitchableLogger(cfg *config.LogConfig, out io.Writer) (logger.Logger, *logger.LevelSwitch) {
	sw := logger.NewLevelSwitch(constants.ParseLogLevel(cfg.Level))
	return logger.NewLogger(logger.Options{
		Format: cfg.Format,
		Output: out,
		Switch: sw,
	}), sw
}
