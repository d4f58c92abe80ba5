// Package logger wires up the structured, leveled logger shared by every
// component of the engine. Adapted from the teacher's internal/cmdutil,
// which constructs a single hclog.Logger from a verbosity count and an
// environment-variable override.
package logger

import (
	"io/ioutil"
	"os"

	"github.com/hashicorp/go-hclog"
)

// EnvLogLevel is the environment variable consulted when verbosity flags
// are not set.
const EnvLogLevel = "MOONSHOT_LOG_LEVEL"

// New builds the root logger for a process invocation. verbosity follows the
// -v/-vv/-vvv convention: 0 means "consult MOONSHOT_LOG_LEVEL, default off",
// 1 is Info, 2 is Debug, 3+ is Trace.
func New(verbosity int) hclog.Logger {
	level := levelFor(verbosity)

	output := ioutil.Discard
	color := hclog.ColorOff
	if level != hclog.NoLevel {
		output = os.Stderr
		color = hclog.AutoColor
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:   "moonshot",
		Level:  level,
		Color:  color,
		Output: output,
	})
}

func levelFor(verbosity int) hclog.Level {
	switch verbosity {
	case 0:
		if v := os.Getenv(EnvLogLevel); v != "" {
			if lvl := hclog.LevelFromString(v); lvl != hclog.NoLevel {
				return lvl
			}
		}
		return hclog.NoLevel
	case 1:
		return hclog.Info
	case 2:
		return hclog.Debug
	default:
		return hclog.Trace
	}
}

// Nop returns a logger that discards everything, for use in tests and in
// components constructed without a parent logger.
func Nop() hclog.Logger {
	return hclog.NewNullLogger()
}
