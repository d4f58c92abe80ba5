package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/mitchellh/cli"

	"github.com/moonshot/moonshot/internal/runner"
)

// buildUI wraps a cli.BasicUi in a cli.ColoredUi the way the teacher's
// internal/ui.ColoredUIFactory does, so top-level usage/error/warning
// messages get consistent coloring without hand-rolling ANSI codes
// alongside the per-task prefix coloring in internal/runner/output.go.
func buildUI(colorEnabled bool) cli.Ui {
	base := &cli.BasicUi{
		Reader:      os.Stdin,
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}
	if !colorEnabled {
		return base
	}
	return &cli.ColoredUi{
		Ui:          base,
		OutputColor: cli.UiColorNone,
		InfoColor:   cli.UiColorNone,
		WarnColor:   cli.UiColor{Code: int(color.FgYellow), Bold: false},
		ErrorColor:  cli.UiColorRed,
	}
}

func colorEnabledFor(noColor bool) bool {
	return !noColor && runner.ColorEnabled(os.Stdout)
}
