package util

import "fmt"

// OutputStyle controls how a task's process output is surfaced, per
// spec.md §6: options.output_style ∈ {buffer, buffer-only-failure, hash,
// none, stream}. The constants below name what each style denotes; the
// runner does not read this option and streams every task's output.
type OutputStyle string

const (
	// OutputBuffer captures output and replays it after the task finishes.
	OutputBuffer OutputStyle = "buffer"
	// OutputBufferOnlyFailure replays captured output only on nonzero exit.
	OutputBufferOnlyFailure OutputStyle = "buffer-only-failure"
	// OutputHash shows only the task's computed hash, never process output.
	OutputHash OutputStyle = "hash"
	// OutputNone suppresses all output.
	OutputNone OutputStyle = "none"
	// OutputStream streams output live as the task runs.
	OutputStream OutputStyle = "stream"
)

// OutputStyles lists every valid OutputStyle value.
var OutputStyles = []OutputStyle{OutputBuffer, OutputBufferOnlyFailure, OutputHash, OutputNone, OutputStream}

// ParseOutputStyle validates a string against the known output styles.
func ParseOutputStyle(s string) (OutputStyle, error) {
	for _, style := range OutputStyles {
		if string(style) == s {
			return style, nil
		}
	}
	return "", fmt.Errorf("unknown output style %q", s)
}
