package runner

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// ColorEnabled reports whether w is a terminal that should receive ANSI
// color codes, the same isatty check the teacher's internal/ui uses to
// decide between a colored and a plain streamed-output writer.
func ColorEnabled(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type colorFn = func(format string, a ...interface{}) string

func prefixPalette() []colorFn {
	return []colorFn{color.CyanString, color.MagentaString, color.GreenString, color.YellowString, color.BlueString, color.HiCyanString}
}

// PrefixColorCache assigns each task label a stable color across a
// pipeline run, so interleaved streamed output from concurrent tasks
// stays visually distinguishable.
type PrefixColorCache struct {
	mu      sync.Mutex
	index   int
	palette []colorFn
	cache   map[string]colorFn
	enabled bool
}

// NewPrefixColorCache constructs a PrefixColorCache. When enabled is
// false every label maps to a no-op (plain-text) color function.
func NewPrefixColorCache(enabled bool) *PrefixColorCache {
	return &PrefixColorCache{
		palette: prefixPalette(),
		cache:   make(map[string]colorFn),
		enabled: enabled,
	}
}

// For returns the color function assigned to label, picking the next
// unused palette entry the first time label is seen.
func (c *PrefixColorCache) For(label string) colorFn {
	if !c.enabled {
		return fmt.Sprintf
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if fn, ok := c.cache[label]; ok {
		return fn
	}
	fn := c.palette[c.index%len(c.palette)]
	c.index++
	c.cache[label] = fn
	return fn
}

// prefixWriter prepends a colored "<label> " prefix to every line written
// through it, the way the teacher's logstreamer tags each task's output
// in a concurrent multi-task run.
type prefixWriter struct {
	out    io.Writer
	prefix string
	mu     *sync.Mutex
	atBOL  bool
}

// NewPrefixWriter wraps out so every line written through the result is
// prefixed with label, colored per cache's assignment for that label.
// mu serializes writes across every prefixWriter sharing the same out,
// so concurrent tasks' lines don't interleave mid-line.
func NewPrefixWriter(out io.Writer, mu *sync.Mutex, cache *PrefixColorCache, label string) io.Writer {
	colored := cache.For(label)
	return &prefixWriter{out: out, prefix: colored("%s ", label), mu: mu, atBOL: true}
}

func (w *prefixWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	written := 0
	for len(p) > 0 {
		if w.atBOL {
			if _, err := io.WriteString(w.out, w.prefix); err != nil {
				return written, err
			}
			w.atBOL = false
		}
		idx := indexByte(p, '\n')
		if idx < 0 {
			n, err := w.out.Write(p)
			written += n
			return written, err
		}
		n, err := w.out.Write(p[:idx+1])
		written += n
		if err != nil {
			return written, err
		}
		w.atBOL = true
		p = p[idx+1:]
	}
	return written, nil
}

func indexByte(p []byte, b byte) int {
	for i, c := range p {
		if c == b {
			return i
		}
	}
	return -1
}
