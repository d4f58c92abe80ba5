package util

import (
	"fmt"
	"math"
	"runtime"
	"strconv"
	"strings"
)

// alias so tests can mock it
var runtimeNumCPU = runtime.NumCPU

// ParseConcurrency accepts either a bare integer ("4") or a percentage of
// CPU cores ("50%") and returns a worker-pool size, matching the teacher's
// --concurrency flag grammar.
func ParseConcurrency(raw string) (int, error) {
	if strings.HasSuffix(raw, "%") {
		percent, err := strconv.ParseFloat(raw[:len(raw)-1], 64)
		if err != nil || percent <= 0 || math.IsInf(percent, 1) {
			return 0, fmt.Errorf("invalid percentage value for concurrency %q: must be a positive percentage", raw)
		}
		return int(math.Max(1, float64(runtimeNumCPU())*percent/100)), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid value %q for concurrency: must be a positive integer or a percentage", raw)
	}
	return n, nil
}

// ResolveConcurrency clamps a configured worker count to the available CPU
// count, matching spec.md §4.10: "concurrency = min(configured, cpu_count)".
func ResolveConcurrency(configured int) int {
	cpus := runtimeNumCPU()
	if configured <= 0 || configured > cpus {
		return cpus
	}
	return configured
}
