package vcs

import "os"

// ciEnvVars is a short table of env vars common CI vendors set, enough to
// answer "are we running under CI" for the `run_in_ci` task gate
// (spec.md §9 open question #2). Trimmed from the teacher's much longer
// internal/ci vendor table (~40 vendors with bespoke detection rules) since
// moonshot only needs a yes/no signal, not the vendor's identity.
var ciEnvVars = []string{
	"CI",
	"CONTINUOUS_INTEGRATION",
	"BUILD_ID",
	"BUILD_NUMBER",
	"RUN_ID",
	"TEAMCITY_VERSION",
	"GITHUB_ACTIONS",
}

// DetectCI reports whether the process appears to be running under a CI
// vendor, consulting a short list of common environment variables.
func DetectCI() bool {
	for _, name := range ciEnvVars {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}
