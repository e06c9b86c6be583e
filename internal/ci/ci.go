// Package ci detects whether the current process is running under a known
// CI/CD vendor, partially ported from https://github.com/watson/ci-info.
// Used by internal/handlers to gate the build-breaking "config drifted
// during CI" check and the RunInCI task filter.
package ci

import "os"

// isCI records whether the process was started with a CI fingerprint set.
var isCI = detectCI()

func detectCI() bool {
	return os.Getenv("BUILD_ID") != "" || os.Getenv("BUILD_NUMBER") != "" ||
		os.Getenv("CI") != "" || os.Getenv("CI_APP_ID") != "" ||
		os.Getenv("CI_BUILD_ID") != "" || os.Getenv("CI_BUILD_NUMBER") != "" ||
		os.Getenv("CI_NAME") != "" || os.Getenv("CONTINUOUS_INTEGRATION") != "" ||
		os.Getenv("RUN_ID") != "" || os.Getenv("TEAMCITY_VERSION") != ""
}

// IsCI returns true if the program is executing in a CI/CD environment,
// judged from the environment at the time of the call.
func IsCI() bool {
	return detectCI()
}

// Name returns the name of the detected CI vendor, or "" if none matched.
func Name() string {
	return Info().Name
}

// Info returns the first vendor whose env-var fingerprint matches.
func Info() Vendor {
	for _, v := range Vendors {
		if v.EvalEnv != nil {
			matched := true
			for name, value := range v.EvalEnv {
				if os.Getenv(name) != value {
					matched = false
					break
				}
			}
			if matched {
				return v
			}
			continue
		}
		if v.Env != "" && os.Getenv(v.Env) != "" {
			return v
		}
	}
	return Vendor{}
}
