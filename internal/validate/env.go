// Package validate holds the static checks run before any container work
// begins: user-supplied env-var maps and generated Dockerfile text.
package validate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Result is the outcome of a validation pass. Warnings never flip Valid.
type Result struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

func (r *Result) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

var envNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Names that shadow well-known OS variables inside the container. Setting
// them is legal but usually a mistake, so it only warns.
var reservedEnvNames = map[string]struct{}{
	"PATH":  {},
	"HOME":  {},
	"USER":  {},
	"SHELL": {},
	"TERM":  {},
}

const maxEnvValueLen = 10_000

// Env checks a user-provided env-var map. Iteration is sorted so the
// reported order is stable across runs.
func Env(env map[string]string) Result {
	res := Result{Valid: true}

	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := env[name]
		if !envNameRe.MatchString(name) {
			res.errorf("invalid env var name %q", name)
		}
		if strings.ContainsAny(value, "\n\r") {
			res.errorf("env var %q value contains a newline", name)
		}
		if _, ok := reservedEnvNames[name]; ok {
			res.warnf("env var %q shadows a reserved OS variable", name)
		}
		if len(value) > maxEnvValueLen {
			res.warnf("env var %q value exceeds %d characters", name, maxEnvValueLen)
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}
