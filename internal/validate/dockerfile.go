package validate

import (
	"strconv"
	"strings"
)

// Instructions the generated Dockerfiles are allowed to use. This is a
// line-shape check, not a full Dockerfile parser: heredocs and parser
// directives are out of scope because the builders never emit them.
var dockerfileInstructions = map[string]struct{}{
	"FROM": {}, "RUN": {}, "CMD": {}, "LABEL": {}, "EXPOSE": {},
	"ENV": {}, "ADD": {}, "COPY": {}, "ENTRYPOINT": {}, "VOLUME": {},
	"USER": {}, "WORKDIR": {}, "ARG": {}, "ONBUILD": {},
	"STOPSIGNAL": {}, "HEALTHCHECK": {}, "SHELL": {},
}

// Dockerfile validates synthesized Dockerfile text before it is handed to
// a builder container.
func Dockerfile(content string) Result {
	res := Result{Valid: true}

	if strings.TrimSpace(content) == "" {
		res.errorf("dockerfile is empty")
		res.Valid = false
		return res
	}

	var (
		sawFrom       bool
		sawCmd        bool
		sawEntrypoint bool
	)

	for i, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		instr := strings.ToUpper(fields[0])
		args := fields[1:]
		lineNo := i + 1

		if !sawFrom {
			if instr != "FROM" {
				res.errorf("line %d: first instruction must be FROM, got %q", lineNo, fields[0])
			}
			sawFrom = true
		}

		if _, ok := dockerfileInstructions[instr]; !ok {
			res.errorf("line %d: unknown instruction %q", lineNo, fields[0])
			continue
		}

		if len(args) == 0 {
			res.errorf("line %d: %s requires at least one argument", lineNo, instr)
			continue
		}

		switch instr {
		case "ENV":
			// Either ENV K=V (possibly several) or the legacy ENV K V form.
			if len(args) == 1 && !strings.Contains(args[0], "=") {
				res.errorf("line %d: ENV must be K=V or K V", lineNo)
			}
		case "EXPOSE":
			for _, spec := range args {
				port, _, _ := strings.Cut(spec, "/")
				n, err := strconv.Atoi(port)
				if err != nil || n < 1 || n > 65535 {
					res.errorf("line %d: EXPOSE port %q out of range", lineNo, spec)
				}
			}
		case "CMD", "ENTRYPOINT":
			if instr == "CMD" {
				sawCmd = true
			} else {
				sawEntrypoint = true
			}
			rest := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
			shellForm := !strings.HasPrefix(rest, "[")
			if shellForm && (strings.Contains(rest, "&&") || strings.Contains(rest, "|")) {
				res.warnf("line %d: %s uses shell operators; prefer exec form", lineNo, instr)
			}
		}
	}

	if !sawFrom {
		res.errorf("missing FROM instruction")
	}
	if !sawCmd && !sawEntrypoint {
		res.warnf("no CMD or ENTRYPOINT instruction found")
	}

	res.Valid = len(res.Errors) == 0
	return res
}
