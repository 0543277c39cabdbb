package deploy

import (
	"fmt"
	"sort"
	"strings"
)

// heredocDelim terminates file payloads inside build scripts. Quoted so
// the shell never expands the payload.
const heredocDelim = "HELVETIA_EOF"

// Script assembles the shell program a builder container runs: install
// tooling, clone, write generated files, build. Errors abort the script
// immediately; the non-zero exit surfaces as a build failure.
type Script struct {
	lines []string
}

func NewScript() *Script {
	s := &Script{}
	return s.raw("set -e")
}

func (s *Script) raw(line string) *Script {
	s.lines = append(s.lines, line)
	return s
}

// Echo prints a progress marker into the build log.
func (s *Script) Echo(msg string) *Script {
	return s.raw("echo " + ShellQuote(msg))
}

// Install adds alpine packages the build needs (git, compose tooling).
func (s *Script) Install(pkgs ...string) *Script {
	return s.raw("apk add --no-cache --quiet " + strings.Join(pkgs, " "))
}

// CloneRepo shallow-clones the repository and enters it.
func (s *Script) CloneRepo(repoURL, branch, dir string) *Script {
	cmd := "git clone --depth 1"
	if branch != "" {
		cmd += " --branch " + ShellQuote(branch)
	}
	cmd += " " + ShellQuote(repoURL) + " " + ShellQuote(dir)
	s.raw(cmd)
	return s.raw("cd " + ShellQuote(dir))
}

// WriteFile writes generated content through a quoted heredoc.
func (s *Script) WriteFile(path, content string) *Script {
	s.raw("cat > " + ShellQuote(path) + " << '" + heredocDelim + "'")
	s.raw(strings.TrimSuffix(content, "\n"))
	return s.raw(heredocDelim)
}

// WriteFileIfMissing writes the file only when the repo does not already
// provide one.
func (s *Script) WriteFileIfMissing(path, content string) *Script {
	s.raw("if [ ! -f " + ShellQuote(path) + " ]; then")
	s.Echo("No " + path + " in repository, generating one")
	s.WriteFile(path, content)
	return s.raw("fi")
}

// BuildImage runs docker build with the job's env vars as build args.
// Keys pass the env validator before any script is generated; values are
// shell-quoted here.
func (s *Script) BuildImage(tag, contextDir string, buildArgs map[string]string) *Script {
	var b strings.Builder
	b.WriteString("docker build -t " + ShellQuote(tag))
	keys := make([]string, 0, len(buildArgs))
	for k := range buildArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(" --build-arg " + k + "=" + ShellQuote(buildArgs[k]))
	}
	b.WriteString(" " + ShellQuote(contextDir))
	return s.raw(b.String())
}

// DetectComposeFile probes candidates in order and exports the winner as
// $COMPOSE_FILE, failing the build when none exists.
func (s *Script) DetectComposeFile(candidates []string) *Script {
	quoted := make([]string, len(candidates))
	for i, c := range candidates {
		quoted[i] = ShellQuote(c)
	}
	s.raw("COMPOSE_FILE=''")
	s.raw("for f in " + strings.Join(quoted, " ") + "; do")
	s.raw(`  if [ -f "$f" ]; then COMPOSE_FILE="$f"; break; fi`)
	s.raw("done")
	s.raw(`if [ -z "$COMPOSE_FILE" ]; then echo 'No compose file found in repository'; exit 1; fi`)
	return s.raw(`echo "Using compose file: $COMPOSE_FILE"`)
}

// ComposeUp brings the project up with the platform override applied.
func (s *Script) ComposeUp(project, overridePath string) *Script {
	return s.raw(fmt.Sprintf(
		`docker compose -p %s -f "$COMPOSE_FILE" -f %s up -d --build --remove-orphans`,
		ShellQuote(project), ShellQuote(overridePath)))
}

func (s *Script) String() string {
	return strings.Join(s.lines, "\n") + "\n"
}

// ShellQuote single-quotes a value for POSIX sh, escaping embedded quotes.
func ShellQuote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
}
