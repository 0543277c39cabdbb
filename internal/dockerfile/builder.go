// Package dockerfile synthesizes the Dockerfile text and server config the
// build strategies feed into builder containers. Emitting through a typed
// builder keeps instruction order fixed and user values safely quoted.
package dockerfile

import (
	"fmt"
	"strconv"
	"strings"
)

// Builder accumulates Dockerfile instructions in call order.
type Builder struct {
	lines []string
}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) add(line string) *Builder {
	b.lines = append(b.lines, line)
	return b
}

func (b *Builder) From(image string) *Builder { return b.add("FROM " + image) }

func (b *Builder) FromAs(image, stage string) *Builder {
	return b.add(fmt.Sprintf("FROM %s AS %s", image, stage))
}

func (b *Builder) Workdir(dir string) *Builder { return b.add("WORKDIR " + dir) }

func (b *Builder) Arg(name string) *Builder { return b.add("ARG " + name) }

// Env emits ENV with the value double-quoted and escaped, so user-supplied
// values cannot break out of the assignment.
func (b *Builder) Env(key, value string) *Builder {
	return b.add(fmt.Sprintf("ENV %s=%s", key, quoteEnvValue(value)))
}

// EnvFromArg re-declares a build ARG as a runtime ENV of the same name.
func (b *Builder) EnvFromArg(key string) *Builder {
	return b.add(fmt.Sprintf("ENV %s=$%s", key, key))
}

func (b *Builder) Copy(src, dest string) *Builder {
	return b.add(fmt.Sprintf("COPY %s %s", src, dest))
}

func (b *Builder) CopyFromStage(stage, src, dest string) *Builder {
	return b.add(fmt.Sprintf("COPY --from=%s %s %s", stage, src, dest))
}

func (b *Builder) Run(cmd string) *Builder { return b.add("RUN " + cmd) }

func (b *Builder) Expose(port int) *Builder {
	return b.add("EXPOSE " + strconv.Itoa(port))
}

// CmdExec emits CMD in exec form.
func (b *Builder) CmdExec(args ...string) *Builder {
	return b.add("CMD " + execForm(args))
}

// CmdShell wraps a user shell command in exec form via sh -c.
func (b *Builder) CmdShell(command string) *Builder {
	return b.CmdExec("sh", "-c", command)
}

func (b *Builder) String() string {
	return strings.Join(b.lines, "\n") + "\n"
}

func execForm(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = strconv.Quote(a)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func quoteEnvValue(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`)
	return `"` + r.Replace(v) + `"`
}
