package deploy

import (
	"context"
	"fmt"

	"github.com/moby/moby/api/types/container"

	"github.com/helvetia-cloud/worker/internal/config"
	"github.com/helvetia-cloud/worker/internal/docker"
	"github.com/helvetia-cloud/worker/internal/logging"
)

// LabelBuilder marks builder sidecars. The value is the service id the
// builder works for; deliberately a different key than the service label
// so snapshots and swaps never see builders.
const LabelBuilder = "helvetia.builder"

const builderStopGraceSeconds = 5

// BuilderBinds returns the builder container's bind mounts: the daemon
// socket, or nothing at all when a socket proxy carries the connection.
// No other host path is ever mounted into a builder.
func BuilderBinds(socketProxy bool) []string {
	if socketProxy {
		return nil
	}
	return []string{"/var/run/docker.sock:/var/run/docker.sock"}
}

// builderRunner executes build scripts inside short-lived builder
// containers created from the configured client image.
type builderRunner struct {
	docker docker.API
	cfg    *config.Config
	log    *logging.Logger
}

// run creates the builder, streams the script's output into the collector,
// and tears the builder down on every exit path. A non-zero script exit
// maps to ErrBuildFailed; teardown errors are logged, never returned.
func (r *builderRunner) run(ctx context.Context, job Job, script string, c *Collector) error {
	name := "helvetia-builder-" + ContainerName(job.ServiceName, Suffix())

	if err := r.docker.PullImage(ctx, r.cfg.BuilderImage); err != nil {
		r.log.Warn("builder image pull failed, trying local copy",
			"image", r.cfg.BuilderImage, "error", err)
	}

	var env []string
	if r.cfg.SocketProxyMode() {
		env = append(env, "DOCKER_HOST="+r.cfg.DockerHost)
	}

	ctrCfg := &container.Config{
		Image:  r.cfg.BuilderImage,
		Cmd:    []string{"tail", "-f", "/dev/null"},
		Env:    env,
		Labels: map[string]string{LabelBuilder: job.ServiceID},
	}
	hostCfg := &container.HostConfig{
		Binds: BuilderBinds(r.cfg.SocketProxyMode()),
	}

	id, err := r.docker.CreateContainer(ctx, name, ctrCfg, hostCfg, nil)
	if err != nil {
		return fmt.Errorf("create builder: %w", err)
	}
	defer r.teardown(context.WithoutCancel(ctx), id)

	if err := r.docker.StartContainer(ctx, id); err != nil {
		return fmt.Errorf("start builder: %w", err)
	}

	exit, err := r.docker.ExecContainerStream(ctx, id, []string{"sh", "-c", script}, func(chunk []byte) {
		c.Chunk(string(chunk))
	})
	if err != nil {
		return fmt.Errorf("builder stream: %w", err)
	}
	if exit != 0 {
		return fmt.Errorf("builder exited with code %d: %w", exit, ErrBuildFailed)
	}
	return nil
}

func (r *builderRunner) teardown(ctx context.Context, id string) {
	if err := r.docker.StopContainer(ctx, id, builderStopGraceSeconds); err != nil {
		r.log.Warn("builder stop failed", "container", id, "error", err)
	}
	if err := r.docker.RemoveContainer(ctx, id); err != nil {
		r.log.Warn("builder remove failed", "container", id, "error", err)
	}
}
