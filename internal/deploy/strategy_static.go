package deploy

import (
	"context"

	"github.com/helvetia-cloud/worker/internal/dockerfile"
)

// StaticStrategy deploys static sites: a two-stage build producing
// artifacts with the user's build command, served by nginx with SPA
// fallback. The job's startCommand is never used.
type StaticStrategy struct {
	builder *builderRunner
}

func (s *StaticStrategy) CanHandle(serviceType string) bool {
	return serviceType == TypeStatic
}

func (s *StaticStrategy) Deploy(ctx context.Context, job Job, c *Collector) (Result, error) {
	tag := ImageTag(job.ServiceName)
	script := NewScript().
		Echo("Building static site "+job.ServiceName).
		Install("git").
		CloneRepo(job.RepoURL, job.Branch, "/app").
		WriteFile("/app/nginx.conf", dockerfile.NginxSPAConfig).
		WriteFile("/app/Dockerfile", staticFragment(job)).
		BuildImage(tag, "/app", job.EnvVars).
		Echo("Build complete: " + tag)

	if err := s.builder.run(ctx, job, script.String(), c); err != nil {
		return Result{}, err
	}
	return Result{ImageTag: tag}, nil
}

// staticFragment is the two-stage Dockerfile for a static site.
func staticFragment(job Job) string {
	return dockerfile.Static(dockerfile.StaticSite{
		EnvKeys:   envKeys(job.EnvVars),
		BuildCmd:  job.BuildCommand,
		OutputDir: job.StaticOutputDir,
	})
}
