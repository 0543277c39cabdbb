package deploy

import (
	"context"
	"fmt"

	"github.com/helvetia-cloud/worker/internal/compose"
	"github.com/helvetia-cloud/worker/internal/config"
)

// composeOverridePath is where the builder writes the platform override
// before invoking compose.
const composeOverridePath = "/tmp/helvetia-override.yml"

// ComposeStrategy deploys multi-container projects through the user's own
// compose file plus a platform override that wires routing onto the main
// service. Compose owns the containers; the orchestrator skips its swap.
type ComposeStrategy struct {
	cfg     *config.Config
	builder *builderRunner
}

func (s *ComposeStrategy) CanHandle(serviceType string) bool {
	return serviceType == TypeCompose
}

func (s *ComposeStrategy) Deploy(ctx context.Context, job Job, c *Collector) (Result, error) {
	main := job.ComposeMainService()
	if main == "" {
		return Result{}, fmt.Errorf("compose job for %s names no main service", job.ServiceName)
	}

	override := compose.Override{
		ServiceID:   job.ServiceID,
		ServiceType: job.Type,
		MainService: main,
		RouterID:    RouterID(job),
		Hosts:       Hosts(job, s.cfg.PlatformDomain),
		Port:        DefaultPort(job),
		NetworkName: s.cfg.PlatformNetwork,
		Env:         job.EnvVars,
		Volumes:     job.Volumes,
	}
	yml, err := override.YAML()
	if err != nil {
		return Result{}, err
	}

	project := compose.ProjectName(
		sanitizeOptional(job.ProjectName),
		sanitizeOptional(job.EnvironmentName),
		SanitizeDNS(job.ServiceName),
	)

	script := NewScript().
		Echo("Deploying compose project "+project).
		Install("git", "docker-cli-compose").
		CloneRepo(job.RepoURL, job.Branch, "/app").
		DetectComposeFile(compose.CandidateFilenames(job.ComposeFileName())).
		WriteFile(composeOverridePath, string(yml)).
		ComposeUp(project, composeOverridePath).
		Echo("Compose deployment complete")

	if err := s.builder.run(ctx, job, script.String(), c); err != nil {
		return Result{}, err
	}
	return Result{ImageTag: ComposeTag(job.ServiceName)}, nil
}
