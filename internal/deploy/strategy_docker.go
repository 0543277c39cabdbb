package deploy

import (
	"context"
	"fmt"
	"strings"

	"github.com/helvetia-cloud/worker/internal/config"
	"github.com/helvetia-cloud/worker/internal/docker"
	"github.com/helvetia-cloud/worker/internal/dockerfile"
)

// DockerStrategy deploys repository-backed services: clone, synthesize a
// Dockerfile when the repo has none, build. A repoUrl that is not URL-like
// is treated as a pre-built image reference and pulled instead.
type DockerStrategy struct {
	docker  docker.API
	cfg     *config.Config
	builder *builderRunner
}

func (s *DockerStrategy) CanHandle(serviceType string) bool {
	return serviceType == TypeDocker
}

func (s *DockerStrategy) Deploy(ctx context.Context, job Job, c *Collector) (Result, error) {
	if !looksLikeRepoURL(job.RepoURL) {
		return s.pullPrebuilt(ctx, job, c)
	}

	tag := ImageTag(job.ServiceName)
	script := NewScript().
		Echo("Building "+job.ServiceName+" from "+job.RepoURL).
		Install("git").
		CloneRepo(job.RepoURL, job.Branch, "/app").
		WriteFileIfMissing("/app/Dockerfile", dockerFragment(job)).
		BuildImage(tag, "/app", job.EnvVars).
		Echo("Build complete: " + tag)

	if err := s.builder.run(ctx, job, script.String(), c); err != nil {
		return Result{}, err
	}
	return Result{ImageTag: tag}, nil
}

func (s *DockerStrategy) pullPrebuilt(ctx context.Context, job Job, c *Collector) (Result, error) {
	ref := prebuiltRef(job.RepoURL, job.Branch)
	c.Linef("Pulling pre-built image %s", ref)

	var err error
	if strings.HasPrefix(ref, "ghcr.io/") && s.cfg.GHCRToken != "" {
		username := job.Username
		if username == "" {
			username = "helvetia"
		}
		err = s.docker.PullImageWithAuth(ctx, ref, username, s.cfg.GHCRToken)
	} else {
		err = s.docker.PullImage(ctx, ref)
	}
	if err != nil {
		return Result{}, fmt.Errorf("pull %s: %w", ref, err)
	}
	c.Linef("Image %s ready", ref)
	return Result{ImageTag: ref}, nil
}

// dockerFragment is the Dockerfile synthesized for repos that ship none.
func dockerFragment(job Job) string {
	return dockerfile.Service(dockerfile.ServiceImage{
		EnvKeys:  envKeys(job.EnvVars),
		Port:     DefaultPort(job),
		BuildCmd: job.BuildCommand,
		StartCmd: job.StartCommand,
	})
}

func looksLikeRepoURL(s string) bool {
	for _, prefix := range []string{"http://", "https://", "git@", "ssh://"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// prebuiltRef resolves the image reference for a non-repo repoUrl: already
// pinned references pass through, otherwise the branch picks the tag.
func prebuiltRef(repo, branch string) string {
	lastSegment := repo
	if idx := strings.LastIndex(repo, "/"); idx >= 0 {
		lastSegment = repo[idx+1:]
	}
	if strings.Contains(lastSegment, ":") || strings.Contains(lastSegment, "@") {
		return repo
	}
	tag := "latest"
	if branch != "" && branch != "main" {
		tag = branch
	}
	return repo + ":" + tag
}

func envKeys(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
