package deploy

import (
	"context"
	"fmt"

	"github.com/helvetia-cloud/worker/internal/docker"
)

// DatabaseStrategy provisions managed databases. Nothing is built: the
// curated image for the type is pulled and handed to the swap, which
// attaches the fixed data volume.
type DatabaseStrategy struct {
	docker docker.API
}

func (s *DatabaseStrategy) CanHandle(serviceType string) bool {
	return IsDatabaseType(serviceType)
}

func (s *DatabaseStrategy) Deploy(ctx context.Context, job Job, c *Collector) (Result, error) {
	img, ok := Catalog[job.Type]
	if !ok {
		return Result{}, fmt.Errorf("no curated image for type %s", job.Type)
	}

	c.Linef("Pulling %s image %s", job.Type, img.Ref)
	if err := s.docker.PullImage(ctx, img.Ref); err != nil {
		return Result{}, fmt.Errorf("pull %s: %w", img.Ref, err)
	}
	c.Linef("Image %s ready", img.Ref)
	return Result{ImageTag: img.Ref}, nil
}
