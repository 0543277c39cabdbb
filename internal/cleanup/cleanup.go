// Package cleanup reclaims what deleted services leave behind, and prunes
// images no deployment references anymore. One Run is one pass; scheduling
// belongs to the queue.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/moby/moby/api/types/container"

	"github.com/helvetia-cloud/worker/internal/clock"
	"github.com/helvetia-cloud/worker/internal/config"
	"github.com/helvetia-cloud/worker/internal/deploy"
	"github.com/helvetia-cloud/worker/internal/docker"
	"github.com/helvetia-cloud/worker/internal/events"
	"github.com/helvetia-cloud/worker/internal/logging"
	"github.com/helvetia-cloud/worker/internal/metrics"
	"github.com/helvetia-cloud/worker/internal/store"
)

const stopGraceSeconds = 5

// Docker is the runtime slice cleanup drives. *docker.Client satisfies it.
type Docker interface {
	ListContainers(ctx context.Context, opts docker.ListOptions) ([]container.Summary, error)
	StopContainer(ctx context.Context, id string, graceSeconds int) error
	RemoveContainerWithVolumes(ctx context.Context, id string) error
	ListVolumes(ctx context.Context, labels map[string]string) ([]docker.VolumeSummary, error)
	RemoveVolume(ctx context.Context, name string, force bool) error
	RemoveImage(ctx context.Context, ref string) error
	PruneImages(ctx context.Context) (docker.ImagePruneResult, error)
}

// Store is the slice of the database cleanup reads and deletes.
type Store interface {
	ListTombstonedServices(ctx context.Context, cutoff time.Time) ([]store.Service, error)
	ListImageTags(ctx context.Context, serviceID string) ([]string, error)
	ListStaleImageTags(ctx context.Context, cutoff time.Time) ([]string, error)
	LatestSuccessImageTags(ctx context.Context) ([]string, error)
	DeleteServiceCascade(ctx context.Context, serviceID string) error
}

// Runner executes cleanup passes.
type Runner struct {
	docker Docker
	store  Store
	events *events.Bus
	cfg    *config.Config
	clk    clock.Clock
	log    *logging.Logger
}

func New(d Docker, st Store, bus *events.Bus, cfg *config.Config, clk clock.Clock, log *logging.Logger) *Runner {
	return &Runner{docker: d, store: st, events: bus, cfg: cfg, clk: clk, log: log}
}

// Result summarizes one cleanup pass.
type Result struct {
	ServicesDeleted int
	ImagesRemoved   int
	SpaceReclaimed  int64
}

// Run performs one full pass: reap tombstoned services, then prune images.
// Failures on individual resources are logged and skipped so one wedged
// container cannot keep everything else alive; only a failure to enumerate
// work is returned, and the queue retries the whole pass.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	var res Result
	status := "success"

	deleted, err := r.reapTombstones(ctx)
	res.ServicesDeleted = deleted
	if err != nil {
		status = "failed"
	}

	if perr := r.pruneImages(ctx, &res); perr != nil {
		status = "failed"
		err = errors.Join(err, perr)
	}

	metrics.CleanupRunsTotal.WithLabelValues(status).Inc()
	r.events.Publish(events.Event{
		Type:      events.EventCleanupCompleted,
		Timestamp: r.clk.Now(),
	})
	r.log.Info("cleanup pass finished",
		"services_deleted", res.ServicesDeleted,
		"images_removed", res.ImagesRemoved,
		"space_reclaimed_bytes", res.SpaceReclaimed,
		"status", status)
	return res, err
}

// reapTombstones permanently deletes services whose tombstone has aged past
// the retention window.
func (r *Runner) reapTombstones(ctx context.Context) (int, error) {
	cutoff := r.clk.Now().AddDate(0, 0, -r.cfg.ServiceTombstoneDays)
	services, err := r.store.ListTombstonedServices(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list tombstoned services: %w", err)
	}

	deleted := 0
	for _, svc := range services {
		if err := r.reapService(ctx, svc); err != nil {
			r.log.Error("service cleanup failed", "service", svc.ID, "name", svc.Name, "error", err)
			continue
		}
		deleted++
		metrics.ServicesReaped.Inc()
		r.log.Info("service permanently deleted", "service", svc.ID, "name", svc.Name)
	}
	return deleted, nil
}

// reapService tears down one service: containers, volumes, images, rows.
// Runtime failures are logged and skipped; only the row delete is allowed
// to fail the service, so it stays tombstoned and the next pass retries.
func (r *Runner) reapService(ctx context.Context, svc store.Service) error {
	r.removeContainers(ctx, docker.ListOptions{
		All:    true,
		Labels: map[string]string{docker.LabelServiceID: svc.ID},
	})
	if svc.Type == deploy.TypeCompose {
		// Compose containers carry the project label, not the service label.
		r.removeContainers(ctx, docker.ListOptions{
			All:    true,
			Labels: map[string]string{docker.LabelComposeProject: svc.Name},
		})
	}
	r.removeVolumes(ctx, svc)
	r.removeImages(ctx, svc)
	return r.store.DeleteServiceCascade(ctx, svc.ID)
}

func (r *Runner) removeContainers(ctx context.Context, opts docker.ListOptions) {
	containers, err := r.docker.ListContainers(ctx, opts)
	if err != nil {
		r.log.Warn("cleanup: listing containers failed", "error", err)
		return
	}
	for _, ctr := range containers {
		if err := r.docker.StopContainer(ctx, ctr.ID, stopGraceSeconds); err != nil {
			r.log.Warn("cleanup: container stop failed", "container", ctr.ID, "error", err)
		}
		if err := r.docker.RemoveContainerWithVolumes(ctx, ctr.ID); err != nil {
			r.log.Warn("cleanup: container remove failed", "container", ctr.ID, "error", err)
		}
	}
}

func (r *Runner) removeVolumes(ctx context.Context, svc store.Service) {
	named := deploy.VolumeName(svc.Name)
	if err := r.docker.RemoveVolume(ctx, named, true); err != nil {
		r.log.Warn("cleanup: volume remove failed", "volume", named, "error", err)
	}
	if svc.Type != deploy.TypeCompose {
		return
	}
	vols, err := r.docker.ListVolumes(ctx, map[string]string{docker.LabelComposeProject: svc.Name})
	if err != nil {
		r.log.Warn("cleanup: listing compose volumes failed", "service", svc.Name, "error", err)
		return
	}
	for _, v := range vols {
		if err := r.docker.RemoveVolume(ctx, v.Name, true); err != nil {
			r.log.Warn("cleanup: compose volume remove failed", "volume", v.Name, "error", err)
		}
	}
}

// removeImages force-removes every image tag the service's deployments
// recorded. The docker client treats missing images as success; remaining
// errors are aggregated into one warning and never block the row delete.
func (r *Runner) removeImages(ctx context.Context, svc store.Service) {
	tags, err := r.store.ListImageTags(ctx, svc.ID)
	if err != nil {
		r.log.Warn("cleanup: listing image tags failed", "service", svc.ID, "error", err)
		return
	}
	var errs []error
	for _, tag := range tags {
		if tag == "" || deploy.IsComposeTag(tag) {
			continue
		}
		if err := r.docker.RemoveImage(ctx, tag); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", tag, err))
			continue
		}
		metrics.ImagesRemoved.Inc()
	}
	if len(errs) > 0 {
		r.log.Warn("cleanup: some images not removed", "service", svc.ID, "error", errors.Join(errs...))
	}
}

// pruneImages is the second phase: dangling images, then tags only stale
// deployments still reference.
func (r *Runner) pruneImages(ctx context.Context, res *Result) error {
	if r.cfg.CleanupDanglingImages {
		report, err := r.docker.PruneImages(ctx)
		if err != nil {
			r.log.Warn("cleanup: dangling image prune failed", "error", err)
		} else {
			res.ImagesRemoved += report.ImagesDeleted
			res.SpaceReclaimed += report.SpaceReclaimed
			metrics.ImagesRemoved.Add(float64(report.ImagesDeleted))
		}
	}
	if !r.cfg.CleanupOldImages {
		return nil
	}

	cutoff := r.clk.Now().AddDate(0, 0, -r.cfg.ImageRetentionDays)
	stale, err := r.store.ListStaleImageTags(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list stale image tags: %w", err)
	}
	protected, err := r.protectedTags(ctx)
	if err != nil {
		return err
	}

	for _, tag := range stale {
		if tag == "" || deploy.IsComposeTag(tag) || protected[tag] {
			continue
		}
		if err := r.docker.RemoveImage(ctx, tag); err != nil {
			r.log.Warn("cleanup: stale image remove failed", "image", tag, "error", err)
			continue
		}
		res.ImagesRemoved++
		metrics.ImagesRemoved.Inc()
		r.log.Debug("cleanup: removed stale image", "image", tag)
	}
	return nil
}

// protectedTags is every reference cleanup must never remove: whatever a
// container currently runs, plus each service's newest successful
// deployment so instant rollbacks stay possible.
func (r *Runner) protectedTags(ctx context.Context) (map[string]bool, error) {
	protected := make(map[string]bool)

	containers, err := r.docker.ListContainers(ctx, docker.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	for _, ctr := range containers {
		if ctr.Image != "" {
			protected[ctr.Image] = true
		}
	}

	latest, err := r.store.LatestSuccessImageTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("list latest success tags: %w", err)
	}
	for _, tag := range latest {
		protected[tag] = true
	}
	return protected, nil
}
