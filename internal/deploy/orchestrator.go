package deploy

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/network"

	"github.com/helvetia-cloud/worker/internal/clock"
	"github.com/helvetia-cloud/worker/internal/config"
	"github.com/helvetia-cloud/worker/internal/docker"
	"github.com/helvetia-cloud/worker/internal/events"
	"github.com/helvetia-cloud/worker/internal/locks"
	"github.com/helvetia-cloud/worker/internal/logging"
	"github.com/helvetia-cloud/worker/internal/metrics"
	"github.com/helvetia-cloud/worker/internal/store"
	"github.com/helvetia-cloud/worker/internal/validate"
)

const oldStopGraceSeconds = 10

// Store is the slice of the database the pipeline writes. *store.Store
// satisfies it.
type Store interface {
	SetDeploymentBuilding(ctx context.Context, id string) error
	FinishDeployment(ctx context.Context, id, status, imageTag, logs string) error
	SetServiceStatus(ctx context.Context, id, status string) error
}

// StatusLocker serializes the final service-status write across workers.
// *locks.Locker satisfies it.
type StatusLocker interface {
	WithLock(ctx context.Context, serviceID string, fn func(ctx context.Context) error) error
}

// Deps carries everything the orchestrator and its strategies touch, so
// wiring happens in one place and tests can swap fakes.
type Deps struct {
	Docker  docker.API
	Store   Store
	Locker  StatusLocker
	LogBus  LogPublisher
	Events  *events.Bus
	Factory *Factory
	Config  *config.Config
	Clock   clock.Clock
	Log     *logging.Logger
}

// Orchestrator drives one deployment job through validation, snapshot,
// build, swap and commit, recovering to the previous state on failure.
type Orchestrator struct {
	deps Deps
}

func NewOrchestrator(deps Deps) *Orchestrator {
	return &Orchestrator{deps: deps}
}

// pipeline is the mutable state of one deployment run.
type pipeline struct {
	job            Job
	c              *Collector
	rollback       []container.Summary
	suffix         string
	newContainerID string
	imageTag       string
	stack          string
}

// Deploy processes one job to completion. The returned error, if any, has
// already been recovered from (rollback, FAILED status, log blob); it is
// rethrown so the queue can apply its retry policy.
func (o *Orchestrator) Deploy(ctx context.Context, job Job) error {
	d := o.deps
	start := d.Clock.Now()
	p := &pipeline{
		job: job,
		c:   NewCollector(ctx, job.DeploymentID, job.Secrets(), d.LogBus),
	}

	d.Log.Info("deployment started",
		"deployment", job.DeploymentID, "service", job.ServiceName, "type", job.Type)
	d.Events.Publish(events.Event{
		Type:         events.EventDeploymentStarted,
		DeploymentID: job.DeploymentID,
		ServiceID:    job.ServiceID,
		ServiceName:  job.ServiceName,
		ServiceType:  job.Type,
		Timestamp:    d.Clock.Now(),
	})

	err := o.runPipeline(ctx, p)
	elapsed := d.Clock.Since(start)

	if err != nil {
		kind := classify(err)
		o.recoverFailure(ctx, p, err)
		metrics.DeploymentsTotal.WithLabelValues("failed", job.Type).Inc()
		metrics.DeploymentDuration.Observe(elapsed.Seconds())
		d.Events.Publish(events.Event{
			Type:         events.EventDeploymentFailed,
			DeploymentID: job.DeploymentID,
			ServiceID:    job.ServiceID,
			ServiceName:  job.ServiceName,
			ServiceType:  job.Type,
			Error:        p.c.Scrub(err.Error()),
			Timestamp:    d.Clock.Now(),
		})
		d.Log.Error("deployment failed",
			"deployment", job.DeploymentID, "service", job.ServiceName,
			"kind", kind, "elapsed", elapsed, "error", err)
		return err
	}

	metrics.DeploymentsTotal.WithLabelValues("success", job.Type).Inc()
	metrics.DeploymentDuration.Observe(elapsed.Seconds())
	d.Events.Publish(events.Event{
		Type:         events.EventDeploymentSucceeded,
		DeploymentID: job.DeploymentID,
		ServiceID:    job.ServiceID,
		ServiceName:  job.ServiceName,
		ServiceType:  job.Type,
		Timestamp:    d.Clock.Now(),
	})
	d.Log.Info("deployment succeeded",
		"deployment", job.DeploymentID, "service", job.ServiceName,
		"image", p.imageTag, "elapsed", elapsed)
	return nil
}

func (o *Orchestrator) runPipeline(ctx context.Context, p *pipeline) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.stack = string(debug.Stack())
			err = fmt.Errorf("panic during deployment: %v", r)
		}
	}()

	if err := o.validateJob(p); err != nil {
		return err
	}
	if err := o.snapshot(ctx, p); err != nil {
		return err
	}
	if err := o.build(ctx, p); err != nil {
		return err
	}
	if !IsComposeTag(p.imageTag) {
		if err := o.swap(ctx, p); err != nil {
			return err
		}
	}
	return o.commit(ctx, p)
}

// validateJob fails fast before any side effect: envelope shape, env vars,
// the synthesized Dockerfile fragment, and strategy existence.
func (o *Orchestrator) validateJob(p *pipeline) error {
	job := p.job
	if err := job.Validate(); err != nil {
		return fmt.Errorf("job envelope: %v: %w", err, ErrValidation)
	}
	if _, err := o.deps.Factory.Get(job.Type); err != nil {
		return fmt.Errorf("%v: %w", err, ErrValidation)
	}

	res := validate.Env(job.EnvVars)
	for _, w := range res.Warnings {
		p.c.Linef("Warning: %s", w)
	}
	if !res.Valid {
		return validationError(KindValidationEnv, res.Errors)
	}

	var fragment string
	switch job.Type {
	case TypeStatic:
		fragment = staticFragment(job)
	case TypeDocker:
		if looksLikeRepoURL(job.RepoURL) {
			fragment = dockerFragment(job)
		}
	}
	if fragment != "" {
		if res := validate.Dockerfile(fragment); !res.Valid {
			return validationError(KindValidationDockerfile, res.Errors)
		}
	}
	return nil
}

// snapshot claims the deployment row and records the running containers
// that form the rollback set.
func (o *Orchestrator) snapshot(ctx context.Context, p *pipeline) error {
	if err := o.deps.Store.SetDeploymentBuilding(ctx, p.job.DeploymentID); err != nil {
		return fmt.Errorf("claim deployment: %w", err)
	}
	running, err := o.deps.Docker.ListContainers(ctx, docker.ListOptions{
		Status: "running",
		Labels: map[string]string{docker.LabelServiceID: p.job.ServiceID},
	})
	if err != nil {
		return fmt.Errorf("snapshot rollback set: %w", err)
	}
	p.rollback = running
	p.c.Linef("Snapshot: %d running container(s) saved for rollback", len(running))
	return nil
}

func (o *Orchestrator) build(ctx context.Context, p *pipeline) error {
	strategy, err := o.deps.Factory.Get(p.job.Type)
	if err != nil {
		return err
	}
	buildStart := o.deps.Clock.Now()
	res, err := strategy.Deploy(ctx, p.job, p.c)
	if err != nil {
		return fmt.Errorf("build %s: %w", p.job.ServiceName, err)
	}
	metrics.BuildDuration.WithLabelValues(p.job.Type).
		Observe(o.deps.Clock.Since(buildStart).Seconds())
	p.imageTag = res.ImageTag
	return nil
}

// swap starts the replacement container and only then retires the old
// generation, so the service never has zero running instances.
func (o *Orchestrator) swap(ctx context.Context, p *pipeline) error {
	d := o.deps
	job := p.job
	p.suffix = Suffix()
	name := ContainerName(job.ServiceName, p.suffix)
	port := DefaultPort(job)
	labels := docker.MergeLabels(
		docker.ServiceLabels(job.ServiceID, job.Type),
		docker.TraefikLabels(RouterID(job), Hosts(job, d.Config.PlatformDomain), port, d.Config.PlatformNetwork),
	)

	if err := d.Docker.EnsureNetwork(ctx, d.Config.PlatformNetwork); err != nil {
		return fmt.Errorf("ensure network %s: %w", d.Config.PlatformNetwork, err)
	}

	ctrCfg := &container.Config{
		Image:  p.imageTag,
		Env:    job.EnvList(),
		Labels: labels,
	}
	hostCfg := &container.HostConfig{
		Binds:         volumeBinds(job),
		RestartPolicy: container.RestartPolicy{Name: "always"},
		Resources: container.Resources{
			Memory:   d.Config.MemoryLimitBytes,
			NanoCPUs: d.Config.CPUNanoCPUs,
		},
	}
	netCfg := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			d.Config.PlatformNetwork: {},
		},
	}

	p.c.Linef("Creating replacement container %s from %s", name, p.imageTag)
	id, err := d.Docker.CreateContainer(ctx, name, ctrCfg, hostCfg, netCfg)
	if err != nil {
		return fmt.Errorf("create replacement: %w", err)
	}
	p.newContainerID = id

	if err := d.Docker.StartContainer(ctx, id); err != nil {
		return fmt.Errorf("start replacement: %w", err)
	}
	p.c.Linef("Replacement container running")

	// Old generation: anything with the service label whose name lacks the
	// fresh suffix. Failures here are logged but never fail the deployment.
	old, err := d.Docker.ListContainers(ctx, docker.ListOptions{
		All:    true,
		Labels: map[string]string{docker.LabelServiceID: job.ServiceID},
	})
	if err != nil {
		d.Log.Warn("listing previous containers failed", "service", job.ServiceID, "error", err)
		return nil
	}
	for _, ctr := range old {
		if ctr.ID == id || anyNameContains(ctr.Names, p.suffix) {
			continue
		}
		if err := d.Docker.StopContainer(ctx, ctr.ID, oldStopGraceSeconds); err != nil {
			d.Log.Warn("old container stop failed", "container", shortID(ctr.ID), "error", err)
		}
		if err := d.Docker.RemoveContainer(ctx, ctr.ID); err != nil {
			d.Log.Warn("old container remove failed", "container", shortID(ctr.ID), "error", err)
		}
		p.c.Linef("Retired previous container %s", shortID(ctr.ID))
	}
	return nil
}

// commit persists the deployment outcome, then flips the service status
// under the status lock.
func (o *Orchestrator) commit(ctx context.Context, p *pipeline) error {
	d := o.deps
	blob := p.c.Blob(d.Config.MaxLogSizeChars)
	if err := d.Store.FinishDeployment(ctx, p.job.DeploymentID, store.DeploymentSuccess, p.imageTag, blob); err != nil {
		return fmt.Errorf("persist deployment: %w", err)
	}
	err := d.Locker.WithLock(ctx, p.job.ServiceID, func(ctx context.Context) error {
		return d.Store.SetServiceStatus(ctx, p.job.ServiceID, store.ServiceRunning)
	})
	if err != nil {
		return fmt.Errorf("commit service status: %w", err)
	}
	return nil
}

// recoverFailure restores the previous state after a failed run: removes
// the half-started replacement, restarts the rollback set, persists the
// FAILED outcome. Recovery errors are logged, never returned, so they
// cannot mask the original failure.
func (o *Orchestrator) recoverFailure(ctx context.Context, p *pipeline, cause error) {
	d := o.deps
	job := p.job
	// Rollback proceeds even when the job's context is already dead.
	ctx = context.WithoutCancel(ctx)

	if p.newContainerID != "" {
		if err := d.Docker.StopContainer(ctx, p.newContainerID, builderStopGraceSeconds); err != nil {
			d.Log.Warn("replacement stop failed", "container", shortID(p.newContainerID), "error", err)
		}
		if err := d.Docker.RemoveContainer(ctx, p.newContainerID); err != nil {
			d.Log.Warn("replacement remove failed", "container", shortID(p.newContainerID), "error", err)
		}
	}

	restored := 0
	for _, ctr := range p.rollback {
		info, err := d.Docker.InspectContainer(ctx, ctr.ID)
		if err == nil && info.State != nil && info.State.Running {
			restored++
			continue
		}
		if err := d.Docker.StartContainer(ctx, ctr.ID); err != nil {
			d.Log.Error("rollback start failed", "container", shortID(ctr.ID), "error", err)
			p.c.Linef("Rollback failure: container %s could not be restarted: %v", shortID(ctr.ID), err)
			continue
		}
		restored++
		p.c.Linef("Rolled back to container %s", shortID(ctr.ID))
	}

	blob := p.c.FailureBlob(cause, p.stack, d.Config.MaxLogSizeChars)
	if err := d.Store.FinishDeployment(ctx, job.DeploymentID, store.DeploymentFailed, "", blob); err != nil {
		d.Log.Error("persisting failed deployment failed", "deployment", job.DeploymentID, "error", err)
	}

	target := store.ServiceFailed
	if restored > 0 {
		target = store.ServiceRunning
	}
	err := d.Locker.WithLock(ctx, job.ServiceID, func(ctx context.Context) error {
		return d.Store.SetServiceStatus(ctx, job.ServiceID, target)
	})
	if err != nil {
		// Another job may hold the lock; a stale status is acceptable here.
		d.Log.Error("service status write failed during recovery", "service", job.ServiceID, "error", err)
	}

	if len(p.rollback) > 0 {
		status := "success"
		if restored < len(p.rollback) {
			status = "failed"
		}
		metrics.RollbacksTotal.WithLabelValues(status).Inc()
		d.Events.Publish(events.Event{
			Type:         events.EventRollbackPerformed,
			DeploymentID: job.DeploymentID,
			ServiceID:    job.ServiceID,
			ServiceName:  job.ServiceName,
			ServiceType:  job.Type,
			Timestamp:    d.Clock.Now(),
		})
	}
}

// classify maps an error onto the failure taxonomy for logs and events.
func classify(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		if strings.Contains(err.Error(), KindValidationDockerfile) {
			return KindValidationDockerfile
		}
		return KindValidationEnv
	case errors.Is(err, ErrBuildFailed):
		return KindBuildFailed
	case errors.Is(err, locks.ErrNotAcquired):
		return KindLockUnavailable
	default:
		return KindInfrastructure
	}
}

// volumeBinds assembles the replacement container's binds: the fixed data
// volume for database types plus any user-declared volumes. A bare path is
// backed by the service's named volume.
func volumeBinds(job Job) []string {
	var binds []string
	if img, ok := Catalog[job.Type]; ok {
		binds = append(binds, VolumeName(job.ServiceName)+":"+img.DataPath)
	}
	for _, v := range job.Volumes {
		if v == "" {
			continue
		}
		if strings.Contains(v, ":") {
			binds = append(binds, v)
		} else {
			binds = append(binds, VolumeName(job.ServiceName)+":"+v)
		}
	}
	return binds
}

func anyNameContains(names []string, sub string) bool {
	for _, n := range names {
		if strings.Contains(n, sub) {
			return true
		}
	}
	return false
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
