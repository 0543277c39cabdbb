package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/helvetia-cloud/worker/internal/cleanup"
	"github.com/helvetia-cloud/worker/internal/deploy"
	"github.com/helvetia-cloud/worker/internal/logging"
	"github.com/helvetia-cloud/worker/internal/metrics"
)

// Deployer runs one deployment job to a terminal status.
type Deployer interface {
	Deploy(ctx context.Context, job deploy.Job) error
}

// Cleaner runs one full cleanup pass.
type Cleaner interface {
	Run(ctx context.Context) (cleanup.Result, error)
}

// Handler adapts the orchestrator and cleanup runner to asynq's handler
// contract. Validation failures are marked non-retryable; everything else
// propagates so the broker applies its retry policy.
type Handler struct {
	deployer     Deployer
	cleaner      Cleaner
	textfilePath string
	log          *logging.Logger
}

// NewHandler wires the two job processors. textfilePath may be empty, in
// which case no metrics textfile is written.
func NewHandler(d Deployer, c Cleaner, textfilePath string, log *logging.Logger) *Handler {
	return &Handler{deployer: d, cleaner: c, textfilePath: textfilePath, log: log}
}

// HandleDeployment processes one deployment:process task.
func (h *Handler) HandleDeployment(ctx context.Context, t *asynq.Task) error {
	metrics.ActiveJobs.WithLabelValues(TaskDeployment).Inc()
	defer metrics.ActiveJobs.WithLabelValues(TaskDeployment).Dec()

	var job deploy.Job
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		metrics.JobsProcessedTotal.WithLabelValues(TaskDeployment, "failed").Inc()
		// A payload that does not parse will never parse; do not retry.
		return fmt.Errorf("unmarshal deployment payload: %v: %w", err, asynq.SkipRetry)
	}

	h.log.Info("deployment job claimed",
		"deployment_id", job.DeploymentID,
		"service_id", job.ServiceID,
		"service_type", job.Type)

	err := h.deployer.Deploy(ctx, job)
	h.writeTextfile()

	switch {
	case err == nil:
		metrics.JobsProcessedTotal.WithLabelValues(TaskDeployment, "success").Inc()
		return nil
	case errors.Is(err, deploy.ErrValidation):
		metrics.JobsProcessedTotal.WithLabelValues(TaskDeployment, "failed").Inc()
		h.log.Warn("deployment rejected by validation",
			"deployment_id", job.DeploymentID, "error", err)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	default:
		metrics.JobsProcessedTotal.WithLabelValues(TaskDeployment, "failed").Inc()
		return fmt.Errorf("deployment %s: %w", job.DeploymentID, err)
	}
}

// HandleCleanup processes one cleanup:run task.
func (h *Handler) HandleCleanup(ctx context.Context, _ *asynq.Task) error {
	metrics.ActiveJobs.WithLabelValues(TaskCleanup).Inc()
	defer metrics.ActiveJobs.WithLabelValues(TaskCleanup).Dec()

	res, err := h.cleaner.Run(ctx)
	h.writeTextfile()
	if err != nil {
		metrics.JobsProcessedTotal.WithLabelValues(TaskCleanup, "failed").Inc()
		return fmt.Errorf("cleanup run: %w", err)
	}

	metrics.JobsProcessedTotal.WithLabelValues(TaskCleanup, "success").Inc()
	h.log.Info("cleanup job finished",
		"services_deleted", res.ServicesDeleted,
		"images_removed", res.ImagesRemoved,
		"space_reclaimed_bytes", res.SpaceReclaimed)
	return nil
}

func (h *Handler) writeTextfile() {
	if h.textfilePath == "" {
		return
	}
	if err := metrics.WriteTextfile(h.textfilePath); err != nil {
		h.log.Warn("metrics textfile write failed", "path", h.textfilePath, "error", err)
	}
}
