// Package queue is the asynq-backed runtime that claims deployment and
// cleanup jobs, dispatches them to the orchestrator and cleanup runner,
// and schedules the recurring cleanup task.
package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/helvetia-cloud/worker/internal/deploy"
)

// Task type names on the wire. The API side enqueues deployment:process;
// cleanup:run comes from the scheduler (or an operator by hand).
const (
	TaskDeployment = "deployment:process"
	TaskCleanup    = "cleanup:run"
)

// Queue names. Deployments run at the configured concurrency, cleanup is
// strictly serial.
const (
	QueueDeployments = "deployments"
	QueueCleanup     = "service-cleanup"
)

// deployTimeout bounds a single deployment attempt. Builds that hang past
// this are killed and retried by the broker.
const deployTimeout = 30 * time.Minute

// NewDeployTask wraps a job envelope in an asynq task for the deployments
// queue. Completed tasks are retained so the health endpoint can report
// completed counts.
func NewDeployTask(job deploy.Job) (*asynq.Task, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}
	return asynq.NewTask(TaskDeployment, payload,
		asynq.Queue(QueueDeployments),
		asynq.MaxRetry(3),
		asynq.Timeout(deployTimeout),
		asynq.Retention(24*time.Hour),
	), nil
}

// NewCleanupTask builds the task the scheduler enqueues on the cleanup cron.
func NewCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskCleanup, nil,
		asynq.Queue(QueueCleanup),
		asynq.MaxRetry(2),
		asynq.Timeout(deployTimeout),
		asynq.Retention(24*time.Hour),
	)
}

// RedisOpt turns REDIS_URL into an asynq connection option. Accepts both
// redis:// URLs and bare host:port addresses.
func RedisOpt(rawURL string) (asynq.RedisConnOpt, error) {
	if strings.Contains(rawURL, "://") {
		opt, err := asynq.ParseRedisURI(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		return opt, nil
	}
	return asynq.RedisClientOpt{Addr: rawURL}, nil
}

// NewClient returns an enqueue-side client for the same broker the server
// consumes from.
func NewClient(redisURL string) (*asynq.Client, error) {
	opt, err := RedisOpt(redisURL)
	if err != nil {
		return nil, err
	}
	return asynq.NewClient(opt), nil
}
