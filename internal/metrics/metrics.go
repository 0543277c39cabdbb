package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DeploymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_deployments_total",
		Help: "Total number of deployments by outcome and service type.",
	}, []string{"status", "service_type"})
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_jobs_processed_total",
		Help: "Total number of queue jobs processed by job name and outcome.",
	}, []string{"job_name", "status"})
	ActiveJobs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "worker_active_jobs",
		Help: "Number of jobs currently being processed by job name.",
	}, []string{"job_name"})
	DeploymentDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "worker_deployment_duration_seconds",
		Help:    "Duration of deployment jobs from claim to terminal status.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
	BuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "worker_build_duration_seconds",
		Help:    "Duration of the build phase by service type.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"service_type"})
	RollbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_rollbacks_total",
		Help: "Total number of rollback attempts by outcome.",
	}, []string{"status"})
	CleanupRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_cleanup_runs_total",
		Help: "Total number of cleanup runs by outcome.",
	}, []string{"status"})
	ServicesReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_services_reaped_total",
		Help: "Total number of tombstoned services permanently deleted.",
	})
	ImagesRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_images_removed_total",
		Help: "Total number of images removed by cleanup.",
	})
	LockAcquireRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_lock_acquire_retries_total",
		Help: "Total number of status lock acquisition retries.",
	})
)
