package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/helvetia-cloud/worker/internal/config"
	"github.com/helvetia-cloud/worker/internal/logging"
)

// shutdownDrain is how long in-flight jobs get to finish after SIGTERM.
// Jobs still running after the drain window are requeued by the broker.
const shutdownDrain = 2 * time.Minute

// Server owns the asynq consumer, the cron scheduler for recurring cleanup,
// and an inspector handle for the health surface.
type Server struct {
	srv       *asynq.Server
	scheduler *asynq.Scheduler
	inspector *asynq.Inspector
	mux       *asynq.ServeMux
	log       *logging.Logger
}

// NewServer builds the queue runtime. The deployments queue gets the
// configured concurrency; the cleanup queue always gets a single slot on
// top of it so a cleanup pass never starves deployments.
func NewServer(cfg *config.Config, h *Handler, log *logging.Logger) (*Server, error) {
	opt, err := RedisOpt(cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	alog := &asynqLogger{log: log.Component("asynq")}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.Concurrency + 1,
		Queues: map[string]int{
			QueueDeployments: cfg.Concurrency,
			QueueCleanup:     1,
		},
		Logger:          alog,
		ShutdownTimeout: shutdownDrain,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			log.Error("task failed", "task", task.Type(), "error", err)
		}),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskDeployment, h.HandleDeployment)
	mux.HandleFunc(TaskCleanup, h.HandleCleanup)

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Logger: alog})
	entryID, err := scheduler.Register(cfg.CleanupCron, NewCleanupTask())
	if err != nil {
		return nil, fmt.Errorf("register cleanup schedule %q: %w", cfg.CleanupCron, err)
	}
	log.Info("daily cleanup scheduled", "cron", cfg.CleanupCron, "entry_id", entryID)

	return &Server{
		srv:       srv,
		scheduler: scheduler,
		inspector: asynq.NewInspector(opt),
		mux:       mux,
		log:       log,
	}, nil
}

// Run starts the consumer and scheduler, then blocks until ctx is canceled.
// On cancellation it stops claiming work, drains in-flight jobs and returns.
func (s *Server) Run(ctx context.Context) error {
	if err := s.srv.Start(s.mux); err != nil {
		return fmt.Errorf("start queue server: %w", err)
	}
	if err := s.scheduler.Start(); err != nil {
		s.srv.Shutdown()
		return fmt.Errorf("start cleanup scheduler: %w", err)
	}

	<-ctx.Done()
	s.log.Info("queue runtime draining", "timeout", shutdownDrain)
	s.scheduler.Shutdown()
	s.srv.Shutdown()
	return nil
}

// Inspector exposes queue statistics to the health endpoint.
func (s *Server) Inspector() *asynq.Inspector { return s.inspector }

// asynqLogger routes asynq's internal logging through slog. Fatal maps to
// Error; asynq aborts on its own after calling it.
type asynqLogger struct {
	log *logging.Logger
}

func (l *asynqLogger) Debug(args ...any) { l.log.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...any)  { l.log.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...any)  { l.log.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...any) { l.log.Error(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...any) { l.log.Error(fmt.Sprint(args...)) }
