package queue

import (
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/helvetia-cloud/worker/internal/config"
	"github.com/helvetia-cloud/worker/internal/deploy"
	"github.com/helvetia-cloud/worker/internal/logging"
)

func TestDeployTaskPayloadRoundTrips(t *testing.T) {
	job := deploy.Job{
		DeploymentID: "dep-9",
		ServiceID:    "svc-9",
		ServiceName:  "shop",
		Type:         "COMPOSE",
		ComposeFile:  "docker-compose.prod.yml",
		MainService:  "web",
	}
	task, err := NewDeployTask(job)
	if err != nil {
		t.Fatalf("NewDeployTask: %v", err)
	}

	var got deploy.Job
	if err := json.Unmarshal(task.Payload(), &got); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if got.DeploymentID != job.DeploymentID || got.ServiceID != job.ServiceID ||
		got.ComposeFile != job.ComposeFile || got.MainService != job.MainService {
		t.Errorf("payload = %+v, want %+v", got, job)
	}
}

func TestCleanupTaskType(t *testing.T) {
	task := NewCleanupTask()
	if task.Type() != TaskCleanup {
		t.Errorf("type = %q", task.Type())
	}
	if len(task.Payload()) != 0 {
		t.Errorf("cleanup task should carry no payload, got %q", task.Payload())
	}
}

func TestRedisOpt(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"bare address", "localhost:6379", false},
		{"redis url", "redis://localhost:6379/2", false},
		{"redis url with auth", "redis://:secret@redis.internal:6380", false},
		{"unsupported scheme", "http://localhost:6379", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt, err := RedisOpt(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("RedisOpt(%q) succeeded", tt.url)
				}
				return
			}
			if err != nil {
				t.Fatalf("RedisOpt(%q): %v", tt.url, err)
			}
			if opt == nil {
				t.Fatal("nil connection option")
			}
		})
	}
}

func TestRedisOptBareAddress(t *testing.T) {
	opt, err := RedisOpt("redis.internal:6380")
	if err != nil {
		t.Fatalf("RedisOpt: %v", err)
	}
	client, ok := opt.(asynq.RedisClientOpt)
	if !ok {
		t.Fatalf("opt = %T, want RedisClientOpt", opt)
	}
	if client.Addr != "redis.internal:6380" {
		t.Errorf("Addr = %q", client.Addr)
	}
}

func TestNewServerRegistersSchedule(t *testing.T) {
	cfg := &config.Config{
		RedisURL:    "localhost:6379",
		Concurrency: 2,
		CleanupCron: "0 2 * * *",
	}
	h := newTestHandler(&fakeDeployer{}, &fakeCleaner{})
	srv, err := NewServer(cfg, h, logging.New(false, false))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if srv.Inspector() == nil {
		t.Error("nil inspector")
	}
}

func TestNewServerRejectsBadCron(t *testing.T) {
	cfg := &config.Config{
		RedisURL:    "localhost:6379",
		Concurrency: 1,
		CleanupCron: "not a cron line",
	}
	h := newTestHandler(&fakeDeployer{}, &fakeCleaner{})
	if _, err := NewServer(cfg, h, logging.New(false, false)); err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
}
