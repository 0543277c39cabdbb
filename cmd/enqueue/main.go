// Dev tool to push a deployment job onto the worker's queue without going
// through the API, and optionally tail its build log.
// Usage: go run ./cmd/enqueue -type STATIC -name my-site -repo https://github.com/test/repo
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/helvetia-cloud/worker/internal/deploy"
	"github.com/helvetia-cloud/worker/internal/logbus"
	"github.com/helvetia-cloud/worker/internal/queue"
)

func main() {
	redisURL := flag.String("redis", envOr("REDIS_URL", "redis://localhost:6379"), "redis broker URL")
	serviceType := flag.String("type", "DOCKER", "service type (DOCKER, STATIC, COMPOSE, POSTGRES, ...)")
	name := flag.String("name", "", "service name (required)")
	serviceID := flag.String("service-id", "", "service id (defaults to a fresh uuid)")
	repo := flag.String("repo", "", "repository URL or pre-built image reference")
	branch := flag.String("branch", "main", "branch to build")
	buildCmd := flag.String("build-cmd", "", "build command")
	startCmd := flag.String("start-cmd", "", "start command")
	outputDir := flag.String("output-dir", "dist", "static output directory")
	composeFile := flag.String("compose-file", "", "compose file name")
	mainService := flag.String("main-service", "", "compose service to route")
	port := flag.Int("port", 0, "container port (0 = type default)")
	env := flag.String("env", "", "comma-separated K=V env vars")
	follow := flag.Bool("follow", false, "subscribe to the deployment log topic and tail it")
	flag.Parse()

	if *name == "" {
		flag.Usage()
		os.Exit(2)
	}

	job := deploy.Job{
		DeploymentID:    uuid.NewString(),
		ServiceID:       *serviceID,
		ServiceName:     *name,
		Type:            strings.ToUpper(*serviceType),
		RepoURL:         *repo,
		Branch:          *branch,
		BuildCommand:    *buildCmd,
		StartCommand:    *startCmd,
		StaticOutputDir: *outputDir,
		ComposeFile:     *composeFile,
		MainService:     *mainService,
		Port:            *port,
		EnvVars:         parseEnv(*env),
	}
	if job.ServiceID == "" {
		job.ServiceID = uuid.NewString()
	}
	if err := job.Validate(); err != nil {
		log.Fatalf("invalid job: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// Attach the log subscriber before enqueueing so no chunks are missed.
	var logs <-chan string
	if *follow {
		ropt, err := redis.ParseURL(*redisURL)
		if err != nil {
			log.Fatalf("parse redis URL: %v", err)
		}
		rdb := redis.NewClient(ropt)
		defer rdb.Close()

		sub := rdb.Subscribe(ctx, logbus.Topic(job.DeploymentID))
		defer sub.Close()
		ch := make(chan string, 64)
		go func() {
			defer close(ch)
			for msg := range sub.Channel() {
				ch <- msg.Payload
			}
		}()
		logs = ch
	}

	client, err := queue.NewClient(*redisURL)
	if err != nil {
		log.Fatalf("connect broker: %v", err)
	}
	defer client.Close()

	task, err := queue.NewDeployTask(job)
	if err != nil {
		log.Fatalf("build task: %v", err)
	}
	info, err := client.EnqueueContext(ctx, task)
	if err != nil {
		log.Fatalf("enqueue: %v", err)
	}

	payload, _ := json.Marshal(job)
	fmt.Printf("enqueued %s on %q as task %s\n", job.DeploymentID, info.Queue, info.ID)
	fmt.Printf("payload: %s\n", payload)

	if *follow {
		fmt.Println("--- tailing build log (Ctrl-C to stop) ---")
		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-logs:
				if !ok {
					return
				}
				fmt.Print(chunk)
			}
		}
	}
}

// parseEnv parses comma-separated "K=V" pairs into a map.
func parseEnv(s string) map[string]string {
	if s == "" {
		return nil
	}
	vars := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(kv) == 2 {
			vars[kv[0]] = kv[1]
		}
	}
	return vars
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
