package docker

import (
	"context"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/network"
)

// API defines the subset of Docker operations used by the worker.
// Implemented by Client for production, and by mocks for testing.
// The adapter never retries; retry policy belongs to callers.
type API interface {
	ListContainers(ctx context.Context, opts ListOptions) ([]container.Summary, error)
	InspectContainer(ctx context.Context, id string) (container.InspectResponse, error)
	CreateContainer(ctx context.Context, name string, cfg *container.Config, hostCfg *container.HostConfig, netCfg *network.NetworkingConfig) (string, error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string, graceSeconds int) error
	RestartContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string) error
	RemoveContainerWithVolumes(ctx context.Context, id string) error
	ContainerLogs(ctx context.Context, id string, lines int) (string, error)
	ExecContainer(ctx context.Context, id string, cmd []string, timeoutSeconds int) (int, string, error)
	ExecContainerStream(ctx context.Context, id string, cmd []string, onChunk func([]byte)) (int, error)

	PullImage(ctx context.Context, refStr string) error
	PullImageWithAuth(ctx context.Context, refStr, username, token string) error
	RemoveImage(ctx context.Context, ref string) error
	TagImage(ctx context.Context, src, target string) error
	ListImages(ctx context.Context) ([]ImageSummary, error)
	PruneImages(ctx context.Context) (ImagePruneResult, error)

	EnsureNetwork(ctx context.Context, name string) error
	ListVolumes(ctx context.Context, labels map[string]string) ([]VolumeSummary, error)
	RemoveVolume(ctx context.Context, name string, force bool) error

	Ping(ctx context.Context) error
	Close() error
}

// Verify Client implements API at compile time.
var _ API = (*Client)(nil)
