package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/moby/moby/api/pkg/stdcopy"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/network"
	"github.com/moby/moby/client"
)

// ListOptions narrows a container listing. Label filters are an
// intersection: a container must carry every listed pair to match.
type ListOptions struct {
	All    bool              // include stopped containers
	Labels map[string]string // label=value filters
	Status string            // optional state filter, e.g. "running"
}

// ListContainers returns containers matching opts.
func (c *Client) ListContainers(ctx context.Context, opts ListOptions) ([]container.Summary, error) {
	listOpts := client.ContainerListOptions{All: opts.All}
	if len(opts.Labels) > 0 || opts.Status != "" {
		filters := make(client.Filters)
		for k, v := range opts.Labels {
			filters.Add("label", fmt.Sprintf("%s=%s", k, v))
		}
		if opts.Status != "" {
			filters.Add("status", opts.Status)
		}
		listOpts.Filters = filters
	}
	result, err := c.api.ContainerList(ctx, listOpts)
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

// InspectContainer returns full container details by ID.
func (c *Client) InspectContainer(ctx context.Context, id string) (container.InspectResponse, error) {
	result, err := c.api.ContainerInspect(ctx, id, client.ContainerInspectOptions{})
	if err != nil {
		return container.InspectResponse{}, err
	}
	return result.Container, nil
}

// CreateContainer creates a new container and returns its ID.
func (c *Client) CreateContainer(ctx context.Context, name string, cfg *container.Config, hostCfg *container.HostConfig, netCfg *network.NetworkingConfig) (string, error) {
	resp, err := c.api.ContainerCreate(ctx, client.ContainerCreateOptions{
		Name:             name,
		Config:           cfg,
		HostConfig:       hostCfg,
		NetworkingConfig: netCfg,
	})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// StartContainer starts a stopped container.
func (c *Client) StartContainer(ctx context.Context, id string) error {
	_, err := c.api.ContainerStart(ctx, id, client.ContainerStartOptions{})
	return err
}

// StopContainer stops a running container with the given grace period in seconds.
func (c *Client) StopContainer(ctx context.Context, id string, graceSeconds int) error {
	_, err := c.api.ContainerStop(ctx, id, client.ContainerStopOptions{Timeout: &graceSeconds})
	return err
}

// RestartContainer restarts a container.
func (c *Client) RestartContainer(ctx context.Context, id string) error {
	_, err := c.api.ContainerRestart(ctx, id, client.ContainerRestartOptions{})
	return err
}

// RemoveContainer force-removes a container. A missing container is treated
// as success so callers can reap fearlessly during swap and cleanup.
func (c *Client) RemoveContainer(ctx context.Context, id string) error {
	_, err := c.api.ContainerRemove(ctx, id, client.ContainerRemoveOptions{Force: true})
	if cerrdefs.IsNotFound(err) {
		return nil
	}
	return err
}

// RemoveContainerWithVolumes force-removes a container and its anonymous volumes.
func (c *Client) RemoveContainerWithVolumes(ctx context.Context, id string) error {
	_, err := c.api.ContainerRemove(ctx, id, client.ContainerRemoveOptions{Force: true, RemoveVolumes: true})
	if cerrdefs.IsNotFound(err) {
		return nil
	}
	return err
}

// ExecContainer runs a command inside a container and returns exit code + output.
func (c *Client) ExecContainer(ctx context.Context, id string, cmd []string, timeoutSeconds int) (int, string, error) {
	if timeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
		defer cancel()
	}
	var buf bytes.Buffer
	code, err := c.execStream(ctx, id, cmd, func(chunk []byte) {
		buf.Write(chunk)
	})
	return code, buf.String(), err
}

// ExecContainerStream runs a command inside a container, delivering
// demultiplexed output to onChunk in arrival order, and returns the exit
// code. Build strategies use this to stream builder output live.
func (c *Client) ExecContainerStream(ctx context.Context, id string, cmd []string, onChunk func([]byte)) (int, error) {
	return c.execStream(ctx, id, cmd, onChunk)
}

func (c *Client) execStream(ctx context.Context, id string, cmd []string, onChunk func([]byte)) (int, error) {
	execCfg := client.ExecCreateOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	}
	execResp, err := c.api.ExecCreate(ctx, id, execCfg)
	if err != nil {
		return -1, fmt.Errorf("exec create: %w", err)
	}

	attachResp, err := c.api.ExecAttach(ctx, execResp.ID, client.ExecAttachOptions{})
	if err != nil {
		return -1, fmt.Errorf("exec attach: %w", err)
	}
	defer attachResp.Close()

	w := &chunkWriter{fn: onChunk}
	if _, err := stdcopy.StdCopy(w, w, attachResp.Reader); err != nil {
		return -1, fmt.Errorf("exec read: %w", err)
	}

	inspectResp, err := c.api.ExecInspect(ctx, execResp.ID, client.ExecInspectOptions{})
	if err != nil {
		return -1, fmt.Errorf("exec inspect: %w", err)
	}

	return inspectResp.ExitCode, nil
}

// chunkWriter adapts a chunk callback to io.Writer for stdcopy. Both stdout
// and stderr frames land on the same callback, preserving arrival order.
type chunkWriter struct {
	fn func([]byte)
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		cp := make([]byte, len(p))
		copy(cp, p)
		w.fn(cp)
	}
	return len(p), nil
}

// ContainerLogs returns the last N lines of a container's logs.
func (c *Client) ContainerLogs(ctx context.Context, id string, lines int) (string, error) {
	opts := client.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       fmt.Sprintf("%d", lines),
	}
	reader, err := c.api.ContainerLogs(ctx, id, opts)
	if err != nil {
		return "", fmt.Errorf("container logs: %w", err)
	}
	defer reader.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, reader); err != nil {
		// Some containers use raw TTY mode — fall back to direct read.
		reader2, err2 := c.api.ContainerLogs(ctx, id, opts)
		if err2 != nil {
			return "", fmt.Errorf("container logs fallback: %w", err2)
		}
		defer reader2.Close()
		raw, _ := io.ReadAll(reader2)
		return string(raw), nil
	}

	// Merge stdout and stderr.
	if stderr.Len() > 0 {
		stdout.WriteString(stderr.String())
	}
	return stdout.String(), nil
}
