package docker

import (
	"context"
	"fmt"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/moby/moby/client"
)

// VolumeSummary describes a named volume for cleanup decisions.
type VolumeSummary struct {
	Name   string
	Labels map[string]string
}

// EnsureNetwork creates the named bridge network if it does not already
// exist. The platform network is shared with the reverse proxy, so creation
// normally happens once on first worker start.
func (c *Client) EnsureNetwork(ctx context.Context, name string) error {
	_, err := c.api.NetworkInspect(ctx, name, client.NetworkInspectOptions{})
	if err == nil {
		return nil
	}
	if !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("inspect network %s: %w", name, err)
	}
	if _, err := c.api.NetworkCreate(ctx, name, client.NetworkCreateOptions{Driver: "bridge"}); err != nil {
		return fmt.Errorf("create network %s: %w", name, err)
	}
	return nil
}

// ListVolumes returns named volumes matching every given label pair.
func (c *Client) ListVolumes(ctx context.Context, labels map[string]string) ([]VolumeSummary, error) {
	opts := client.VolumeListOptions{}
	if len(labels) > 0 {
		filters := make(client.Filters)
		for k, v := range labels {
			filters.Add("label", fmt.Sprintf("%s=%s", k, v))
		}
		opts.Filters = filters
	}
	result, err := c.api.VolumeList(ctx, opts)
	if err != nil {
		return nil, err
	}
	summaries := make([]VolumeSummary, 0, len(result.Items))
	for _, v := range result.Items {
		summaries = append(summaries, VolumeSummary{Name: v.Name, Labels: v.Labels})
	}
	return summaries, nil
}

// RemoveVolume removes a named volume. A missing volume is treated as
// success so cleanup can re-run safely.
func (c *Client) RemoveVolume(ctx context.Context, name string, force bool) error {
	_, err := c.api.VolumeRemove(ctx, name, client.VolumeRemoveOptions{Force: force})
	if cerrdefs.IsNotFound(err) {
		return nil
	}
	return err
}
