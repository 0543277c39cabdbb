package docker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/moby/moby/client"
)

// ImageSummary describes a local image for cleanup decisions.
type ImageSummary struct {
	ID       string
	RepoTags []string
	Size     int64
	Created  int64
	InUse    bool
}

// ImagePruneResult reports the outcome of a dangling-image prune.
type ImagePruneResult struct {
	ImagesDeleted  int
	SpaceReclaimed int64
}

// PullImage pulls an image by reference, waiting for the pull to complete.
func (c *Client) PullImage(ctx context.Context, refStr string) error {
	resp, err := c.api.ImagePull(ctx, refStr, client.ImagePullOptions{})
	if err != nil {
		return err
	}
	return resp.Wait(ctx)
}

// PullImageWithAuth pulls an image using registry credentials, waiting for
// the pull to complete. Used for GHCR references carrying a platform token.
func (c *Client) PullImageWithAuth(ctx context.Context, refStr, username, token string) error {
	auth, err := encodeRegistryAuth(username, token)
	if err != nil {
		return fmt.Errorf("encode registry auth: %w", err)
	}
	resp, err := c.api.ImagePull(ctx, refStr, client.ImagePullOptions{RegistryAuth: auth})
	if err != nil {
		return err
	}
	return resp.Wait(ctx)
}

// encodeRegistryAuth produces the X-Registry-Auth header payload:
// base64url-encoded JSON credentials.
func encodeRegistryAuth(username, password string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(payload), nil
}

// RemoveImage force-removes an image by reference or ID, pruning untagged
// children. A missing image is treated as success.
func (c *Client) RemoveImage(ctx context.Context, ref string) error {
	_, err := c.api.ImageRemove(ctx, ref, client.ImageRemoveOptions{Force: true, PruneChildren: true})
	if cerrdefs.IsNotFound(err) {
		return nil
	}
	return err
}

// TagImage applies a new tag to an existing image.
func (c *Client) TagImage(ctx context.Context, src, target string) error {
	_, err := c.api.ImageTag(ctx, client.ImageTagOptions{Source: src, Target: target})
	return err
}

// ListImages returns all images with their tags and usage status. An image
// is in use when any container, running or stopped, was created from it.
func (c *Client) ListImages(ctx context.Context) ([]ImageSummary, error) {
	result, err := c.api.ImageList(ctx, client.ImageListOptions{All: false})
	if err != nil {
		return nil, err
	}

	containers, err := c.api.ContainerList(ctx, client.ContainerListOptions{All: true})
	if err != nil {
		return nil, err
	}
	usedImages := make(map[string]bool)
	for _, cont := range containers.Items {
		usedImages[cont.ImageID] = true
	}

	summaries := make([]ImageSummary, 0, len(result.Items))
	for _, img := range result.Items {
		summaries = append(summaries, ImageSummary{
			ID:       img.ID,
			RepoTags: img.RepoTags,
			Size:     img.Size,
			Created:  img.Created,
			InUse:    usedImages[img.ID],
		})
	}
	return summaries, nil
}

// PruneImages removes dangling (untagged, unused) images.
func (c *Client) PruneImages(ctx context.Context) (ImagePruneResult, error) {
	report, err := c.api.ImagePrune(ctx, client.ImagePruneOptions{})
	if err != nil {
		return ImagePruneResult{}, err
	}
	return ImagePruneResult{
		ImagesDeleted:  len(report.Report.ImagesDeleted),
		SpaceReclaimed: int64(report.Report.SpaceReclaimed), //nolint:gosec // space reclaimed won't exceed int64 max
	}, nil
}
