// Package deploy implements the deployment pipeline: job validation,
// rollback snapshot, strategy dispatch, the blue/green container swap,
// status commit and failure recovery.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Service types the worker can materialize.
const (
	TypeDocker  = "DOCKER"
	TypeStatic  = "STATIC"
	TypeCompose = "COMPOSE"
)

// DatabaseTypes maps every managed database type to its curated image.
// Declared in catalog.go; referenced here for the enumeration.
var serviceTypes = func() []string {
	types := []string{TypeDocker, TypeStatic, TypeCompose}
	for t := range Catalog {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}()

// ServiceTypes returns every known service type, sorted.
func ServiceTypes() []string {
	out := make([]string, len(serviceTypes))
	copy(out, serviceTypes)
	return out
}

// IsDatabaseType reports whether the type is a managed database.
func IsDatabaseType(serviceType string) bool {
	_, ok := Catalog[serviceType]
	return ok
}

// Job is the queue message describing one deployment. Field names mirror
// the JSON payload produced by the API; the envelope is immutable while a
// job is processed.
type Job struct {
	DeploymentID    string            `json:"deploymentId"`
	ServiceID       string            `json:"serviceId"`
	ServiceName     string            `json:"serviceName"`
	Type            string            `json:"type"`
	RepoURL         string            `json:"repoUrl,omitempty"`
	Branch          string            `json:"branch,omitempty"`
	BuildCommand    string            `json:"buildCommand,omitempty"`
	StartCommand    string            `json:"startCommand,omitempty"`
	StaticOutputDir string            `json:"staticOutputDir,omitempty"`
	ComposeFile     string            `json:"composeFile,omitempty"`
	MainService     string            `json:"mainService,omitempty"`
	Port            int               `json:"port,omitempty"`
	EnvVars         map[string]string `json:"envVars,omitempty"`
	Volumes         []string          `json:"volumes,omitempty"`
	CustomDomain    string            `json:"customDomain,omitempty"`
	ProjectName     string            `json:"projectName,omitempty"`
	EnvironmentName string            `json:"environmentName,omitempty"`
	Username        string            `json:"username,omitempty"`
}

// Validate checks the envelope's required identity fields. Body-level
// validation (env vars, dockerfiles) happens in the pipeline.
func (j Job) Validate() error {
	var errs []error
	if j.DeploymentID == "" {
		errs = append(errs, errors.New("deploymentId is required"))
	}
	if j.ServiceID == "" {
		errs = append(errs, errors.New("serviceId is required"))
	}
	if j.ServiceName == "" {
		errs = append(errs, errors.New("serviceName is required"))
	}
	if j.Type == "" {
		errs = append(errs, errors.New("type is required"))
	}
	return errors.Join(errs...)
}

// ComposeFileName resolves the compose file for COMPOSE jobs. Older API
// versions shipped it in buildCommand, so that field doubles as a fallback.
func (j Job) ComposeFileName() string {
	if j.ComposeFile != "" {
		return j.ComposeFile
	}
	return j.BuildCommand
}

// ComposeMainService resolves the routed compose service. startCommand is
// the legacy carrier for the same reason as ComposeFileName.
func (j Job) ComposeMainService() string {
	if j.MainService != "" {
		return j.MainService
	}
	return j.StartCommand
}

// EnvList renders the env map as sorted K=V pairs for a container config.
func (j Job) EnvList() []string {
	if len(j.EnvVars) == 0 {
		return nil
	}
	keys := make([]string, 0, len(j.EnvVars))
	for k := range j.EnvVars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k + "=" + j.EnvVars[k]
	}
	return out
}

// Secrets returns every env value for the scrubber.
func (j Job) Secrets() []string {
	if len(j.EnvVars) == 0 {
		return nil
	}
	out := make([]string, 0, len(j.EnvVars))
	for _, v := range j.EnvVars {
		out = append(out, v)
	}
	return out
}

// Result is a strategy's outcome: the image tag the swap should run, or a
// compose sentinel when the strategy already started the containers itself.
type Result struct {
	ImageTag string
}

// Strategy builds (or pulls) the runnable image for one service type.
// Build output is streamed through the collector as it happens.
type Strategy interface {
	CanHandle(serviceType string) bool
	Deploy(ctx context.Context, job Job, c *Collector) (Result, error)
}

// Failure sentinels. The queue layer maps ErrValidation onto its
// non-retryable path; everything else retries on the queue's schedule.
var (
	ErrValidation  = errors.New("validation failed")
	ErrBuildFailed = errors.New("build failed")
)

// Failure kinds used in logs and the failure header.
const (
	KindValidationEnv        = "VALIDATION_ENV"
	KindValidationDockerfile = "VALIDATION_DOCKERFILE"
	KindBuildFailed          = "BUILD_FAILED"
	KindLockUnavailable      = "LOCK_UNAVAILABLE"
	KindInfrastructure       = "INFRASTRUCTURE"
)

func validationError(kind string, issues []string) error {
	return fmt.Errorf("%s: %s: %w", kind, strings.Join(issues, "; "), ErrValidation)
}
