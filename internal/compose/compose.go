// Package compose generates the override file that grafts platform routing
// onto a user's compose project.
package compose

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/helvetia-cloud/worker/internal/docker"
)

// Filenames the platform probes for, in preference order, when the user
// has not named a compose file.
var DefaultFilenames = []string{
	"compose.yaml",
	"compose.yml",
	"docker-compose.yml",
	"docker-compose.yaml",
}

// CandidateFilenames returns the probe order for a project, with the
// user-specified name first when present.
func CandidateFilenames(preferred string) []string {
	if preferred == "" {
		return DefaultFilenames
	}
	out := make([]string, 0, len(DefaultFilenames)+1)
	out = append(out, preferred)
	for _, f := range DefaultFilenames {
		if f != preferred {
			out = append(out, f)
		}
	}
	return out
}

// ProjectName joins the non-empty segments with hyphens. Segments must be
// sanitized by the caller; compose project names reject most punctuation.
func ProjectName(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "-")
}

// Override describes what the platform injects into the user's main
// compose service: routing labels, network membership, env and volumes.
type Override struct {
	ServiceID   string
	ServiceType string
	MainService string
	RouterID    string
	Hosts       []string
	Port        int
	NetworkName string
	Env         map[string]string
	Volumes     []string
}

type overrideFile struct {
	Services map[string]overrideService `yaml:"services"`
	Networks map[string]overrideNetwork `yaml:"networks,omitempty"`
}

type overrideService struct {
	Labels      map[string]string `yaml:"labels,omitempty"`
	Networks    []string          `yaml:"networks,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
	Volumes     []string          `yaml:"volumes,omitempty"`
}

type overrideNetwork struct {
	External bool `yaml:"external"`
}

// YAML renders the override document. Map keys marshal sorted, so output
// is deterministic for a given Override.
func (o Override) YAML() ([]byte, error) {
	if o.MainService == "" {
		return nil, fmt.Errorf("compose override: main service name is empty")
	}

	labels := docker.TraefikLabels(o.RouterID, o.Hosts, o.Port, o.NetworkName)
	labels[docker.LabelServiceID] = o.ServiceID
	if o.ServiceType != "" {
		labels[docker.LabelServiceType] = o.ServiceType
	}

	svc := overrideService{
		Labels: labels,
		// default is the project-private network compose creates implicitly.
		Networks:    []string{o.NetworkName, "default"},
		Environment: o.Env,
		Volumes:     o.Volumes,
	}

	doc := overrideFile{
		Services: map[string]overrideService{o.MainService: svc},
		Networks: map[string]overrideNetwork{o.NetworkName: {External: true}},
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal compose override: %w", err)
	}
	return out, nil
}
