package docker

import (
	"fmt"
	"strings"
)

// Labels written onto every container the worker creates. The reverse proxy
// discovers a service's containers by the serviceId label; cleanup uses the
// same key to find strays long after the deployment that made them.
const (
	LabelServiceID   = "helvetia.serviceId"
	LabelServiceType = "helvetia.type"

	// Written by compose for every container in a project; the worker reads
	// it to find compose-managed containers and volumes during cleanup.
	LabelComposeProject = "com.docker.compose.project"
)

// ServiceLabels returns the identity labels for a service's containers.
func ServiceLabels(serviceID, serviceType string) map[string]string {
	return map[string]string{
		LabelServiceID:   serviceID,
		LabelServiceType: serviceType,
	}
}

// HostRule renders a Traefik router rule matching any of the given hosts:
// Host(`a`) || Host(`b`). Empty hosts are skipped.
func HostRule(hosts []string) string {
	parts := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("Host(`%s`)", h))
	}
	return strings.Join(parts, " || ")
}

// TraefikLabels returns the routing label block for a container: router rule,
// entrypoint, and load-balancer port, keyed by routerID, plus the shared
// network hint so Traefik dials the right endpoint.
func TraefikLabels(routerID string, hosts []string, port int, networkName string) map[string]string {
	return map[string]string{
		"traefik.enable":         "true",
		"traefik.docker.network": networkName,
		fmt.Sprintf("traefik.http.routers.%s.rule", routerID):                      HostRule(hosts),
		fmt.Sprintf("traefik.http.routers.%s.entrypoints", routerID):               "web",
		fmt.Sprintf("traefik.http.services.%s.loadbalancer.server.port", routerID): fmt.Sprintf("%d", port),
	}
}

// MergeLabels combines label maps left to right; later maps win on conflict.
func MergeLabels(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// ServiceIDOf reads the service identity label from a container's labels.
// Returns empty string when the container was not created by the worker.
func ServiceIDOf(labels map[string]string) string {
	return labels[LabelServiceID]
}
