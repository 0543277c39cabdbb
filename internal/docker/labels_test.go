package docker

import (
	"testing"
)

func TestServiceLabels(t *testing.T) {
	got := ServiceLabels("svc-123", "DOCKER")
	if got[LabelServiceID] != "svc-123" {
		t.Errorf("serviceId label = %q, want svc-123", got[LabelServiceID])
	}
	if got[LabelServiceType] != "DOCKER" {
		t.Errorf("type label = %q, want DOCKER", got[LabelServiceType])
	}
	if len(got) != 2 {
		t.Errorf("ServiceLabels returned %d labels, want 2", len(got))
	}
}

func TestHostRule(t *testing.T) {
	tests := []struct {
		name  string
		hosts []string
		want  string
	}{
		{"single host", []string{"app.helvetia.cloud"}, "Host(`app.helvetia.cloud`)"},
		{"two hosts", []string{"app.helvetia.cloud", "app.localhost"}, "Host(`app.helvetia.cloud`) || Host(`app.localhost`)"},
		{"empty skipped", []string{"app.helvetia.cloud", "", "custom.example.com"}, "Host(`app.helvetia.cloud`) || Host(`custom.example.com`)"},
		{"no hosts", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HostRule(tt.hosts); got != tt.want {
				t.Errorf("HostRule() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTraefikLabels(t *testing.T) {
	got := TraefikLabels("alice-web-prod-app", []string{"app.helvetia.cloud", "app.localhost"}, 3000, "helvetia-net")

	if got["traefik.enable"] != "true" {
		t.Error("traefik.enable missing or not true")
	}
	if got["traefik.docker.network"] != "helvetia-net" {
		t.Errorf("traefik.docker.network = %q, want helvetia-net", got["traefik.docker.network"])
	}
	rule := got["traefik.http.routers.alice-web-prod-app.rule"]
	want := "Host(`app.helvetia.cloud`) || Host(`app.localhost`)"
	if rule != want {
		t.Errorf("router rule = %q, want %q", rule, want)
	}
	if got["traefik.http.routers.alice-web-prod-app.entrypoints"] != "web" {
		t.Error("entrypoints label missing or wrong")
	}
	if got["traefik.http.services.alice-web-prod-app.loadbalancer.server.port"] != "3000" {
		t.Error("loadbalancer port label missing or wrong")
	}
}

func TestMergeLabels(t *testing.T) {
	base := ServiceLabels("svc-1", "STATIC")
	routing := TraefikLabels("r1", []string{"a.example.com"}, 80, "helvetia-net")
	merged := MergeLabels(base, routing, map[string]string{LabelServiceType: "DOCKER"})

	if merged[LabelServiceID] != "svc-1" {
		t.Error("merge dropped serviceId")
	}
	if merged[LabelServiceType] != "DOCKER" {
		t.Error("later map should win on conflict")
	}
	if merged["traefik.enable"] != "true" {
		t.Error("merge dropped traefik labels")
	}
}

func TestServiceIDOf(t *testing.T) {
	if got := ServiceIDOf(map[string]string{LabelServiceID: "svc-9"}); got != "svc-9" {
		t.Errorf("ServiceIDOf = %q, want svc-9", got)
	}
	if got := ServiceIDOf(map[string]string{"com.example.foo": "bar"}); got != "" {
		t.Errorf("ServiceIDOf = %q, want empty for foreign container", got)
	}
}
