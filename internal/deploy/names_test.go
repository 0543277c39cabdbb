package deploy

import (
	"slices"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestSanitizeDNS(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"lowercase passthrough", "myapp", "myapp"},
		{"uppercase folded", "MyApp", "myapp"},
		{"digits kept", "app2", "app2"},
		{"spaces collapse", "My Cool App", "my-cool-app"},
		{"specials collapse to one hyphen", "a__b!!c", "a-b-c"},
		{"existing hyphens kept", "my-app", "my-app"},
		{"edge hyphens trimmed", "--hello--", "hello"},
		{"unicode dropped", "café app", "caf-app"},
		{"empty falls back", "", FallbackName},
		{"only specials falls back", "!!!", FallbackName},
		{"long name truncated", strings.Repeat("a", 80), strings.Repeat("a", 63)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeDNS(tt.in); got != tt.want {
				t.Errorf("SanitizeDNS(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeDNSProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	isLabel := func(s string) bool {
		if s == "" || len(s) > 63 {
			return false
		}
		if strings.HasPrefix(s, "-") || strings.HasSuffix(s, "-") || strings.Contains(s, "--") {
			return false
		}
		for _, r := range s {
			if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
				return false
			}
		}
		return true
	}

	properties.Property("always yields a DNS label", prop.ForAll(
		func(s string) bool { return isLabel(SanitizeDNS(s)) },
		gen.AnyString(),
	))

	properties.Property("idempotent", prop.ForAll(
		func(s string) bool {
			once := SanitizeDNS(s)
			return SanitizeDNS(once) == once
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestSuffix(t *testing.T) {
	seen := make(map[string]bool)
	for range 20 {
		s := Suffix()
		if len(s) != 6 {
			t.Fatalf("Suffix() = %q, want 6 chars", s)
		}
		for _, r := range s {
			if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
				t.Fatalf("Suffix() = %q contains %q", s, r)
			}
		}
		seen[s] = true
	}
	if len(seen) < 2 {
		t.Error("20 suffixes produced no variation")
	}
}

func TestNameConventions(t *testing.T) {
	if got := ContainerName("My App", "abc123"); got != "my-app-abc123" {
		t.Errorf("ContainerName = %q", got)
	}
	if got := VolumeName("Orders DB"); got != "helvetia-data-orders-db" {
		t.Errorf("VolumeName = %q", got)
	}
	if got := ImageTag("My App"); got != "helvetia/my-app:latest" {
		t.Errorf("ImageTag = %q", got)
	}
	if got := ComposeTag("shop"); got != "compose:shop" {
		t.Errorf("ComposeTag = %q", got)
	}
	if !IsComposeTag("compose:shop") || IsComposeTag("helvetia/shop:latest") {
		t.Error("IsComposeTag misclassifies")
	}
}

func TestHosts(t *testing.T) {
	tests := []struct {
		name string
		job  Job
		want []string
	}{
		{
			name: "bare service",
			job:  Job{ServiceName: "shop"},
			want: []string{"shop.helvetia.cloud", "shop.localhost"},
		},
		{
			name: "custom domain appended",
			job:  Job{ServiceName: "shop", CustomDomain: "www.example.com"},
			want: []string{"shop.helvetia.cloud", "shop.localhost", "www.example.com"},
		},
		{
			name: "project metadata adds scoped forms",
			job: Job{
				ServiceName:     "shop",
				ProjectName:     "Acme Store",
				EnvironmentName: "prod",
				Username:        "alice",
			},
			want: []string{
				"shop.helvetia.cloud",
				"shop.localhost",
				"acme-store-shop.helvetia.cloud",
				"alice.acme-store.prod.shop.helvetia.cloud",
			},
		},
		{
			name: "project without user skips the long form",
			job:  Job{ServiceName: "shop", ProjectName: "acme"},
			want: []string{"shop.helvetia.cloud", "shop.localhost", "acme-shop.helvetia.cloud"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Hosts(tt.job, "helvetia.cloud")
			if !slices.Equal(got, tt.want) {
				t.Errorf("Hosts = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRouterID(t *testing.T) {
	tests := []struct {
		name string
		job  Job
		want string
	}{
		{"all segments", Job{Username: "Alice", ProjectName: "Acme Store", EnvironmentName: "prod", ServiceName: "shop"}, "alice-acme-store-prod-shop"},
		{"absent segments elided", Job{ServiceName: "shop"}, "shop"},
		{"project only", Job{ProjectName: "acme", ServiceName: "shop"}, "acme-shop"},
		{"nothing at all", Job{}, FallbackName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RouterID(tt.job); got != tt.want {
				t.Errorf("RouterID = %q, want %q", got, tt.want)
			}
		})
	}
}
