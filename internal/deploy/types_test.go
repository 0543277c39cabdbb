package deploy

import (
	"encoding/json"
	"slices"
	"strings"
	"testing"
)

func TestJobValidate(t *testing.T) {
	good := Job{DeploymentID: "d", ServiceID: "s", ServiceName: "n", Type: TypeDocker}
	if err := good.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}

	missing := Job{ServiceName: "n"}
	err := missing.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"deploymentId", "serviceId", "type"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not name %s", err, want)
		}
	}
}

func TestJobUnmarshalsAPIPayload(t *testing.T) {
	payload := `{
		"deploymentId": "dep-42",
		"serviceId": "svc-42",
		"serviceName": "shop",
		"type": "COMPOSE",
		"repoUrl": "https://github.com/acme/shop",
		"branch": "main",
		"buildCommand": "docker-compose.prod.yml",
		"startCommand": "web",
		"port": 8080,
		"envVars": {"KEY": "value"},
		"volumes": ["/data"],
		"customDomain": "shop.example.com",
		"projectName": "acme",
		"environmentName": "prod",
		"username": "alice"
	}`
	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if job.DeploymentID != "dep-42" || job.Type != TypeCompose || job.Port != 8080 {
		t.Errorf("job = %+v", job)
	}
	if job.EnvVars["KEY"] != "value" || job.CustomDomain != "shop.example.com" {
		t.Errorf("job = %+v", job)
	}
}

func TestComposeLegacyCarriers(t *testing.T) {
	// Older control planes shipped the compose file in buildCommand and the
	// main service in startCommand.
	legacy := Job{BuildCommand: "compose.prod.yml", StartCommand: "web"}
	if got := legacy.ComposeFileName(); got != "compose.prod.yml" {
		t.Errorf("ComposeFileName = %q", got)
	}
	if got := legacy.ComposeMainService(); got != "web" {
		t.Errorf("ComposeMainService = %q", got)
	}

	// Dedicated fields win when present.
	modern := Job{ComposeFile: "compose.yaml", MainService: "api", BuildCommand: "x", StartCommand: "y"}
	if got := modern.ComposeFileName(); got != "compose.yaml" {
		t.Errorf("ComposeFileName = %q", got)
	}
	if got := modern.ComposeMainService(); got != "api" {
		t.Errorf("ComposeMainService = %q", got)
	}
}

func TestEnvListSortedPairs(t *testing.T) {
	job := Job{EnvVars: map[string]string{"Z": "26", "A": "1", "M": "13"}}
	want := []string{"A=1", "M=13", "Z=26"}
	if got := job.EnvList(); !slices.Equal(got, want) {
		t.Errorf("EnvList = %v, want %v", got, want)
	}
	if got := (Job{}).EnvList(); got != nil {
		t.Errorf("empty EnvList = %v", got)
	}
}

func TestSecretsAreEnvValues(t *testing.T) {
	job := Job{EnvVars: map[string]string{"DB_PASSWORD": "hunter2", "PORT": "8080"}}
	secrets := job.Secrets()
	slices.Sort(secrets)
	if !slices.Equal(secrets, []string{"8080", "hunter2"}) {
		t.Errorf("Secrets = %v", secrets)
	}
}
