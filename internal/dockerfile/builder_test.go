package dockerfile

import (
	"strings"
	"testing"

	"github.com/helvetia-cloud/worker/internal/validate"
)

func lineIndex(lines []string, prefix string) int {
	for i, l := range lines {
		if strings.HasPrefix(l, prefix) {
			return i
		}
	}
	return -1
}

func TestServiceDockerfile(t *testing.T) {
	out := Service(ServiceImage{
		EnvKeys:  []string{"PORT", "API_KEY"},
		StartCmd: "node server.js",
	})
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")

	if lines[0] != "FROM node:20-alpine" {
		t.Errorf("first line = %q", lines[0])
	}

	copyIdx := lineIndex(lines, "COPY . .")
	if copyIdx == -1 {
		t.Fatal("no COPY . . instruction")
	}
	for _, key := range []string{"API_KEY", "PORT"} {
		argIdx := lineIndex(lines, "ARG "+key)
		envIdx := lineIndex(lines, "ENV "+key+"=$"+key)
		if argIdx == -1 || argIdx > copyIdx {
			t.Errorf("ARG %s must precede COPY (arg=%d copy=%d)", key, argIdx, copyIdx)
		}
		if envIdx == -1 || envIdx < copyIdx {
			t.Errorf("ENV %s must follow COPY (env=%d copy=%d)", key, envIdx, copyIdx)
		}
	}

	if !strings.Contains(out, "EXPOSE 3000") {
		t.Error("missing default EXPOSE 3000")
	}
	want := `CMD ["sh", "-c", "node server.js"]`
	if !strings.Contains(out, want) {
		t.Errorf("missing exec-form CMD %q in:\n%s", want, out)
	}

	if res := validate.Dockerfile(out); !res.Valid {
		t.Errorf("generated dockerfile fails validation: %v", res.Errors)
	}
}

func TestServiceDockerfileWithBuildCmd(t *testing.T) {
	out := Service(ServiceImage{BuildCmd: "npm run compile", Port: 8080})
	if !strings.Contains(out, "RUN npm run compile") {
		t.Error("missing build command")
	}
	if !strings.Contains(out, "EXPOSE 8080") {
		t.Error("missing configured port")
	}
}

func TestStaticDockerfile(t *testing.T) {
	out := Static(StaticSite{OutputDir: "build", BuildCmd: "yarn build"})

	if !strings.Contains(out, "FROM node:20-alpine AS build") {
		t.Error("missing build stage")
	}
	if !strings.Contains(out, "FROM nginx:alpine") {
		t.Error("missing runtime stage")
	}
	if !strings.Contains(out, "COPY --from=build /app/build /usr/share/nginx/html") {
		t.Errorf("artifact copy wrong:\n%s", out)
	}
	if !strings.Contains(out, "EXPOSE 80") {
		t.Error("missing EXPOSE 80")
	}
	if !strings.Contains(out, `CMD ["nginx", "-g", "daemon off;"]`) {
		t.Error("missing nginx CMD")
	}
	if res := validate.Dockerfile(out); !res.Valid {
		t.Errorf("generated dockerfile fails validation: %v", res.Errors)
	}
}

func TestEnvQuoting(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"plain", `ENV KEY="plain"`},
		{`with "quotes"`, `ENV KEY="with \"quotes\""`},
		{"$(rm -rf /)", `ENV KEY="\$(rm -rf /)"`},
		{`back\slash`, `ENV KEY="back\\slash"`},
	}
	for _, tt := range tests {
		got := strings.TrimSpace(NewBuilder().Env("KEY", tt.value).String())
		if got != tt.want {
			t.Errorf("Env(%q) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestNginxSPAConfig(t *testing.T) {
	if !strings.Contains(NginxSPAConfig, "try_files $uri $uri/ /index.html;") {
		t.Error("missing SPA fallback")
	}
}
