package dockerfile

import "sort"

// Defaults applied when a service does not configure its own values.
const (
	DefaultServiceImage = "node:20-alpine"
	DefaultServicePort  = 3000
	DefaultStaticPort   = 80
	DefaultInstallCmd   = "npm install"
	DefaultStartCmd     = "npm start"
	DefaultStaticServer = "nginx:alpine"
	DefaultOutputDir    = "dist"
)

// ServiceImage describes a single-stage application image.
type ServiceImage struct {
	BaseImage  string
	EnvKeys    []string
	Port       int
	InstallCmd string
	BuildCmd   string // optional, runs after install
	StartCmd   string
}

// Service synthesizes the Dockerfile for an application service. Every env
// key is declared as a build ARG before sources are copied, then re-declared
// as ENV so the value survives into the running container.
func Service(img ServiceImage) string {
	if img.BaseImage == "" {
		img.BaseImage = DefaultServiceImage
	}
	if img.Port == 0 {
		img.Port = DefaultServicePort
	}
	if img.InstallCmd == "" {
		img.InstallCmd = DefaultInstallCmd
	}
	if img.StartCmd == "" {
		img.StartCmd = DefaultStartCmd
	}
	keys := sortedKeys(img.EnvKeys)

	b := NewBuilder().
		From(img.BaseImage).
		Workdir("/app")
	for _, k := range keys {
		b.Arg(k)
	}
	b.Copy(".", ".")
	for _, k := range keys {
		b.EnvFromArg(k)
	}
	b.Run(img.InstallCmd)
	if img.BuildCmd != "" {
		b.Run(img.BuildCmd)
	}
	b.Expose(img.Port)
	b.CmdShell(img.StartCmd)
	return b.String()
}

// StaticSite describes a two-stage static build: a node stage producing
// artifacts and an nginx stage serving them.
type StaticSite struct {
	BaseImage string
	EnvKeys   []string
	BuildCmd  string
	OutputDir string
}

// Static synthesizes the two-stage Dockerfile for a static site. The nginx
// stage expects the SPA config to be present as nginx.conf in the build
// context; builder scripts write it before invoking the build.
func Static(site StaticSite) string {
	if site.BaseImage == "" {
		site.BaseImage = DefaultServiceImage
	}
	if site.BuildCmd == "" {
		site.BuildCmd = "npm run build"
	}
	if site.OutputDir == "" {
		site.OutputDir = DefaultOutputDir
	}
	keys := sortedKeys(site.EnvKeys)

	b := NewBuilder().
		FromAs(site.BaseImage, "build").
		Workdir("/app")
	for _, k := range keys {
		b.Arg(k)
	}
	b.Copy(".", ".")
	for _, k := range keys {
		b.EnvFromArg(k)
	}
	b.Run(DefaultInstallCmd)
	b.Run(site.BuildCmd)

	b.From(DefaultStaticServer)
	b.CopyFromStage("build", "/app/"+site.OutputDir, "/usr/share/nginx/html")
	b.Copy("nginx.conf", "/etc/nginx/conf.d/default.conf")
	b.Expose(DefaultStaticPort)
	b.CmdExec("nginx", "-g", "daemon off;")
	return b.String()
}

// NginxSPAConfig is the server config for static sites: unknown paths fall
// back to index.html so client-side routers keep working.
const NginxSPAConfig = `server {
    listen 80;
    server_name _;
    root /usr/share/nginx/html;
    index index.html;

    location / {
        try_files $uri $uri/ /index.html;
    }
}
`

func sortedKeys(keys []string) []string {
	out := make([]string, len(keys))
	copy(out, keys)
	sort.Strings(out)
	return out
}
