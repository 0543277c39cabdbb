package deploy

import (
	"math/rand/v2"
	"strings"
)

// FallbackName stands in when a name sanitizes down to nothing.
const FallbackName = "service"

const dnsLabelMax = 63

// SanitizeDNS lowers a free-form name into a DNS label: lowercase
// alphanumerics and single hyphens, no edge hyphens, at most 63 chars.
// Idempotent; an input that reduces to nothing yields FallbackName.
func SanitizeDNS(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastHyphen := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if len(out) > dnsLabelMax {
		out = strings.TrimRight(out[:dnsLabelMax], "-")
	}
	if out == "" {
		return FallbackName
	}
	return out
}

// sanitizeOptional keeps absent segments absent instead of substituting
// the fallback name.
func sanitizeOptional(s string) string {
	if s == "" {
		return ""
	}
	return SanitizeDNS(s)
}

const suffixChars = "abcdefghijklmnopqrstuvwxyz0123456789"

// Suffix returns the random 6-character tail that disambiguates the
// replacement container from its predecessors.
func Suffix() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = suffixChars[rand.IntN(len(suffixChars))]
	}
	return string(b)
}

// ContainerName builds the replacement container's name.
func ContainerName(serviceName, suffix string) string {
	return SanitizeDNS(serviceName) + "-" + suffix
}

// VolumeName is the fixed named-volume convention for managed databases.
func VolumeName(serviceName string) string {
	return "helvetia-data-" + SanitizeDNS(serviceName)
}

// ImageTag is the tag convention for rebuilt services.
func ImageTag(serviceName string) string {
	return "helvetia/" + SanitizeDNS(serviceName) + ":latest"
}

const composeTagPrefix = "compose:"

// ComposeTag is the sentinel image tag a compose deployment records.
func ComposeTag(serviceName string) string {
	return composeTagPrefix + serviceName
}

// IsComposeTag reports whether a tag is the compose sentinel, meaning no
// single-container swap applies.
func IsComposeTag(tag string) bool {
	return strings.HasPrefix(tag, composeTagPrefix)
}

// Hosts assembles the routable hostnames for a service: the platform
// subdomain, a localhost alias for development, the optional custom domain,
// and project-scoped forms when the job carries project metadata.
func Hosts(job Job, platformDomain string) []string {
	name := SanitizeDNS(job.ServiceName)
	hosts := []string{
		name + "." + platformDomain,
		name + ".localhost",
	}
	if job.CustomDomain != "" {
		hosts = append(hosts, job.CustomDomain)
	}
	if project := SanitizeDNS(job.ProjectName); job.ProjectName != "" {
		hosts = append(hosts, project+"-"+name+"."+platformDomain)
		if job.Username != "" && job.EnvironmentName != "" {
			long := SanitizeDNS(job.Username) + "." + project + "." +
				SanitizeDNS(job.EnvironmentName) + "." + name + "." + platformDomain
			hosts = append(hosts, long)
		}
	}
	return hosts
}

// RouterID is the traefik identifier for a service's router and
// load-balancer labels. Absent segments are elided.
func RouterID(job Job) string {
	segments := make([]string, 0, 4)
	for _, s := range []string{job.Username, job.ProjectName, job.EnvironmentName, job.ServiceName} {
		if s == "" {
			continue
		}
		segments = append(segments, SanitizeDNS(s))
	}
	if len(segments) == 0 {
		return FallbackName
	}
	return strings.Join(segments, "-")
}
