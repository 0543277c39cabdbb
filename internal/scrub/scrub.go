// Package scrub masks secret values in build and deployment logs.
package scrub

import (
	"sort"
	"strings"
)

// Mask replaces every matched secret in the output.
const Mask = "***"

// Scrubber rewrites log chunks so that no configured secret value survives
// into the log bus or the database. Matching is longest-first so a secret
// that contains another secret as a substring is masked whole.
type Scrubber struct {
	replacer *strings.Replacer
}

// New builds a Scrubber from raw secret values. Empty strings are dropped,
// duplicates collapse. A Scrubber with no secrets passes chunks through.
func New(secrets []string) *Scrubber {
	seen := make(map[string]struct{}, len(secrets))
	uniq := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		uniq = append(uniq, s)
	}
	if len(uniq) == 0 {
		return &Scrubber{}
	}

	// Longest first; ties broken lexically so construction is deterministic.
	sort.Slice(uniq, func(i, j int) bool {
		if len(uniq[i]) != len(uniq[j]) {
			return len(uniq[i]) > len(uniq[j])
		}
		return uniq[i] < uniq[j]
	})

	pairs := make([]string, 0, len(uniq)*2)
	for _, s := range uniq {
		pairs = append(pairs, s, Mask)
	}
	return &Scrubber{replacer: strings.NewReplacer(pairs...)}
}

// FromEnv builds a Scrubber from the values of an env-var map. Keys are not
// secret; only values are masked.
func FromEnv(env map[string]string) *Scrubber {
	if len(env) == 0 {
		return &Scrubber{}
	}
	values := make([]string, 0, len(env))
	for _, v := range env {
		values = append(values, v)
	}
	return New(values)
}

// Scrub masks every secret occurrence in the chunk. Chunks are processed
// independently; a secret split across two chunks is not detected.
func (s *Scrubber) Scrub(chunk string) string {
	if s == nil || s.replacer == nil {
		return chunk
	}
	return s.replacer.Replace(chunk)
}
