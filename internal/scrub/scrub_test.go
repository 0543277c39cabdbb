package scrub

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestScrub(t *testing.T) {
	tests := []struct {
		name    string
		secrets []string
		in      string
		want    string
	}{
		{
			name:    "single secret",
			secrets: []string{"hunter2"},
			in:      "password is hunter2\n",
			want:    "password is ***\n",
		},
		{
			name:    "longest match wins",
			secrets: []string{"secret", "secret-extended"},
			in:      "token=secret-extended",
			want:    "token=***",
		},
		{
			name:    "multiple occurrences",
			secrets: []string{"tok123"},
			in:      "tok123 then tok123 again",
			want:    "*** then *** again",
		},
		{
			name:    "several secrets in one chunk",
			secrets: []string{"alpha-key", "beta-key"},
			in:      "a=alpha-key b=beta-key",
			want:    "a=*** b=***",
		},
		{
			name:    "empty secrets are ignored",
			secrets: []string{"", "real"},
			in:      "the real value",
			want:    "the *** value",
		},
		{
			name:    "no secrets passes through",
			secrets: nil,
			in:      "plain output",
			want:    "plain output",
		},
		{
			name:    "chunk without secret unchanged",
			secrets: []string{"zzz-secret"},
			in:      "nothing to hide here",
			want:    "nothing to hide here",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.secrets).Scrub(tt.in)
			if got != tt.want {
				t.Errorf("Scrub(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFromEnvMasksValuesNotKeys(t *testing.T) {
	s := FromEnv(map[string]string{
		"DATABASE_PASSWORD": "s3cr3tpass",
		"EMPTY":             "",
	})
	got := s.Scrub("DATABASE_PASSWORD=s3cr3tpass set")
	want := "DATABASE_PASSWORD=*** set"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNilScrubberPassesThrough(t *testing.T) {
	var s *Scrubber
	if got := s.Scrub("anything"); got != "anything" {
		t.Errorf("nil scrubber changed input: %q", got)
	}
}

func TestScrubProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("no secret survives in output", prop.ForAll(
		func(secret, prefix, suffix string) bool {
			s := New([]string{secret})
			out := s.Scrub(prefix + secret + suffix)
			return !strings.Contains(out, secret)
		},
		gen.Identifier(),
		gen.NumString(),
		gen.NumString(),
	))

	properties.Property("secret-free chunks are unchanged", prop.ForAll(
		func(secret, text string) bool {
			if strings.Contains(text, secret) {
				return true
			}
			return New([]string{secret}).Scrub(text) == text
		},
		gen.Identifier(),
		gen.NumString(),
	))

	properties.Property("scrubbing is idempotent", prop.ForAll(
		func(secret, text string) bool {
			s := New([]string{secret})
			once := s.Scrub(text)
			return s.Scrub(once) == once
		},
		gen.Identifier(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
