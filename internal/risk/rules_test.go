package risk

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRules(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultRules_Valid(t *testing.T) {
	rules := DefaultRules()

	require.NoError(t, rules.Validate())
	assert.Equal(t, 0.3, rules.Weights.FraudThreshold)
	assert.Len(t, rules.Probes.RegulatoryCategories, 5)
	assert.Equal(t, 20*time.Second, rules.ProbeBudget)
}

func TestLoadRules_EmptyPathGivesDefaults(t *testing.T) {
	rules, err := LoadRules("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRules(), rules)
}

func TestLoadRules_OverlaysDefaults(t *testing.T) {
	path := writeRules(t, `
suspicious_keywords: [Chollazo, chollazo, "  REBAJAS "]
weights:
  fraud_threshold: 0.4
  keyword_buckets:
    - {min: 1, add: 0.25}
probes:
  page_timeout: 3s
probe_budget: 5s
`)

	rules, err := LoadRules(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"chollazo", "rebajas"}, rules.SuspiciousKeywords)
	assert.Equal(t, 0.4, rules.Weights.FraudThreshold)
	assert.Equal(t, []Bucket{{Min: 1, Add: 0.25}}, rules.Weights.KeywordBuckets)
	assert.Equal(t, 3*time.Second, rules.Probes.PageTimeout)
	assert.Equal(t, 5*time.Second, rules.ProbeBudget)

	// Untouched values keep their defaults.
	def := DefaultRules()
	assert.Equal(t, def.Weights.NoHTTPS, rules.Weights.NoHTTPS)
	assert.Equal(t, def.Probes.LinkTimeout, rules.Probes.LinkTimeout)
	assert.Equal(t, def.Probes.ComplaintTerms, rules.Probes.ComplaintTerms)
}

func TestLoadRules_ChangesVerdict(t *testing.T) {
	path := writeRules(t, "weights:\n  fraud_threshold: 0.35\n")
	rules, err := LoadRules(path)
	require.NoError(t, err)

	target := "http://example-store.com"
	res, err := Aggregate(rules, target, ExtractFeatures(rules, target), healthyProbes(), fixedNow)
	require.NoError(t, err)

	assert.Equal(t, "trustworthy", string(res.Verdict))
}

func TestLoadRules_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad yaml", "weights: [", "parse rules"},
		{"threshold out of range", "weights:\n  fraud_threshold: 1.5\n", "fraud_threshold must be within [0,1]"},
		{"levels not descending", "weights:\n  level_low: 0.9\n", "descending"},
		{"zero budget", "probe_budget: 0s\n", "timeouts must be positive"},
		{"empty category", "probes:\n  regulatory_categories:\n    - name: x\n", "need a name and keywords"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRules(writeRules(t, tt.body))
			assert.ErrorContains(t, err, tt.want)
		})
	}

	_, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read rules")
}

func TestRules_Overrides(t *testing.T) {
	rules := DefaultRules().WithUserAgent("ecomverify/1.0").WithProbeBudget(0)

	assert.Equal(t, "ecomverify/1.0", rules.Probes.UserAgent)
	assert.Equal(t, 20*time.Second, rules.ProbeBudget)
}
