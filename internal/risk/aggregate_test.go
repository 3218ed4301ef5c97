package risk

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecomverify/internal/domain"
	"ecomverify/internal/probe"
)

var fixedNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

// healthyProbes is a shop with a working terms page, some regulatory
// mentions, full contact details and nothing suspicious.
func healthyProbes() []domain.ProbeResult {
	return []domain.ProbeResult{
		{Probe: probe.NameTerms, Score: probe.TermsScoreWorking, Signals: map[string]any{
			probe.SignalHasTerms: true, probe.SignalFunctionalTerms: true,
		}},
		{Probe: probe.NameRegulatory, Score: 0.4, Signals: map[string]any{probe.SignalMatchedCategories: 2}},
		{Probe: probe.NameContact, Score: 1},
		{Probe: probe.NameComplaints, Signals: map[string]any{probe.SignalComplaintTerms: 0, probe.SignalFlaggedSections: 0}},
		{Probe: probe.NameBrokenLinks, Signals: map[string]any{probe.SignalBrokenLinks: 0}},
	}
}

func replace(results []domain.ProbeResult, r domain.ProbeResult) []domain.ProbeResult {
	out := make([]domain.ProbeResult, len(results))
	copy(out, results)
	for i := range out {
		if out[i].Probe == r.Probe {
			out[i] = r
		}
	}
	return out
}

func messages(res domain.AnalysisResult, sev domain.Severity) []string {
	var out []string
	for _, e := range res.Evidence {
		if e.Severity == sev {
			out = append(out, e.Message)
		}
	}
	return out
}

func anyContains(list []string, sub string) bool {
	for _, s := range list {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func TestAggregate_CleanSite(t *testing.T) {
	rules := DefaultRules()
	target := "https://example-store.com"

	res, err := Aggregate(rules, target, ExtractFeatures(rules, target), healthyProbes(), fixedNow)
	require.NoError(t, err)

	assert.Equal(t, domain.VerdictTrustworthy, res.Verdict)
	assert.Zero(t, res.RiskScore)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Equal(t, domain.RiskVeryLow, res.RiskLevel)
	assert.False(t, res.StrictRuleFired)
	assert.True(t, res.VerificationsCompleted)
	assert.Empty(t, messages(res, domain.SeverityBlocking))
	assert.NotEmpty(t, messages(res, domain.SeverityConfirming))
	assert.Len(t, res.Probes, 5)
	assert.Equal(t, fixedNow, res.AnalyzedAt)
	// Only the decision summary.
	require.Len(t, res.Reasons, 1)
	assert.Equal(t, res.Summary, res.Reasons[0])
}

func TestAggregate_ThresholdIsInclusive(t *testing.T) {
	rules := DefaultRules()
	target := "http://example-store.com"

	res, err := Aggregate(rules, target, ExtractFeatures(rules, target), healthyProbes(), fixedNow)
	require.NoError(t, err)

	assert.Equal(t, 0.3, res.RiskScore)
	assert.Equal(t, domain.VerdictFraudulent, res.Verdict)
	assert.Equal(t, 0.3, res.Confidence)
	assert.False(t, res.StrictRuleFired)
	assert.Equal(t, domain.RiskLow, res.RiskLevel)
	assert.True(t, anyContains(res.Reasons, "no HTTPS"))
}

func TestAggregate_BelowThresholdIsTrustworthy(t *testing.T) {
	rules := DefaultRules()
	target := "https://example-store.com"
	probes := replace(healthyProbes(), domain.ProbeResult{
		Probe: probe.NameRegulatory, Signals: map[string]any{probe.SignalMatchedCategories: 0},
	})
	probes = replace(probes, domain.ProbeResult{Probe: probe.NameContact, Score: 0.25})

	res, err := Aggregate(rules, target, ExtractFeatures(rules, target), probes, fixedNow)
	require.NoError(t, err)

	assert.InDelta(t, 0.2, res.RiskScore, 1e-9)
	assert.Equal(t, domain.VerdictTrustworthy, res.Verdict)
	assert.InDelta(t, 0.8, res.Confidence, 1e-9)
	assert.Equal(t, domain.RiskLow, res.RiskLevel)
	assert.True(t, anyContains(res.Reasons, "no regulatory entity"))
	assert.True(t, anyContains(res.Reasons, "contact information incomplete"))
}

func TestAggregate_StrictRuleRaisesConfidenceFloor(t *testing.T) {
	rules := DefaultRules()
	target := "https://example-store.com"
	probes := replace(healthyProbes(), domain.ProbeResult{
		Probe: probe.NameTerms, Score: probe.TermsScoreBroken, Signals: map[string]any{
			probe.SignalHasTerms: true, probe.SignalFunctionalTerms: false,
		},
	})

	res, err := Aggregate(rules, target, ExtractFeatures(rules, target), probes, fixedNow)
	require.NoError(t, err)

	assert.InDelta(t, 0.4, res.RiskScore, 1e-9)
	assert.True(t, res.StrictRuleFired)
	assert.Equal(t, domain.VerdictFraudulent, res.Verdict)
	assert.Equal(t, 0.7, res.Confidence)
	assert.Equal(t, domain.RiskModerate, res.RiskLevel)
	assert.True(t, anyContains(messages(res, domain.SeverityBlocking), "no functional terms"))
}

func TestAggregate_ComplaintAndBrokenLinkRules(t *testing.T) {
	rules := DefaultRules()
	target := "https://example-store.com"
	probes := replace(healthyProbes(), domain.ProbeResult{
		Probe: probe.NameComplaints, Score: 3, Risk: 0.5, Signals: map[string]any{
			probe.SignalComplaintTerms: 3, probe.SignalFlaggedSections: 1,
		},
	})
	probes = replace(probes, domain.ProbeResult{
		Probe: probe.NameBrokenLinks, Score: 3, Risk: 0.45, Signals: map[string]any{probe.SignalBrokenLinks: 3},
	})

	res, err := Aggregate(rules, target, ExtractFeatures(rules, target), probes, fixedNow)
	require.NoError(t, err)

	// 0.5 + 0.45 + 0.3 + 0.3, clamped.
	assert.Equal(t, 1.0, res.RiskScore)
	assert.Equal(t, 1.0, res.Confidence)
	assert.True(t, res.StrictRuleFired)
	assert.Equal(t, domain.RiskVeryHigh, res.RiskLevel)
	assert.Len(t, messages(res, domain.SeverityBlocking), 2)
}

func TestAggregate_LexicalBuckets(t *testing.T) {
	rules := DefaultRules()

	tests := []struct {
		name   string
		fv     domain.FeatureVector
		expect float64
	}{
		{"one keyword", domain.FeatureVector{HasHTTPS: true, SuspiciousKeywordCount: 1}, 0.1},
		{"two keywords", domain.FeatureVector{HasHTTPS: true, SuspiciousKeywordCount: 2}, 0.2},
		{"five keywords", domain.FeatureVector{HasHTTPS: true, SuspiciousKeywordCount: 5}, 0.4},
		{"ip literal", domain.FeatureVector{HasHTTPS: true, HasIPLiteral: true}, 0.3},
		{"two special chars", domain.FeatureVector{HasHTTPS: true, SpecialCharCount: 2}, 0.1},
		{"four special chars", domain.FeatureVector{HasHTTPS: true, SpecialCharCount: 4}, 0.2},
		{"digit ratio at lower cut", domain.FeatureVector{HasHTTPS: true, DigitRatio: 0.15}, 0},
		{"digit ratio above lower cut", domain.FeatureVector{HasHTTPS: true, DigitRatio: 0.16}, 0.1},
		{"digit ratio above upper cut", domain.FeatureVector{HasHTTPS: true, DigitRatio: 0.3}, 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Aggregate(rules, "https://x.example", tt.fv, healthyProbes(), fixedNow)
			require.NoError(t, err)
			assert.InDelta(t, tt.expect, res.RiskScore, 1e-9)
		})
	}
}

func TestAggregate_DegradedProbesAreReported(t *testing.T) {
	rules := DefaultRules()
	target := "https://example-store.com"
	probes := replace(healthyProbes(), domain.ProbeResult{
		Probe: probe.NameContact, Degraded: true, Error: "dial tcp: no such host",
	})

	res, err := Aggregate(rules, target, ExtractFeatures(rules, target), probes, fixedNow)
	require.NoError(t, err)

	assert.True(t, anyContains(messages(res, domain.SeverityWarning), "homepage fetch failed: dial tcp: no such host"))
}

func TestAggregate_RejectsIncompleteInput(t *testing.T) {
	rules := DefaultRules()
	fv := ExtractFeatures(rules, "https://example-store.com")

	_, err := Aggregate(rules, "https://example-store.com", fv, healthyProbes()[:4], fixedNow)
	assert.ErrorContains(t, err, "missing probe result: broken_links")

	nan := replace(healthyProbes(), domain.ProbeResult{Probe: probe.NameContact, Score: math.NaN()})
	_, err = Aggregate(rules, "https://example-store.com", fv, nan, fixedNow)
	assert.ErrorContains(t, err, "non-finite")
}

func TestLevel(t *testing.T) {
	rules := DefaultRules()

	assert.Equal(t, domain.RiskVeryLow, Level(rules, 0.19))
	assert.Equal(t, domain.RiskLow, Level(rules, 0.2))
	assert.Equal(t, domain.RiskModerate, Level(rules, 0.35))
	assert.Equal(t, domain.RiskHigh, Level(rules, 0.5))
	assert.Equal(t, domain.RiskVeryHigh, Level(rules, 0.7))
	assert.Equal(t, domain.RiskVeryHigh, Level(rules, 1))
}

func TestFallback(t *testing.T) {
	rules := DefaultRules()
	res := Fallback(rules, "https://example-store.com", domain.FeatureVector{}, assert.AnError, fixedNow)

	assert.Equal(t, domain.VerdictFraudulent, res.Verdict)
	assert.Equal(t, 0.9, res.Confidence)
	assert.Equal(t, 0.9, res.RiskScore)
	assert.Equal(t, domain.RiskVeryHigh, res.RiskLevel)
	assert.False(t, res.VerificationsCompleted)
	require.Len(t, res.Evidence, 1)
	assert.Contains(t, res.Evidence[0].Message, assert.AnError.Error())
}
