package risk

import (
	"fmt"
	"math"
	"strings"
	"time"

	"ecomverify/internal/domain"
	"ecomverify/internal/probe"
)

var requiredProbes = []string{
	probe.NameTerms,
	probe.NameRegulatory,
	probe.NameContact,
	probe.NameComplaints,
	probe.NameBrokenLinks,
}

// trail accumulates evidence and the risk it justifies. It is private to one
// Aggregate call; the slices are handed over once the result is assembled.
type trail struct {
	risk     float64
	evidence []domain.Evidence
	reasons  []string
}

// add records a rule that fired together with its contribution.
func (t *trail) add(weight float64, sev domain.Severity, source, msg string) {
	t.risk += weight
	t.evidence = append(t.evidence, domain.Evidence{Severity: sev, Source: source, Message: msg})
	t.reasons = append(t.reasons, msg)
}

func (t *trail) confirm(source, msg string) {
	t.evidence = append(t.evidence, domain.Evidence{Severity: domain.SeverityConfirming, Source: source, Message: msg})
}

func (t *trail) note(source, msg string) {
	t.evidence = append(t.evidence, domain.Evidence{Severity: domain.SeverityWarning, Source: source, Message: msg})
}

// Aggregate combines the feature vector and the five probe results into the
// final verdict. It is deterministic and returns an error only when its
// input is unusable (a probe result missing, a non-finite number).
func Aggregate(rules Rules, target string, fv domain.FeatureVector, results []domain.ProbeResult, now time.Time) (domain.AnalysisResult, error) {
	byName := make(map[string]domain.ProbeResult, len(results))
	for _, r := range results {
		if !finite(r.Score) || !finite(r.Risk) {
			return domain.AnalysisResult{}, fmt.Errorf("probe %s produced a non-finite score", r.Probe)
		}
		byName[r.Probe] = r
	}
	for _, name := range requiredProbes {
		if _, ok := byName[name]; !ok {
			return domain.AnalysisResult{}, fmt.Errorf("missing probe result: %s", name)
		}
	}
	if !finite(fv.DigitRatio) {
		return domain.AnalysisResult{}, fmt.Errorf("non-finite digit ratio")
	}

	w := rules.Weights
	t := &trail{}

	// URL lexical signals.
	if b, ok := pickBucket(float64(fv.SuspiciousKeywordCount), w.KeywordBuckets, false); ok {
		t.add(b.Add, domain.SeverityWarning, "url", fmt.Sprintf("%d suspicious keywords in URL (%s)",
			fv.SuspiciousKeywordCount, strings.Join(fv.MatchedKeywords, ", ")))
	}
	if fv.HasHTTPS {
		t.confirm("url", "site uses HTTPS")
	} else {
		t.add(w.NoHTTPS, domain.SeverityWarning, "url", "no HTTPS: site is served without TLS")
	}
	if fv.HasIPLiteral {
		t.add(w.IPLiteral, domain.SeverityWarning, "url", "host is a raw IP address")
	}
	if b, ok := pickBucket(float64(fv.SpecialCharCount), w.SpecialCharBuckets, false); ok {
		t.add(b.Add, domain.SeverityWarning, "url", fmt.Sprintf("%d special characters in URL", fv.SpecialCharCount))
	}
	if b, ok := pickBucket(fv.DigitRatio, w.DigitRatioBuckets, true); ok {
		t.add(b.Add, domain.SeverityWarning, "url", fmt.Sprintf("high digit ratio in URL (%.2f)", fv.DigitRatio))
	}
	if fv.Malformed {
		t.note("url", "URL could not be decomposed; lexical signals defaulted")
	}

	for _, name := range requiredProbes {
		if r := byName[name]; r.Degraded {
			t.note(name, fmt.Sprintf("%s probe degraded: homepage fetch failed: %s", name, r.Error))
		}
	}

	// Probe adjustments.
	terms := byName[probe.NameTerms]
	if terms.Bool(probe.SignalHasTerms) {
		t.confirm(probe.NameTerms, fmt.Sprintf("terms and conditions page found (score %.1f)", terms.Score))
	} else {
		t.add(w.NoTerms, domain.SeverityWarning, probe.NameTerms, "no terms and conditions page found")
	}

	regulatory := byName[probe.NameRegulatory]
	if n := regulatory.Int(probe.SignalMatchedCategories); n == 0 {
		t.add(w.NoRegulatory, domain.SeverityWarning, probe.NameRegulatory, "no regulatory entity mentioned")
	} else {
		t.confirm(probe.NameRegulatory, fmt.Sprintf("%d regulatory categories mentioned", n))
	}

	contact := byName[probe.NameContact]
	if contact.Score < w.LowContactBelow {
		t.add(w.LowContact, domain.SeverityWarning, probe.NameContact, fmt.Sprintf("contact information incomplete (score %.2f)", contact.Score))
	} else {
		t.confirm(probe.NameContact, fmt.Sprintf("contact information present (score %.2f)", contact.Score))
	}

	complaints := byName[probe.NameComplaints]
	if complaints.Risk > 0 {
		t.add(complaints.Risk, domain.SeverityWarning, probe.NameComplaints, fmt.Sprintf("%d complaint terms, %d review sections with complaints",
			complaints.Int(probe.SignalComplaintTerms), complaints.Int(probe.SignalFlaggedSections)))
	}

	broken := byName[probe.NameBrokenLinks]
	if broken.Risk > 0 {
		t.add(broken.Risk, domain.SeverityWarning, probe.NameBrokenLinks, fmt.Sprintf("%d important links broken", broken.Int(probe.SignalBrokenLinks)))
	}

	// Strict override rules.
	strict := false
	if !terms.Bool(probe.SignalFunctionalTerms) {
		strict = true
		t.add(w.StrictNoFunctionalTerms, domain.SeverityBlocking, probe.NameTerms, "strict rule: no functional terms page")
	}
	if n := complaints.Int(probe.SignalComplaintTerms); n >= w.StrictComplaintTerms {
		strict = true
		t.add(w.StrictComplaints, domain.SeverityBlocking, probe.NameComplaints, fmt.Sprintf("strict rule: %d distinct complaint terms found", n))
	}
	if n := broken.Int(probe.SignalBrokenLinks); n >= w.StrictBrokenLinkCount {
		strict = true
		t.add(w.StrictBrokenLinks, domain.SeverityBlocking, probe.NameBrokenLinks, fmt.Sprintf("strict rule: %d important links broken", n))
	}

	risk := round4(clamp01(t.risk))

	verdict := domain.VerdictTrustworthy
	if strict || risk >= w.FraudThreshold {
		verdict = domain.VerdictFraudulent
	}

	var confidence float64
	switch {
	case verdict == domain.VerdictFraudulent && strict:
		confidence = math.Max(risk, w.StrictConfidenceFloor)
	case verdict == domain.VerdictFraudulent:
		confidence = risk
	default:
		confidence = 1 - risk
	}
	confidence = round4(clamp01(confidence))

	summary := fmt.Sprintf("verdict %s: risk %.2f against threshold %.2f, strict rule fired: %t",
		verdict, risk, w.FraudThreshold, strict)

	probes := make(map[string]domain.ProbeResult, len(byName))
	for name, r := range byName {
		probes[name] = r
	}

	return domain.AnalysisResult{
		URL:                    target,
		Verdict:                verdict,
		Confidence:             confidence,
		RiskScore:              risk,
		RiskLevel:              Level(rules, risk),
		StrictRuleFired:        strict,
		VerificationsCompleted: true,
		Evidence:               t.evidence,
		Reasons:                append(t.reasons, summary),
		Summary:                summary,
		Features:               fv,
		Probes:                 probes,
		AnalyzedAt:             now,
	}, nil
}

// Level maps a risk score to its label using the configured cut points.
func Level(rules Rules, risk float64) domain.RiskLevel {
	w := rules.Weights
	switch {
	case risk >= w.LevelVeryHigh:
		return domain.RiskVeryHigh
	case risk >= w.LevelHigh:
		return domain.RiskHigh
	case risk >= w.LevelModerate:
		return domain.RiskModerate
	case risk >= w.LevelLow:
		return domain.RiskLow
	default:
		return domain.RiskVeryLow
	}
}

// Fallback is the conservative result used when aggregation cannot complete.
func Fallback(rules Rules, target string, fv domain.FeatureVector, cause error, now time.Time) domain.AnalysisResult {
	c := rules.Weights.FallbackConfidence
	msg := fmt.Sprintf("analysis could not be completed: %v", cause)
	summary := fmt.Sprintf("verdict %s: conservative fallback, verifications incomplete", domain.VerdictFraudulent)
	return domain.AnalysisResult{
		URL:                    target,
		Verdict:                domain.VerdictFraudulent,
		Confidence:             c,
		RiskScore:              c,
		RiskLevel:              Level(rules, c),
		VerificationsCompleted: false,
		Evidence:               []domain.Evidence{{Severity: domain.SeverityBlocking, Source: "engine", Message: msg}},
		Reasons:                []string{msg, summary},
		Summary:                summary,
		Features:               fv,
		AnalyzedAt:             now,
	}
}

func pickBucket(v float64, buckets []Bucket, strict bool) (Bucket, bool) {
	for _, b := range buckets {
		if (strict && v > b.Min) || (!strict && v >= b.Min) {
			return b, true
		}
	}
	return Bucket{}, false
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
