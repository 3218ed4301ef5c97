package domain

import "time"

// Core domain models shared by the engine, the services and the adapters.
// The full AnalysisResult is what gets persisted as the evidence blob.

type Verdict string

const (
	VerdictTrustworthy Verdict = "trustworthy"
	VerdictFraudulent  Verdict = "fraudulent"
)

type RiskLevel string

const (
	RiskVeryLow  RiskLevel = "very_low"
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskVeryHigh RiskLevel = "very_high"
)

type Severity string

const (
	SeverityBlocking   Severity = "blocking"
	SeverityWarning    Severity = "warning"
	SeverityConfirming Severity = "confirming"
)

// Evidence is one line of the explanation trail.
type Evidence struct {
	Severity Severity `json:"severity"`
	Source   string   `json:"source"`
	Message  string   `json:"message"`
}

// FeatureVector holds the lexical signals derived from the URL string alone.
type FeatureVector struct {
	URLLength              int      `json:"url_length"`
	DomainLength           int      `json:"domain_length"`
	HasHTTPS               bool     `json:"has_https"`
	SuspiciousKeywordCount int      `json:"suspicious_keyword_count"`
	SpecialCharCount       int      `json:"special_char_count"`
	HasIPLiteral           bool     `json:"has_ip_literal"`
	DomainAgeProxy         float64  `json:"domain_age_proxy"`
	DigitRatio             float64  `json:"digit_ratio"`
	MatchedKeywords        []string `json:"matched_keywords,omitempty"`

	Scheme      string `json:"scheme,omitempty"`
	Host        string `json:"host,omitempty"`
	Subdomain   string `json:"subdomain,omitempty"`
	Registrable string `json:"registrable_domain,omitempty"`
	Suffix      string `json:"suffix,omitempty"`
	Path        string `json:"path,omitempty"`
	Malformed   bool   `json:"malformed,omitempty"`
}

// AnalysisResult is the immutable outcome of one analysis.
type AnalysisResult struct {
	URL                    string                 `json:"url"`
	Verdict                Verdict                `json:"verdict"`
	Confidence             float64                `json:"confidence"`
	RiskScore              float64                `json:"risk_score"`
	RiskLevel              RiskLevel              `json:"risk_level"`
	StrictRuleFired        bool                   `json:"strict_rule_fired"`
	VerificationsCompleted bool                   `json:"verifications_completed"`
	Evidence               []Evidence             `json:"evidence"`
	Reasons                []string               `json:"reasons"`
	Summary                string                 `json:"summary"`
	Features               FeatureVector          `json:"features"`
	Probes                 map[string]ProbeResult `json:"probes,omitempty"`
	AnalyzedAt             time.Time              `json:"analyzed_at"`
}

// ProbeResult is the output of one page probe. It is always produced; a
// failed fetch yields the probe's degraded default with Degraded set.
type ProbeResult struct {
	Probe    string         `json:"probe"`
	Score    float64        `json:"score"`
	Risk     float64        `json:"risk_contribution"`
	Signals  map[string]any `json:"signals"`
	Evidence []string       `json:"evidence"`
	Degraded bool           `json:"degraded"`
	Error    string         `json:"error,omitempty"`
}

// Bool reads a boolean signal. Missing or mistyped signals read as false.
func (r ProbeResult) Bool(name string) bool {
	v, _ := r.Signals[name].(bool)
	return v
}

// Int reads an integer signal, accepting the float64 form JSON decoding produces.
func (r ProbeResult) Int(name string) int {
	switch v := r.Signals[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func (r ProbeResult) Float(name string) float64 {
	switch v := r.Signals[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// AnalysisSummary is the list view of a stored analysis.
type AnalysisSummary struct {
	URL        string    `json:"url"`
	Verdict    Verdict   `json:"verdict"`
	Confidence float64   `json:"confidence"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

type Job struct {
	ID         string     `json:"id"`
	URL        string     `json:"url"`
	Status     JobStatus  `json:"status"`
	Attempts   int        `json:"attempts"`
	Error      string     `json:"error,omitempty"`
	QueuedAt   time.Time  `json:"queued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Source tells where a served result came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceStore    Source = "store"
	SourceAnalysis Source = "analysis"
)
