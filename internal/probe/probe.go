// Package probe implements the live page checks run against a shop's
// homepage. Every probe returns a domain.ProbeResult and never an error: a
// failed fetch produces the probe's documented degraded default.
package probe

import (
	"context"
	"fmt"
	"time"

	"ecomverify/internal/domain"
)

const (
	NameTerms       = "terms"
	NameRegulatory  = "regulatory"
	NameContact     = "contact"
	NameComplaints  = "complaints"
	NameBrokenLinks = "broken_links"
)

// Signal names read by the aggregator.
const (
	SignalHasTerms          = "has_terms"
	SignalFunctionalTerms   = "has_functional_terms"
	SignalTermsSource       = "source"
	SignalMatchedCategories = "matched_categories"
	SignalComplaintTerms    = "complaint_terms"
	SignalFlaggedSections   = "flagged_sections"
	SignalBrokenLinks       = "broken"
	SignalFetchFailed       = "fetch_failed"
)

// Probe is one independent check of the target site.
type Probe interface {
	Name() string
	Run(ctx context.Context, target string) domain.ProbeResult
}

// Category is a named keyword list, used by the regulatory probe.
type Category struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// Config is the immutable vocabulary and timeout set shared by the probes.
type Config struct {
	UserAgent    string        `yaml:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	PageTimeout  time.Duration `yaml:"page_timeout"`
	GuessTimeout time.Duration `yaml:"guess_timeout"`
	LinkTimeout  time.Duration `yaml:"link_timeout"`

	TermsPathPatterns []string `yaml:"terms_path_patterns"`
	TermsTextPatterns []string `yaml:"terms_text_patterns"`
	TermsGuessPaths   []string `yaml:"terms_guess_paths"`
	MaxTermsLinks     int      `yaml:"max_terms_links"`

	RegulatoryCategories []Category `yaml:"regulatory_categories"`

	ContactLinkKeywords []string `yaml:"contact_link_keywords"`
	AddressMarkers      []string `yaml:"address_markers"`

	ComplaintTerms []string `yaml:"complaint_terms"`
	ReviewMarkers  []string `yaml:"review_markers"`

	ImportantLinkKeywords []string `yaml:"important_link_keywords"`
	MaxImportantLinks     int      `yaml:"max_important_links"`
}

// All builds the five probes over one fetcher.
func All(f *Fetcher, cfg Config) []Probe {
	return []Probe{
		NewTermsProbe(f, cfg),
		NewRegulatoryProbe(f, cfg),
		NewContactProbe(f, cfg),
		NewComplaintProbe(f, cfg),
		NewBrokenLinkProbe(f, cfg),
	}
}

// Run executes p and converts a panic into the degraded result, so nothing
// crosses the probe boundary except a ProbeResult.
func Run(ctx context.Context, p Probe, target string) (res domain.ProbeResult) {
	defer func() {
		if r := recover(); r != nil {
			res = degraded(p.Name(), 0, fmt.Errorf("probe panicked: %v", r), nil)
		}
	}()
	res = p.Run(ctx, target)
	res.Probe = p.Name()
	return res
}

func degraded(name string, score float64, err error, signals map[string]any) domain.ProbeResult {
	if signals == nil {
		signals = map[string]any{}
	}
	signals[SignalFetchFailed] = true
	return domain.ProbeResult{
		Probe:    name,
		Score:    score,
		Signals:  signals,
		Evidence: []string{fmt.Sprintf("homepage fetch failed: %v", err)},
		Degraded: true,
		Error:    err.Error(),
	}
}
