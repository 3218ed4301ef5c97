package probe

import (
	"context"
	"fmt"

	"ecomverify/internal/domain"
)

// RegulatoryProbe searches the homepage text for mentions of consumer
// protection bodies, chambers of commerce, regulators, complaint books and
// trust certifications. Score is the fraction of categories mentioned.
type RegulatoryProbe struct {
	fetcher *Fetcher
	cfg     Config
}

func NewRegulatoryProbe(f *Fetcher, cfg Config) *RegulatoryProbe {
	return &RegulatoryProbe{fetcher: f, cfg: cfg}
}

func (p *RegulatoryProbe) Name() string { return NameRegulatory }

func (p *RegulatoryProbe) Run(ctx context.Context, target string) domain.ProbeResult {
	signals := map[string]any{SignalMatchedCategories: 0}
	for _, c := range p.cfg.RegulatoryCategories {
		signals[c.Name] = false
	}

	page, err := p.fetcher.Page(ctx, target, p.cfg.PageTimeout)
	if err != nil {
		return degraded(NameRegulatory, 0, err, signals)
	}

	var evidence []string
	matched := 0
	for _, c := range p.cfg.RegulatoryCategories {
		term, ok := containsAny(page.Text, c.Keywords)
		if !ok {
			continue
		}
		matched++
		signals[c.Name] = true
		evidence = append(evidence, fmt.Sprintf("mentions %s (%q)", c.Name, term))
	}
	signals[SignalMatchedCategories] = matched

	score := 0.0
	if n := len(p.cfg.RegulatoryCategories); n > 0 {
		score = float64(matched) / float64(n)
	}
	if matched == 0 {
		evidence = append(evidence, "no regulatory entity mentioned")
	}
	return domain.ProbeResult{Probe: NameRegulatory, Score: score, Signals: signals, Evidence: evidence}
}
