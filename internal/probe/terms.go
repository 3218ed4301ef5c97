package probe

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"ecomverify/internal/domain"
)

// Terms scores, one per outcome.
const (
	TermsScoreWorking    = 0.9
	TermsScoreGuessed    = 0.6
	TermsScoreBroken     = 0.4
	TermsScoreNotFound   = 0.2
	TermsScoreFetchError = 0.1
)

// TermsProbe looks for a terms-and-conditions page linked from the homepage
// and confirms it resolves. Without a link it tries a few common paths.
type TermsProbe struct {
	fetcher *Fetcher
	cfg     Config
}

func NewTermsProbe(f *Fetcher, cfg Config) *TermsProbe {
	return &TermsProbe{fetcher: f, cfg: cfg}
}

func (p *TermsProbe) Name() string { return NameTerms }

func (p *TermsProbe) Run(ctx context.Context, target string) domain.ProbeResult {
	page, err := p.fetcher.Page(ctx, target, p.cfg.PageTimeout)
	if err != nil {
		return degraded(NameTerms, TermsScoreFetchError, err, map[string]any{
			SignalHasTerms:        false,
			SignalFunctionalTerms: false,
			SignalTermsSource:     "fetch_error",
		})
	}

	candidates := p.candidates(page)
	if len(candidates) > 0 {
		return p.checkCandidates(ctx, candidates)
	}
	return p.guess(ctx, page.URL)
}

func (p *TermsProbe) candidates(page *Page) []string {
	seen := map[string]bool{}
	var out []string
	page.Doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		text := normalizeText(a.Text())
		_, byHref := containsAny(strings.ToLower(href), p.cfg.TermsPathPatterns)
		_, byText := containsAny(text, p.cfg.TermsTextPatterns)
		if !byHref && !byText {
			return true
		}
		u, ok := resolveLink(page.URL, href)
		if !ok || seen[u.String()] {
			return true
		}
		seen[u.String()] = true
		out = append(out, u.String())
		return len(out) < p.cfg.MaxTermsLinks
	})
	return out
}

// linkStatus is one concurrent status check; slots keep candidate order.
type linkStatus struct {
	code int
	err  error
}

func checkAll(ctx context.Context, urls []string, check func(context.Context, string) (int, error)) []linkStatus {
	out := make([]linkStatus, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	for i := range urls {
		g.Go(func() error {
			out[i].code, out[i].err = check(gctx, urls[i])
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (p *TermsProbe) checkCandidates(ctx context.Context, candidates []string) domain.ProbeResult {
	results := checkAll(ctx, candidates, func(ctx context.Context, link string) (int, error) {
		return p.fetcher.Check(ctx, link, p.cfg.LinkTimeout)
	})

	var (
		evidence []string
		working  string
	)
	for i, link := range candidates {
		code, err := results[i].code, results[i].err
		if err != nil {
			evidence = append(evidence, fmt.Sprintf("terms link %s unreachable: %v", link, err))
			continue
		}
		evidence = append(evidence, fmt.Sprintf("terms link %s answered %d", link, code))
		if is2xx(code) && working == "" {
			working = link
		}
	}

	signals := map[string]any{
		SignalHasTerms:        true,
		SignalFunctionalTerms: working != "",
		SignalTermsSource:     "link",
		"candidates":          len(candidates),
	}
	score := TermsScoreBroken
	if working != "" {
		score = TermsScoreWorking
		signals["working_url"] = working
	}
	return domain.ProbeResult{Probe: NameTerms, Score: score, Signals: signals, Evidence: evidence}
}

// guess tries the common paths together and takes the first one, in
// configured order, that answers 2xx.
func (p *TermsProbe) guess(ctx context.Context, base *url.URL) domain.ProbeResult {
	urls := make([]string, len(p.cfg.TermsGuessPaths))
	for i, path := range p.cfg.TermsGuessPaths {
		urls[i] = base.ResolveReference(&url.URL{Path: path}).String()
	}
	results := checkAll(ctx, urls, func(ctx context.Context, u string) (int, error) {
		return p.fetcher.Status(ctx, u, p.cfg.GuessTimeout)
	})

	evidence := []string{"no terms link found on homepage"}
	for i, path := range p.cfg.TermsGuessPaths {
		code, err := results[i].code, results[i].err
		if err != nil {
			evidence = append(evidence, fmt.Sprintf("guessed %s unreachable: %v", path, err))
			continue
		}
		evidence = append(evidence, fmt.Sprintf("guessed %s answered %d", path, code))
		if is2xx(code) {
			return domain.ProbeResult{
				Probe: NameTerms,
				Score: TermsScoreGuessed,
				Signals: map[string]any{
					SignalHasTerms:        true,
					SignalFunctionalTerms: true,
					SignalTermsSource:     "guess",
					"working_url":         urls[i],
				},
				Evidence: evidence,
			}
		}
	}
	return domain.ProbeResult{
		Probe: NameTerms,
		Score: TermsScoreNotFound,
		Signals: map[string]any{
			SignalHasTerms:        false,
			SignalFunctionalTerms: false,
			SignalTermsSource:     "none",
		},
		Evidence: evidence,
	}
}
