package probe

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"ecomverify/internal/domain"
)

const (
	brokenLinkWeight  = 0.15
	brokenLinkRiskCap = 0.5
)

// LinkCheck records the outcome for one important link.
type LinkCheck struct {
	URL    string `json:"url"`
	Status string `json:"status"` // ok, broken, external
	Code   int    `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
}

// BrokenLinkProbe checks that the links a shopper relies on (contact,
// about, support, terms, returns, warranty) actually resolve.
type BrokenLinkProbe struct {
	fetcher *Fetcher
	cfg     Config
}

func NewBrokenLinkProbe(f *Fetcher, cfg Config) *BrokenLinkProbe {
	return &BrokenLinkProbe{fetcher: f, cfg: cfg}
}

func (p *BrokenLinkProbe) Name() string { return NameBrokenLinks }

func (p *BrokenLinkProbe) Run(ctx context.Context, target string) domain.ProbeResult {
	signals := map[string]any{SignalBrokenLinks: 0, "checked": 0, "external": 0}

	page, err := p.fetcher.Page(ctx, target, p.cfg.PageTimeout)
	if err != nil {
		return degraded(NameBrokenLinks, 0, err, signals)
	}

	checks := p.importantLinks(page)
	g, gctx := errgroup.WithContext(ctx)
	for i := range checks {
		if checks[i].Status == "external" {
			continue
		}
		g.Go(func() error {
			code, err := p.fetcher.Check(gctx, checks[i].URL, p.cfg.LinkTimeout)
			switch {
			case err != nil:
				checks[i].Status = "broken"
				checks[i].Error = err.Error()
			case code >= 400:
				checks[i].Status = "broken"
				checks[i].Code = code
			default:
				checks[i].Status = "ok"
				checks[i].Code = code
			}
			return nil
		})
	}
	_ = g.Wait()

	broken, external, checked := 0, 0, 0
	var evidence []string
	for _, c := range checks {
		switch c.Status {
		case "external":
			external++
			evidence = append(evidence, fmt.Sprintf("%s is external, not followed", c.URL))
		case "broken":
			broken++
			checked++
			if c.Error != "" {
				evidence = append(evidence, fmt.Sprintf("%s broken: %s", c.URL, c.Error))
			} else {
				evidence = append(evidence, fmt.Sprintf("%s broken: status %d", c.URL, c.Code))
			}
		default:
			checked++
		}
	}
	if len(checks) == 0 {
		evidence = append(evidence, "no important links found")
	} else if broken == 0 {
		evidence = append(evidence, fmt.Sprintf("%d important links resolve", checked))
	}

	signals[SignalBrokenLinks] = broken
	signals["checked"] = checked
	signals["external"] = external
	signals["links"] = checks

	return domain.ProbeResult{
		Probe:    NameBrokenLinks,
		Score:    float64(broken),
		Risk:     math.Min(brokenLinkRiskCap, brokenLinkWeight*float64(broken)),
		Signals:  signals,
		Evidence: evidence,
	}
}

func (p *BrokenLinkProbe) importantLinks(page *Page) []LinkCheck {
	seen := map[string]bool{}
	var out []LinkCheck
	page.Doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if _, ok := containsAny(strings.ToLower(href)+" "+normalizeText(a.Text()), p.cfg.ImportantLinkKeywords); !ok {
			return true
		}
		u, ok := resolveLink(page.URL, href)
		if !ok || seen[u.String()] {
			return true
		}
		seen[u.String()] = true
		check := LinkCheck{URL: u.String()}
		if !sameSite(u.Hostname(), page.URL.Hostname()) {
			check.Status = "external"
		}
		out = append(out, check)
		return len(out) < p.cfg.MaxImportantLinks
	})
	return out
}

func sameSite(a, b string) bool {
	a = strings.TrimPrefix(strings.ToLower(a), "www.")
	b = strings.TrimPrefix(strings.ToLower(b), "www.")
	return a == b
}
