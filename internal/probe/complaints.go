package probe

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"ecomverify/internal/domain"
)

const (
	complaintTermWeight    = 0.1
	complaintSectionWeight = 0.2
	complaintRiskCap       = 0.7
)

// ComplaintProbe looks for fraud and non-delivery complaints on the
// homepage, both in the full text and inside review or comment blocks.
type ComplaintProbe struct {
	fetcher *Fetcher
	cfg     Config
}

func NewComplaintProbe(f *Fetcher, cfg Config) *ComplaintProbe {
	return &ComplaintProbe{fetcher: f, cfg: cfg}
}

func (p *ComplaintProbe) Name() string { return NameComplaints }

func (p *ComplaintProbe) Run(ctx context.Context, target string) domain.ProbeResult {
	signals := map[string]any{SignalComplaintTerms: 0, SignalFlaggedSections: 0, "review_sections": 0}

	page, err := p.fetcher.Page(ctx, target, p.cfg.PageTimeout)
	if err != nil {
		return degraded(NameComplaints, 0, err, signals)
	}

	terms := matchDistinct(page.Text, p.cfg.ComplaintTerms)
	sections := p.reviewSections(page.Doc)
	flagged := 0
	var evidence []string
	for _, s := range sections {
		if hits := matchDistinct(normalizeText(s.Text()), p.cfg.ComplaintTerms); len(hits) > 0 {
			flagged++
			evidence = append(evidence, fmt.Sprintf("review section %q mentions %s", sectionLabel(s), strings.Join(hits, ", ")))
		}
	}
	if len(terms) > 0 {
		evidence = append([]string{"complaint terms found: " + strings.Join(terms, ", ")}, evidence...)
	} else {
		evidence = append(evidence, "no complaint terms found")
	}

	signals[SignalComplaintTerms] = len(terms)
	signals[SignalFlaggedSections] = flagged
	signals["review_sections"] = len(sections)
	signals["matched_terms"] = terms

	risk := math.Min(complaintRiskCap, complaintTermWeight*float64(len(terms))+complaintSectionWeight*float64(flagged))
	return domain.ProbeResult{
		Probe:    NameComplaints,
		Score:    float64(len(terms)),
		Risk:     risk,
		Signals:  signals,
		Evidence: evidence,
	}
}

// reviewSections returns the outermost block elements that look like a
// review or comment area, judged by class, id or their first heading.
func (p *ComplaintProbe) reviewSections(doc *goquery.Document) []*goquery.Selection {
	picked := map[*html.Node]bool{}
	var out []*goquery.Selection
	doc.Find("section, article, aside, div, ul, ol").Each(func(_ int, s *goquery.Selection) {
		if !p.looksLikeReviews(s) {
			return
		}
		nested := false
		s.Parents().EachWithBreak(func(_ int, parent *goquery.Selection) bool {
			if picked[parent.Get(0)] {
				nested = true
				return false
			}
			return true
		})
		if nested {
			return
		}
		picked[s.Get(0)] = true
		out = append(out, s)
	})
	return out
}

func (p *ComplaintProbe) looksLikeReviews(s *goquery.Selection) bool {
	class, _ := s.Attr("class")
	id, _ := s.Attr("id")
	if _, ok := containsAny(strings.ToLower(class+" "+id), p.cfg.ReviewMarkers); ok {
		return true
	}
	heading := normalizeText(s.ChildrenFiltered("h1, h2, h3, h4").First().Text())
	_, ok := containsAny(heading, p.cfg.ReviewMarkers)
	return heading != "" && ok
}

func sectionLabel(s *goquery.Selection) string {
	if id, ok := s.Attr("id"); ok && id != "" {
		return "#" + id
	}
	if class, ok := s.Attr("class"); ok && class != "" {
		return "." + strings.Fields(class)[0]
	}
	return goquery.NodeName(s)
}
