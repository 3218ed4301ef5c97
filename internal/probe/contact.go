package probe

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"ecomverify/internal/domain"
)

var (
	emailRegex      = regexp.MustCompile(`[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`)
	phoneCandidates = regexp.MustCompile(`[+(]?\d[\d\s().-]{7,18}\d`)
)

// ContactProbe checks for a postal address, a phone number, an email address
// and a link to a contact page. Score is the fraction present.
type ContactProbe struct {
	fetcher *Fetcher
	cfg     Config
	address *regexp.Regexp
}

func NewContactProbe(f *Fetcher, cfg Config) *ContactProbe {
	return &ContactProbe{fetcher: f, cfg: cfg, address: markerRegex(cfg.AddressMarkers)}
}

func (p *ContactProbe) Name() string { return NameContact }

func (p *ContactProbe) Run(ctx context.Context, target string) domain.ProbeResult {
	signals := map[string]any{"address": false, "phone": false, "email": false, "contact_link": false}

	page, err := p.fetcher.Page(ctx, target, p.cfg.PageTimeout)
	if err != nil {
		return degraded(NameContact, 0, err, signals)
	}

	address := p.address != nil && p.address.MatchString(page.Text)
	phone := hasPhone(page.Text)
	email := emailRegex.MatchString(page.Text)
	link := false

	page.Doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.ToLower(strings.TrimSpace(href))
		switch {
		case strings.HasPrefix(href, "mailto:"):
			email = true
		case strings.HasPrefix(href, "tel:"):
			phone = true
		default:
			if _, ok := containsAny(href+" "+normalizeText(a.Text()), p.cfg.ContactLinkKeywords); ok {
				link = true
			}
		}
	})

	signals["address"] = address
	signals["phone"] = phone
	signals["email"] = email
	signals["contact_link"] = link

	present := 0
	var evidence []string
	for _, item := range []struct {
		ok   bool
		name string
	}{{address, "address"}, {phone, "phone number"}, {email, "email address"}, {link, "contact page link"}} {
		if item.ok {
			present++
			evidence = append(evidence, item.name+" found")
		} else {
			evidence = append(evidence, item.name+" missing")
		}
	}
	return domain.ProbeResult{
		Probe:    NameContact,
		Score:    float64(present) / 4,
		Signals:  signals,
		Evidence: evidence,
	}
}

// hasPhone accepts digit runs of 9 to 15 digits, which skips prices and
// short codes.
func hasPhone(text string) bool {
	for _, m := range phoneCandidates.FindAllString(text, -1) {
		digits := 0
		for _, r := range m {
			if unicode.IsDigit(r) {
				digits++
			}
		}
		if digits >= 9 && digits <= 15 {
			return true
		}
	}
	return false
}

// markerRegex builds a word-start anchored alternation of the markers.
func markerRegex(markers []string) *regexp.Regexp {
	var parts []string
	for _, m := range markers {
		if m = strings.TrimSpace(m); m != "" {
			parts = append(parts, regexp.QuoteMeta(strings.ToLower(m)))
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?:^|[^\p{L}\p{N}])(?:` + strings.Join(parts, "|") + `)`)
}
