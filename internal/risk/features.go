package risk

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"

	"ecomverify/internal/domain"
)

// DomainAgeProxy is a neutral placeholder; no registration data is consulted.
const DomainAgeProxy = 0.5

var dottedQuad = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)

// ExtractFeatures derives the lexical signals of rawURL. It performs no I/O
// and never fails: URLs that do not parse, or carry no host, yield the zero
// vector flagged as malformed.
func ExtractFeatures(rules Rules, rawURL string) domain.FeatureVector {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return domain.FeatureVector{Malformed: true}
	}

	host := strings.ToLower(u.Hostname())
	lower := strings.ToLower(rawURL)

	fv := domain.FeatureVector{
		URLLength:      len(rawURL),
		DomainLength:   len(host),
		HasHTTPS:       strings.EqualFold(u.Scheme, "https"),
		HasIPLiteral:   dottedQuad.MatchString(host),
		DomainAgeProxy: DomainAgeProxy,
		DigitRatio:     digitRatio(rawURL),
		Scheme:         strings.ToLower(u.Scheme),
		Host:           host,
		Path:           u.EscapedPath(),
	}

	for _, kw := range rules.SuspiciousKeywords {
		if kw != "" && strings.Contains(lower, kw) {
			fv.MatchedKeywords = append(fv.MatchedKeywords, kw)
		}
	}
	fv.SuspiciousKeywordCount = len(fv.MatchedKeywords)

	rest := rawURL
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	for _, r := range rest {
		if strings.ContainsRune(rules.SpecialChars, r) {
			fv.SpecialCharCount++
		}
	}

	if !fv.HasIPLiteral {
		fv.Suffix, _ = publicsuffix.PublicSuffix(host)
		if registrable, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
			fv.Registrable = registrable
			fv.Subdomain = strings.TrimSuffix(strings.TrimSuffix(host, registrable), ".")
		} else {
			fv.Registrable = host
		}
	}
	return fv
}

// digitRatio is the share of ASCII digits in s, 0 for the empty string.
func digitRatio(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	digits := 0
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			digits++
		}
	}
	return float64(digits) / float64(len(s))
}
