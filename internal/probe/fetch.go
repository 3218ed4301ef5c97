package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

var ErrNotHTML = errors.New("response is not HTML")

// StatusError reports a homepage answering with a 4xx/5xx status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string { return fmt.Sprintf("status %d", e.Code) }

// Page is a fetched and parsed HTML document.
type Page struct {
	URL    *url.URL // final URL after redirects
	Status int
	Doc    *goquery.Document
	// Text is the visible body text, lowercased with whitespace collapsed.
	Text string
}

// Fetcher issues the outbound requests for all probes. Every call takes an
// explicit timeout that is applied on top of the caller's context.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBody   int64
}

// DefaultUserAgent is a common desktop browser string; many shops reject
// obvious bot agents outright.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

func NewFetcher(client *http.Client, userAgent string, maxBody int64) *Fetcher {
	if client == nil {
		client = &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		}
	}
	if maxBody <= 0 {
		maxBody = 2 * 1024 * 1024
	}
	return &Fetcher{client: client, userAgent: userAgent, maxBody: maxBody}
}

func (f *Fetcher) newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "es-ES,es;q=0.9,en;q=0.8")
	return req, nil
}

// Page GETs rawURL and parses it. Non-HTML bodies and 4xx/5xx answers are errors.
func (f *Fetcher) Page(ctx context.Context, rawURL string, timeout time.Duration) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := f.newRequest(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &StatusError{Code: resp.StatusCode}
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(strings.ToLower(contentType), "html") {
		return nil, fmt.Errorf("%w: %s", ErrNotHTML, contentType)
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, f.maxBody), contentType)
	if err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	doc.Find("script, style, noscript, template").Remove()
	return &Page{
		URL:    resp.Request.URL,
		Status: resp.StatusCode,
		Doc:    doc,
		Text:   normalizeText(doc.Find("body").Text()),
	}, nil
}

// Status GETs rawURL and returns the final status code, discarding the body.
func (f *Fetcher) Status(ctx context.Context, rawURL string, timeout time.Duration) (int, error) {
	return f.do(ctx, http.MethodGet, rawURL, timeout)
}

// Check HEADs rawURL following redirects. Servers that refuse HEAD with
// 405 or 501 are asked again with GET.
func (f *Fetcher) Check(ctx context.Context, rawURL string, timeout time.Duration) (int, error) {
	code, err := f.do(ctx, http.MethodHead, rawURL, timeout)
	if err != nil {
		return 0, err
	}
	if code == http.StatusMethodNotAllowed || code == http.StatusNotImplemented {
		return f.do(ctx, http.MethodGet, rawURL, timeout)
	}
	return code, nil
}

func (f *Fetcher) do(ctx context.Context, method, rawURL string, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := f.newRequest(ctx, method, rawURL)
	if err != nil {
		return 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	return resp.StatusCode, nil
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// resolveLink turns an anchor href into an absolute http(s) URL relative to
// base. Fragments, mailto:, tel: and javascript: links are rejected.
func resolveLink(base *url.URL, href string) (*url.URL, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil, false
	}
	lower := strings.ToLower(href)
	for _, prefix := range []string{"mailto:", "tel:", "javascript:", "data:", "sms:", "whatsapp:"} {
		if strings.HasPrefix(lower, prefix) {
			return nil, false
		}
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil, false
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	u.Fragment = ""
	return u, true
}

func containsAny(s string, needles []string) (string, bool) {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return n, true
		}
	}
	return "", false
}

// matchDistinct returns the vocabulary entries present in s as whole words,
// in vocabulary order. "estafa" does not match inside "estafadores".
func matchDistinct(s string, vocabulary []string) []string {
	var out []string
	for _, term := range vocabulary {
		if term != "" && containsWord(s, term) {
			out = append(out, term)
		}
	}
	return out
}

// containsWord reports whether term occurs in s with no letter or digit
// directly before or after it.
func containsWord(s, term string) bool {
	for offset := 0; offset <= len(s)-len(term); {
		i := strings.Index(s[offset:], term)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(term)
		before, _ := utf8.DecodeLastRuneInString(s[:start])
		after, _ := utf8.DecodeRuneInString(s[end:])
		if !isWordRune(before) && !isWordRune(after) {
			return true
		}
		_, size := utf8.DecodeRuneInString(s[start:])
		offset = start + size
	}
	return false
}

func isWordRune(r rune) bool {
	return r != utf8.RuneError && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

func is2xx(code int) bool { return code >= 200 && code < 300 }
