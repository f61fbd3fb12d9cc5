// Package acquire is the content acquirer: it fetches a disclosure URL
// under strict guardrails (SSRF protection, size and time limits,
// content-type allowlisting) and extracts readable text from HTML or PDF
// payloads for the rest of the pipeline.
package acquire

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/hannah-ric/esg-scraper/internal/apperr"
)

const (
	defaultMaxBodyBytes = 10 * 1024 * 1024
	defaultTotalTimeout = 15 * time.Second
	connectTimeout      = 5 * time.Second
	maxRedirects        = 5
	maxTextChars        = 200_000
)

// Limits bounds one fetch; zero values fall back to the defaults above.
type Limits struct {
	MaxBodyBytes int64
	Timeout      time.Duration
}

func (l Limits) withDefaults() Limits {
	if l.MaxBodyBytes <= 0 {
		l.MaxBodyBytes = defaultMaxBodyBytes
	}
	if l.Timeout <= 0 {
		l.Timeout = defaultTotalTimeout
	}
	return l
}

var allowedContentTypes = map[string]bool{
	"text/html":       true,
	"application/pdf": true,
	"text/plain":      true,
}

var blockedTags = map[string]bool{
	"nav": true, "script": true, "style": true, "header": true, "footer": true,
	"noscript": true, "svg": true, "iframe": true,
}

// Result is the acquired document handed to the standardizer/scorer/engine.
// The cache fingerprint is not computed here: it depends on the request's
// kind/frameworks/industry sector, which the acquirer never sees, so the
// orchestrator derives it from Result.FinalURL itself.
type Result struct {
	URL         string
	FinalURL    string
	Text        string
	ContentType string
}

// Acquirer fetches and normalizes remote disclosure documents.
type Acquirer struct {
	client *http.Client
	limits Limits
	log    *zap.SugaredLogger
}

func New(log *zap.SugaredLogger, limits Limits) *Acquirer {
	limits = limits.withDefaults()
	dialer := &net.Dialer{Timeout: connectTimeout}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				host = addr
			}
			if err := guardHost(host); err != nil {
				return nil, err
			}
			return dialer.DialContext(ctx, network, addr)
		},
		MaxIdleConns:        10,
		IdleConnTimeout:     30 * time.Second,
		MaxIdleConnsPerHost: 2,
	}
	client := &http.Client{
		Timeout:   limits.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return guardURL(req.URL)
		},
	}
	return &Acquirer{client: client, limits: limits, log: log}
}

// Fetch retrieves rawURL and returns normalized, size-capped text content.
func (a *Acquirer) Fetch(ctx context.Context, rawURL string) (Result, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, apperr.Acquisition(apperr.ReasonDisallowed, "invalid url", err)
	}
	if err := guardURL(parsed); err != nil {
		return Result{}, apperr.Acquisition(apperr.ReasonDisallowed, "url not permitted", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.limits.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{}, apperr.Acquisition(apperr.ReasonDisallowed, "invalid request", err)
	}
	req.Header.Set("User-Agent", "esg-disclosure-analyzer/1.0")
	req.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Result{}, apperr.Acquisition(apperr.ReasonTimeout, "fetch timed out", err)
		}
		return Result{}, apperr.Acquisition(apperr.ReasonUpstream5xx, "fetch failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Result{}, apperr.Acquisition(apperr.ReasonUpstream5xx, fmt.Sprintf("upstream status %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return Result{}, apperr.Acquisition(apperr.ReasonUpstream4xx, fmt.Sprintf("upstream status %d", resp.StatusCode), nil)
	}

	contentType := baseContentType(resp.Header.Get("Content-Type"))
	if contentType != "" && !allowedContentTypes[contentType] {
		return Result{}, apperr.Acquisition(apperr.ReasonDisallowed, "unsupported content type: "+contentType, nil)
	}

	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > a.limits.MaxBodyBytes {
			return Result{}, apperr.Acquisition(apperr.ReasonTooLarge, "content-length exceeds limit", nil)
		}
	}

	limited := io.LimitReader(resp.Body, a.limits.MaxBodyBytes+1)
	body, err := decodeBody(resp.Header.Get("Content-Encoding"), limited)
	if err != nil {
		return Result{}, apperr.Acquisition(apperr.ReasonUpstream5xx, "decode body failed", err)
	}
	if int64(len(body)) > a.limits.MaxBodyBytes {
		return Result{}, apperr.Acquisition(apperr.ReasonTooLarge, "body exceeds size limit", nil)
	}

	var text string
	switch {
	case contentType == "application/pdf":
		pdfText, err := extractPDFText(body)
		if err != nil {
			return Result{}, apperr.Parse("pdf unreadable: "+err.Error(), err)
		}
		text = pdfText
	case contentType == "text/html", contentType == "":
		text = extractHTMLText(body)
	default:
		text = string(body)
	}

	text = normalizeText(text)
	if len(text) > maxTextChars {
		text = text[:maxTextChars]
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return Result{
		URL:         rawURL,
		FinalURL:    finalURL,
		Text:        text,
		ContentType: contentType,
	}, nil
}

func baseContentType(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, ";", 2)
	return strings.TrimSpace(strings.ToLower(parts[0]))
}

func decodeBody(encoding string, r io.Reader) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "br":
		return io.ReadAll(brotli.NewReader(r))
	default:
		return io.ReadAll(r)
	}
}

// guardURL rejects schemes and hosts that cannot go through the SSRF-guarded
// dialer.
func guardURL(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q not permitted", u.Scheme)
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("localhost not permitted")
	}
	if ip := net.ParseIP(host); ip != nil {
		return guardIP(ip)
	}
	return nil
}

// guardHost runs at dial time, after DNS resolution, so a hostname that
// resolves to a private address is still blocked.
func guardHost(host string) error {
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("localhost not permitted")
	}
	if ip := net.ParseIP(host); ip != nil {
		return guardIP(ip)
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("resolve host: %w", err)
	}
	for _, ip := range ips {
		if err := guardIP(ip); err != nil {
			return err
		}
	}
	return nil
}

func guardIP(ip net.IP) error {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() || ip.IsUnspecified() {
		return fmt.Errorf("address %s not permitted", ip.String())
	}
	return nil
}

// extractHTMLText walks the DOM dropping nav/script/style/header/footer and
// keeps paragraph breaks between block elements.
func extractHTMLText(body []byte) string {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return string(body)
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && blockedTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				sb.WriteString(text)
				sb.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "div", "br", "li", "h1", "h2", "h3", "h4", "h5", "h6", "tr":
				sb.WriteString("\n")
			}
		}
	}
	walk(doc)
	return sb.String()
}

// extractPDFText parses the PDF container's text layer page by page,
// joining pages on a form-feed so downstream chunking can still see page
// boundaries.
func extractPDFText(body []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	fonts := make(map[string]*pdf.Font)
	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(fonts)
		if err != nil {
			// A single malformed page doesn't abort extraction of the rest.
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n\f\n")
	}

	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("no extractable text layer")
	}
	return sb.String(), nil
}

func normalizeText(s string) string {
	var sb strings.Builder
	lastSpace := false
	for _, r := range s {
		if r == '\r' {
			continue
		}
		if r < 0x20 && r != '\n' && r != '\t' {
			continue
		}
		if r == ' ' || r == '\t' {
			if lastSpace {
				continue
			}
			lastSpace = true
			sb.WriteRune(' ')
			continue
		}
		lastSpace = false
		sb.WriteRune(r)
	}
	return strings.TrimSpace(sb.String())
}
