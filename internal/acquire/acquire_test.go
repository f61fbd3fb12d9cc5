package acquire

import (
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuardIPRejectsPrivateAndLoopback(t *testing.T) {
	cases := []string{
		"127.0.0.1", "169.254.1.1", "10.0.0.5", "172.16.0.5", "192.168.1.1", "0.0.0.0", "::1",
	}
	for _, raw := range cases {
		ip := net.ParseIP(raw)
		assert.Error(t, guardIP(ip), "expected %s to be rejected", raw)
	}
}

func TestGuardIPAllowsPublicAddress(t *testing.T) {
	ip := net.ParseIP("93.184.216.34") // example.com-class public address
	assert.NoError(t, guardIP(ip))
}

func TestGuardURLRejectsNonHTTPScheme(t *testing.T) {
	u, _ := url.Parse("ftp://example.com/file")
	assert.Error(t, guardURL(u))
}

func TestGuardURLRejectsLocalhost(t *testing.T) {
	u, _ := url.Parse("http://localhost:8080/report")
	assert.Error(t, guardURL(u))
}

func TestGuardURLRejectsLiteralPrivateIP(t *testing.T) {
	u, _ := url.Parse("http://10.0.0.1/report")
	assert.Error(t, guardURL(u))
}

func TestGuardURLAllowsOrdinaryHTTPSHost(t *testing.T) {
	u, _ := url.Parse("https://example.com/esg-report.html")
	assert.NoError(t, guardURL(u))
}

func TestBaseContentTypeStripsParameters(t *testing.T) {
	assert.Equal(t, "text/html", baseContentType("text/html; charset=utf-8"))
	assert.Equal(t, "", baseContentType(""))
	assert.Equal(t, "application/pdf", baseContentType("Application/PDF"))
}

func TestNormalizeTextCollapsesWhitespaceAndStripsControlChars(t *testing.T) {
	in := "Hello\r\n\x00World   Foo\t\tBar"
	out := normalizeText(in)
	assert.Equal(t, "Hello\nWorld Foo Bar", out)
}

func TestExtractHTMLTextDropsBlockedTags(t *testing.T) {
	html := `<html><body><nav>menu</nav><p>Emissions fell 10% in 2025.</p><script>evil()</script></body></html>`
	text := extractHTMLText([]byte(html))
	assert.Contains(t, text, "Emissions fell 10% in 2025.")
	assert.NotContains(t, text, "menu")
	assert.NotContains(t, text, "evil()")
}
