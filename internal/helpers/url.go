package helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"path"
	"sort"
	"strings"
)

var trackingQueryParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"utm_id":       {},
	"gclid":        {},
	"fbclid":       {},
	"msclkid":      {},
	"ref":          {},
	"ref_src":      {},
}

// CanonicalURL reduces a link to a comparison key so the same blog post found
// by two search providers collapses to one hit. Trailing punctuation is
// stripped first, then scheme and host are lowercased, default ports,
// fragments and tracking parameters dropped, and the query sorted.
// Schemeless input defaults to https.
func CanonicalURL(raw string) (string, error) {
	raw = NormalizeURL(raw)
	if raw == "" {
		return "", errors.New("empty url")
	}
	parsed, err := parseSchemeless(raw)
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return "", errors.New("url missing host")
	}
	if port := parsed.Port(); port != "" && !isDefaultPort(parsed.Scheme, port) {
		host += ":" + port
	}
	parsed.Host = host
	parsed.User = nil
	parsed.Fragment = ""
	parsed.RawFragment = ""

	cleaned := path.Clean("/" + parsed.Path)
	if cleaned != "/" && strings.HasSuffix(parsed.Path, "/") {
		cleaned += "/"
	}
	parsed.Path = cleaned
	parsed.RawPath = ""

	query := parsed.Query()
	for key := range query {
		if _, drop := trackingQueryParams[strings.ToLower(key)]; drop {
			query.Del(key)
		}
	}
	for _, values := range query {
		sort.Strings(values)
	}
	// url.Values.Encode sorts by key.
	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}

// URLFingerprint returns a SHA-256 hex digest of the canonical URL.
func URLFingerprint(raw string) (string, error) {
	canonical, err := CanonicalURL(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}

func parseSchemeless(raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme == "" && parsed.Host == "" {
		if strings.HasPrefix(raw, "//") {
			return url.Parse("https:" + raw)
		}
		return url.Parse("https://" + raw)
	}
	return parsed, nil
}
