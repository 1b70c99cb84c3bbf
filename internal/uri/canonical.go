package uri

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// CanonicalURL is the normalized form of a media URL and the ledger key.
type CanonicalURL string

func (u CanonicalURL) String() string { return string(u) }

var defaultPorts = map[string]string{"http": "80", "https": "443"}

// Canonicalize normalizes an absolute http(s) URL: lower-cased scheme and
// host, IDNA host in ASCII form, no default port, no userinfo, no fragment,
// denylisted query parameters removed and the remaining ones kept in order.
func (p *Parser) Canonicalize(target string) (CanonicalURL, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", malformed(target, "empty target", nil)
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return "", malformed(target, "target is not a url", err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", malformed(target, "target must be an absolute http or https url", nil)
	}
	host, err := canonicalHost(parsed)
	if err != nil {
		return "", malformed(target, "invalid host", err)
	}
	if host == "" {
		return "", malformed(target, "target has no host", nil)
	}
	if port := parsed.Port(); port != "" && port != defaultPorts[scheme] {
		host = net.JoinHostPort(strings.Trim(host, "[]"), port)
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	b.WriteString(path)
	if query := p.filterQuery(parsed.RawQuery); query != "" {
		b.WriteByte('?')
		b.WriteString(query)
	}
	return CanonicalURL(b.String()), nil
}

func canonicalHost(u *url.URL) (string, error) {
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", nil
	}
	if strings.Contains(host, ":") {
		return "[" + host + "]", nil
	}
	host = strings.TrimSuffix(host, ".")
	if isASCII(host) {
		return host, nil
	}
	ascii, err := hostProfile.ToASCII(host)
	if err != nil {
		return "", err
	}
	return ascii, nil
}

// hostProfile maps internationalized hosts to punycode without the STD3 and
// hyphen rules, which reject hosts like my_host or r3---sn-abc that browsers
// resolve fine.
var hostProfile = idna.New(
	idna.MapForLookup(),
	idna.StrictDomainName(false),
	idna.CheckHyphens(false),
)

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// filterQuery drops tracking parameters while keeping the original order of
// everything else. Keys and values are re-encoded so equivalent encodings
// produce the same output.
func (p *Parser) filterQuery(raw string) string {
	if raw == "" {
		return ""
	}
	kept := make([]string, 0, 4)
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, hasValue := strings.Cut(pair, "=")
		key := unescapeLenient(rawKey)
		if key == "" || p.isTracking(key) {
			continue
		}
		encoded := escapeQuery(key)
		if hasValue {
			encoded += "=" + escapeQuery(unescapeLenient(rawValue))
		}
		kept = append(kept, encoded)
	}
	return strings.Join(kept, "&")
}

// queryUnescaper undoes url.QueryEscape for characters that are legal inside
// a query component, so next=/a/b stays readable for the player.
var queryUnescaper = strings.NewReplacer(
	"%2F", "/",
	"%3A", ":",
	"%40", "@",
	"%2C", ",",
	"%21", "!",
	"%24", "$",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
	"%3F", "?",
)

func escapeQuery(s string) string {
	return queryUnescaper.Replace(url.QueryEscape(s))
}

func (p *Parser) isTracking(key string) bool {
	key = strings.ToLower(key)
	if _, ok := p.tracking[key]; ok {
		return true
	}
	for _, prefix := range p.trackingPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func unescapeLenient(value string) string {
	decoded, err := url.QueryUnescape(value)
	if err != nil {
		return value
	}
	return decoded
}
