package uri

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// PlaybackOptions carries handler options that affect the player or the
// archive unit but never the ledger key.
type PlaybackOptions struct {
	// Archive is false when the caller asked for playback only (archive=0).
	Archive bool
	// Start is an optional offset passed to the player.
	Start time.Duration
}

// Options configures a Parser.
type Options struct {
	// Schemes carry the media URL in a u= or url= query parameter.
	Schemes []string
	// LegacySchemes replace their own scheme with the mapped one (http or https).
	LegacySchemes map[string]string
	// TrackingParams are dropped during canonicalization. A trailing * matches a prefix.
	TrackingParams []string
}

// Parser extracts canonical media URLs from handler URIs. It performs no I/O
// and is safe for concurrent use.
type Parser struct {
	schemes          map[string]struct{}
	legacy           map[string]string
	tracking         map[string]struct{}
	trackingPrefixes []string
}

var targetKeys = map[string]struct{}{"u": {}, "url": {}}

// legacyOptionKeys are read from a legacy URI's own query and removed from
// the canonical URL so the offset never changes the ledger key.
var legacyOptionKeys = []string{"archive", "start", "t"}

// NewParser builds a Parser from opts.
func NewParser(opts Options) *Parser {
	p := &Parser{
		schemes:  make(map[string]struct{}, len(opts.Schemes)),
		legacy:   make(map[string]string, len(opts.LegacySchemes)),
		tracking: make(map[string]struct{}, len(opts.TrackingParams)),
	}
	for _, scheme := range opts.Schemes {
		if scheme = strings.ToLower(strings.TrimSpace(scheme)); scheme != "" {
			p.schemes[scheme] = struct{}{}
		}
	}
	for scheme, target := range opts.LegacySchemes {
		p.legacy[strings.ToLower(strings.TrimSpace(scheme))] = strings.ToLower(strings.TrimSpace(target))
	}
	for _, param := range opts.TrackingParams {
		param = strings.ToLower(strings.TrimSpace(param))
		switch {
		case param == "":
		case strings.HasSuffix(param, "*"):
			p.trackingPrefixes = append(p.trackingPrefixes, strings.TrimSuffix(param, "*"))
		default:
			p.tracking[param] = struct{}{}
		}
	}
	return p
}

// Handles reports whether raw uses one of the registered schemes.
func (p *Parser) Handles(raw string) bool {
	scheme, _, ok := splitScheme(raw)
	if !ok {
		return false
	}
	if _, ok := p.schemes[scheme]; ok {
		return true
	}
	_, ok = p.legacy[scheme]
	return ok
}

// Parse extracts the canonical media URL and playback options from a handler URI.
func (p *Parser) Parse(raw string) (CanonicalURL, PlaybackOptions, error) {
	raw = strings.TrimSpace(raw)
	opts := PlaybackOptions{Archive: true}

	scheme, rest, ok := splitScheme(raw)
	if !ok {
		return "", opts, unsupported(raw, "")
	}

	if _, ok := p.schemes[scheme]; ok {
		target, err := p.extractWrapped(raw, rest, &opts)
		if err != nil {
			return "", opts, err
		}
		canonical, err := p.Canonicalize(target)
		return canonical, opts, err
	}

	if mapped, ok := p.legacy[scheme]; ok {
		canonical, err := p.parseLegacy(raw, mapped+":"+rest, &opts)
		return canonical, opts, err
	}

	return "", opts, unsupported(raw, scheme)
}

// extractWrapped reads wrapper options and the target from
// <scheme>://<anything>?opt=v&u=<target>. An unencoded target runs to the end
// of the URI so its own query string is preserved.
func (p *Parser) extractWrapped(raw, rest string, opts *PlaybackOptions) (string, error) {
	_, query, found := strings.Cut(rest, "?")
	if !found || query == "" {
		return "", malformed(raw, "missing u= target parameter", nil)
	}

	remaining := query
	for remaining != "" {
		pair, next, _ := strings.Cut(remaining, "&")
		key, value, _ := strings.Cut(pair, "=")
		key = strings.ToLower(unescapeLenient(key))

		if _, isTarget := targetKeys[key]; isTarget {
			if strings.Contains(value, "://") {
				return remainderAfterKey(remaining), nil
			}
			decoded, err := url.QueryUnescape(value)
			if err != nil {
				return "", malformed(raw, "undecodable target", err)
			}
			// Options may follow an encoded target.
			applyOptions(next, opts)
			return decoded, nil
		}
		applyOption(key, unescapeLenient(value), opts)
		remaining = next
	}
	return "", malformed(raw, "missing u= target parameter", nil)
}

// parseLegacy handles x-yt-mpv(s)://host/path forms and the bookmarklet form
// x-yt-mpv://?url=<encoded>&archive=0.
func (p *Parser) parseLegacy(raw, mapped string, opts *PlaybackOptions) (CanonicalURL, error) {
	parsed, err := url.Parse(mapped)
	if err != nil {
		return "", malformed(raw, "target is not a url", err)
	}
	if parsed.Host == "" {
		target, err := p.extractWrapped(raw, mapped, opts)
		if err != nil {
			return "", err
		}
		return p.Canonicalize(target)
	}

	values := parsed.Query()
	for _, key := range legacyOptionKeys {
		if v, ok := values[key]; ok && len(v) > 0 {
			applyOption(key, v[0], opts)
		}
		parsed.RawQuery = dropQueryKey(parsed.RawQuery, key)
	}
	return p.Canonicalize(parsed.String())
}

func splitScheme(raw string) (string, string, bool) {
	idx := strings.Index(raw, ":")
	if idx <= 0 {
		return "", "", false
	}
	scheme := strings.ToLower(raw[:idx])
	for i, r := range scheme {
		isAlpha := r >= 'a' && r <= 'z'
		isOther := (r >= '0' && r <= '9') || r == '+' || r == '-' || r == '.'
		if !isAlpha && (i == 0 || !isOther) {
			return "", "", false
		}
	}
	return scheme, raw[idx+1:], true
}

func remainderAfterKey(query string) string {
	_, value, _ := strings.Cut(query, "=")
	return value
}

func applyOptions(query string, opts *PlaybackOptions) {
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		applyOption(strings.ToLower(unescapeLenient(key)), unescapeLenient(value), opts)
	}
}

// applyOption ignores unknown keys and unparseable values; options never make
// a URI invalid.
func applyOption(key, value string, opts *PlaybackOptions) {
	value = strings.TrimSpace(value)
	switch key {
	case "archive":
		switch strings.ToLower(value) {
		case "0", "false", "no", "off":
			opts.Archive = false
		case "1", "true", "yes", "on":
			opts.Archive = true
		}
	case "start", "t":
		if d, ok := parseOffset(value); ok {
			opts.Start = d
		}
	}
}

func parseOffset(value string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}

func dropQueryKey(raw, drop string) string {
	if raw == "" {
		return raw
	}
	kept := make([]string, 0, 4)
	for _, pair := range strings.Split(raw, "&") {
		key, _, _ := strings.Cut(pair, "=")
		if strings.EqualFold(unescapeLenient(key), drop) {
			continue
		}
		kept = append(kept, pair)
	}
	return strings.Join(kept, "&")
}
