package archive

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"github.com/bitplane/yt-mpv/internal/uri"
)

// ItemIdentifier derives the archive.org item identifier for url. The hash
// is taken over the canonical URL so equivalent links share an item.
func ItemIdentifier(prefix, username string, url uri.CanonicalURL) string {
	sum := sha1.Sum([]byte(url))
	hash := hex.EncodeToString(sum[:])[:8]
	parts := make([]string, 0, 3)
	for _, part := range []string{prefix, username} {
		if cleaned := sanitizeIdentifierPart(part); cleaned != "" {
			parts = append(parts, cleaned)
		}
	}
	parts = append(parts, hash)
	return strings.Join(parts, "-")
}

// archive.org identifiers allow letters, digits, '.', '-' and '_'.
func sanitizeIdentifierPart(value string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(value) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}
