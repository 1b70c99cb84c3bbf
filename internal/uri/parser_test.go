package uri_test

import (
	"errors"
	"testing"
	"time"

	"github.com/bitplane/yt-mpv/internal/config"
	"github.com/bitplane/yt-mpv/internal/uri"
)

func newParser() *uri.Parser {
	cfg := config.Default()
	return uri.NewParser(uri.Options{
		Schemes:        cfg.URI.Schemes,
		LegacySchemes:  cfg.URI.LegacySchemes,
		TrackingParams: cfg.URI.TrackingParams,
	})
}

func TestParseExampleStripsTrackingAndLowercasesHost(t *testing.T) {
	got, opts, err := newParser().Parse("x-ytarchive://play?u=https://M.Example.com/watch?v=abc123&utm_source=foo")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if want := uri.CanonicalURL("https://m.example.com/watch?v=abc123"); got != want {
		t.Fatalf("unexpected canonical url: got %q want %q", got, want)
	}
	if !opts.Archive {
		t.Fatal("expected archiving enabled by default")
	}
}

func TestParseVariants(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		want        uri.CanonicalURL
		wantArchive bool
		wantStart   time.Duration
	}{
		{
			name:        "encoded target with trailing options",
			input:       "x-ytarchive://play?u=https%3A%2F%2Fwww.youtube.com%2Fwatch%3Fv%3Dxyz%26list%3DPL1&archive=0&start=90",
			want:        "https://www.youtube.com/watch?v=xyz&list=PL1",
			wantArchive: false,
			wantStart:   90 * time.Second,
		},
		{
			name:        "options before unencoded target",
			input:       "x-ytarchive://play?t=1m30s&url=https://example.com/v?id=7&si=abc&list=9",
			want:        "https://example.com/v?id=7&list=9",
			wantArchive: true,
			wantStart:   90 * time.Second,
		},
		{
			name:        "legacy https scheme",
			input:       "x-yt-mpvs://www.YouTube.com/watch?v=dQw4w9WgXcQ&feature=share&archive=0",
			want:        "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			wantArchive: false,
		},
		{
			name:        "legacy form with offset",
			input:       "x-yt-mpvs://www.youtube.com/watch?v=abc&start=30&archive=0",
			want:        "https://www.youtube.com/watch?v=abc",
			wantArchive: false,
			wantStart:   30 * time.Second,
		},
		{
			name:        "legacy form with t offset",
			input:       "x-yt-mpvs://www.youtube.com/watch?t=1m&v=abc",
			want:        "https://www.youtube.com/watch?v=abc",
			wantArchive: true,
			wantStart:   time.Minute,
		},
		{
			name:        "legacy http scheme",
			input:       "x-yt-mpv://example.org/clip",
			want:        "http://example.org/clip",
			wantArchive: true,
		},
		{
			name:        "legacy bookmarklet form",
			input:       "x-yt-mpv://?url=https%3A%2F%2Fyoutu.be%2Fabc%3Fsi%3Dtracking&archive=1",
			want:        "https://youtu.be/abc",
			wantArchive: true,
		},
		{
			name:        "default port fragment and empty path",
			input:       "x-ytarchive://play?u=https://Example.com:443#top",
			want:        "https://example.com/",
			wantArchive: true,
		},
		{
			name:        "non default port kept",
			input:       "x-ytarchive://play?u=http://example.com:8080/a?b=1",
			want:        "http://example.com:8080/a?b=1",
			wantArchive: true,
		},
		{
			name:        "idn host",
			input:       "x-ytarchive://play?u=https://bücher.example/v",
			want:        "https://xn--bcher-kva.example/v",
			wantArchive: true,
		},
	}

	parser := newParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, opts, err := parser.Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse returned error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("unexpected canonical url: got %q want %q", got, tt.want)
			}
			if opts.Archive != tt.wantArchive {
				t.Fatalf("unexpected archive option: got %v want %v", opts.Archive, tt.wantArchive)
			}
			if opts.Start != tt.wantStart {
				t.Fatalf("unexpected start: got %s want %s", opts.Start, tt.wantStart)
			}
		})
	}
}

func TestTrackingParamsDoNotChangeKey(t *testing.T) {
	parser := newParser()
	base := "https://www.youtube.com/watch?v=abc&list=L1"
	variants := []string{
		"https://www.youtube.com/watch?utm_source=x&v=abc&utm_medium=y&list=L1",
		"https://WWW.youtube.com/watch?v=abc&fbclid=123&list=L1&gclid=9",
		"https://www.youtube.com/watch?v=abc&si=share&list=L1&feature=youtu.be&pp=zz",
		"https://www.youtube.com/watch?v=abc&list=L1&UTM_CAMPAIGN=spring#t=3",
	}

	want, err := parser.Canonicalize(base)
	if err != nil {
		t.Fatalf("Canonicalize base: %v", err)
	}
	for _, variant := range variants {
		got, err := parser.Canonicalize(variant)
		if err != nil {
			t.Fatalf("Canonicalize %q: %v", variant, err)
		}
		if got != want {
			t.Fatalf("variant %q produced %q, want %q", variant, got, want)
		}
	}
}

func TestCanonicalizeAcceptsLenientHosts(t *testing.T) {
	tests := []struct {
		input string
		want  uri.CanonicalURL
	}{
		{"https://my_host.example.com/v/1", "https://my_host.example.com/v/1"},
		{"https://r3---sn-abc.googlevideo.com/videoplayback?id=1", "https://r3---sn-abc.googlevideo.com/videoplayback?id=1"},
		{"https://R3---SN-ABC.googlevideo.com./x", "https://r3---sn-abc.googlevideo.com/x"},
		{"https://bücher_shop.example/v", "https://xn--bcher_shop-9db.example/v"},
	}

	parser := newParser()
	for _, tt := range tests {
		got, err := parser.Canonicalize(tt.input)
		if err != nil {
			t.Fatalf("Canonicalize(%q) returned error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Fatalf("Canonicalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestCanonicalizeKeepsReservedQueryCharacters(t *testing.T) {
	tests := []struct {
		input string
		want  uri.CanonicalURL
	}{
		{"https://example.com/login?next=/a/b", "https://example.com/login?next=/a/b"},
		{"https://example.com/r?to=https://x.example/y?z=1", "https://example.com/r?to=https://x.example/y?z%3D1"},
		{"https://example.com/s?q=a%26b&x=%2Fp", "https://example.com/s?q=a%26b&x=/p"},
		{"https://example.com/s?q=two%20words", "https://example.com/s?q=two+words"},
	}

	parser := newParser()
	for _, tt := range tests {
		got, err := parser.Canonicalize(tt.input)
		if err != nil {
			t.Fatalf("Canonicalize(%q) returned error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Fatalf("Canonicalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestCanonicalizePreservesParameterOrder(t *testing.T) {
	parser := newParser()
	first, _ := parser.Canonicalize("https://example.com/p?b=2&a=1")
	second, _ := parser.Canonicalize("https://example.com/p?a=1&b=2")
	if first == second {
		t.Fatalf("expected order to be preserved, both produced %q", first)
	}
	if first != "https://example.com/p?b=2&a=1" {
		t.Fatalf("unexpected canonical url: %q", first)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		kind  uri.ParseErrorKind
	}{
		{"foreign scheme", "ftp://example.com/file", uri.UnsupportedScheme},
		{"plain https", "https://example.com/watch?v=1", uri.UnsupportedScheme},
		{"no scheme", "example.com/watch", uri.UnsupportedScheme},
		{"empty", "", uri.UnsupportedScheme},
		{"missing target", "x-ytarchive://play?archive=0", uri.MalformedTarget},
		{"no query", "x-ytarchive://play", uri.MalformedTarget},
		{"relative target", "x-ytarchive://play?u=/watch?v=1", uri.MalformedTarget},
		{"non http target", "x-ytarchive://play?u=javascript%3Aalert(1)", uri.MalformedTarget},
		{"hostless target", "x-ytarchive://play?u=https:///path", uri.MalformedTarget},
	}

	parser := newParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parser.Parse(tt.input)
			var parseErr *uri.ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected ParseError, got %v", err)
			}
			if parseErr.Kind != tt.kind {
				t.Fatalf("unexpected kind: got %s want %s", parseErr.Kind, tt.kind)
			}
		})
	}
}

func TestHandles(t *testing.T) {
	parser := newParser()
	if !parser.Handles("X-YTARCHIVE://play?u=x") {
		t.Fatal("expected wrapper scheme to be handled case-insensitively")
	}
	if !parser.Handles("x-yt-mpvs://youtube.com") {
		t.Fatal("expected legacy scheme to be handled")
	}
	if parser.Handles("https://youtube.com") {
		t.Fatal("plain https must not be handled")
	}
}
