// Package uri turns custom-scheme handler URIs into canonical media URLs.
//
// Two URI shapes are accepted. Wrapper schemes such as
// x-ytarchive://play?u=<target> carry the media URL in a u or url parameter;
// legacy schemes such as x-yt-mpvs://www.youtube.com/watch?v=... swap their
// scheme for http or https. Canonicalization is deterministic so repeated
// parses of equivalent URLs produce the same ledger key.
package uri
