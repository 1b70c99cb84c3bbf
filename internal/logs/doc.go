// Package logs reads the yt-mpv log file for `yt-mpv logs`.
//
// Last returns the final N lines with bounded memory, optionally keeping only
// lines that mention a substring such as a run ID. Follow polls the file from
// an offset and emits new lines until the context ends, starting over when
// the file shrinks underneath it.
package logs
