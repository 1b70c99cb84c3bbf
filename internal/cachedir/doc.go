// Package cachedir manages the directory yt-dlp downloads into before an
// upload: listing it, pruning old files and clearing it.
package cachedir
