// Package archive talks to the remote archive services.
//
// Two backends implement Archiver: InternetArchive downloads the media with
// yt-dlp and uploads it as an archive.org item, and Wayback asks Save Page
// Now to capture the page. Both map service failures onto TransientError
// and PermanentError so the coordinator can decide whether to retry.
package archive
