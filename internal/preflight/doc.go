// Package preflight provides readiness checks for the directories, ledger,
// credentials and external programs yt-mpv depends on.
//
// The "yt-mpv doctor" command runs RunAll and CheckSystemDeps and renders
// the results. Network reachability checks are opt-in so doctor stays usable
// offline.
package preflight
