// Command yt-mpv is the URI handler and command line for yt-mpv.
//
// The desktop entry runs "yt-mpv %u" for x-ytarchive:// and the legacy
// x-yt-mpv(s):// schemes. The URI is parsed, the video starts in mpv, and
// the same process archives it while playback continues. Other subcommands
// inspect the ledger, check archive status, archive in the foreground and
// manage the download cache.
//
// Exit status: 0 success; 1 not archived, in progress or doctor problems;
// 2 usage; 3 remote lookup failure; 4 rejected URI; 5 player could not be
// started; 6 ledger failure; 7 archive attempt failed.
package main
