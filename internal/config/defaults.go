package config

const (
	defaultDataDir                = "~/.local/share/yt-mpv"
	defaultCacheDir               = "~/.cache/yt-mpv"
	defaultLogDir                 = "~/.local/share/yt-mpv/logs"
	defaultLedgerDriver           = "sqlite"
	defaultLedgerFile             = "ledger.db"
	defaultLedgerLockTimeout      = 10
	defaultURIScheme              = "x-ytarchive"
	defaultPlayerBinary           = "mpv"
	defaultPlayerFormatArg        = "--ytdl-format=bestvideo[height<=1080]+bestaudio/best"
	defaultArchiveBackend         = "internetarchive"
	defaultArchiveMaxAttempts     = 3
	defaultArchiveInitialBackoff  = 30
	defaultArchiveMaxBackoff      = 300
	defaultArchiveStaleAfter      = 7200
	defaultIAMetadataURL          = "https://archive.org/metadata"
	defaultIAS3URL                = "https://s3.us.archive.org"
	defaultIADetailsURL           = "https://archive.org/details"
	defaultIAIdentifierPrefix     = "yt-mpv"
	defaultIACollection           = "community_video"
	defaultIAMediaType            = "movies"
	defaultIACredentialsFile      = "~/.config/yt-mpv/credentials.env"
	defaultIARequestTimeout       = 20
	defaultWaybackBaseURL         = "https://web.archive.org"
	defaultWaybackAvailabilityURL = "https://archive.org/wayback/available"
	defaultWaybackPollInterval    = 5
	defaultWaybackPollTimeout     = 600
	defaultWaybackRequestTimeout  = 30
	defaultYtDlpBinary            = "yt-dlp"
	defaultDownloadFormat         = "b[ext=mp4]/b"
	defaultCacheMaxAgeDays        = 30
	defaultCachePurgeProbability  = 0.1
	defaultNotifySendBinary       = "notify-send"
	defaultNotifyRequestTimeout   = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// defaultTrackingParams lists query keys that never identify media. Any key
// starting with utm_ is dropped as well.
var defaultTrackingParams = []string{
	"utm_*",
	"fbclid",
	"gclid",
	"dclid",
	"gbraid",
	"wbraid",
	"msclkid",
	"yclid",
	"igshid",
	"mc_cid",
	"mc_eid",
	"si",
	"feature",
	"pp",
	"ref_src",
	"_ga",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			CacheDir: defaultCacheDir,
			LogDir:   defaultLogDir,
		},
		Ledger: Ledger{
			Driver:      defaultLedgerDriver,
			LockTimeout: defaultLedgerLockTimeout,
		},
		URI: URI{
			Schemes: []string{defaultURIScheme},
			LegacySchemes: map[string]string{
				"x-yt-mpv":  "http",
				"x-yt-mpvs": "https",
			},
			TrackingParams: append([]string(nil), defaultTrackingParams...),
		},
		Player: Player{
			Binary: defaultPlayerBinary,
			Args:   []string{defaultPlayerFormatArg},
		},
		Archive: Archive{
			Backend:        defaultArchiveBackend,
			MaxAttempts:    defaultArchiveMaxAttempts,
			InitialBackoff: defaultArchiveInitialBackoff,
			MaxBackoff:     defaultArchiveMaxBackoff,
			StaleAfter:     defaultArchiveStaleAfter,
		},
		InternetArchive: InternetArchive{
			CredentialsFile:  defaultIACredentialsFile,
			MetadataURL:      defaultIAMetadataURL,
			S3URL:            defaultIAS3URL,
			DetailsURL:       defaultIADetailsURL,
			IdentifierPrefix: defaultIAIdentifierPrefix,
			Collection:       defaultIACollection,
			MediaType:        defaultIAMediaType,
			RequestTimeout:   defaultIARequestTimeout,
		},
		Wayback: Wayback{
			BaseURL:         defaultWaybackBaseURL,
			AvailabilityURL: defaultWaybackAvailabilityURL,
			PollInterval:    defaultWaybackPollInterval,
			PollTimeout:     defaultWaybackPollTimeout,
			RequestTimeout:  defaultWaybackRequestTimeout,
		},
		Downloader: Downloader{
			YtDlpBinary: defaultYtDlpBinary,
			Format:      defaultDownloadFormat,
		},
		Cache: Cache{
			MaxAgeDays:       defaultCacheMaxAgeDays,
			PurgeProbability: defaultCachePurgeProbability,
		},
		Notifications: Notifications{
			Desktop:          true,
			NotifySendBinary: defaultNotifySendBinary,
			RequestTimeout:   defaultNotifyRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
