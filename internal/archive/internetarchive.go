package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/schollz/progressbar/v3"

	"github.com/bitplane/yt-mpv/internal/config"
	"github.com/bitplane/yt-mpv/internal/logging"
	"github.com/bitplane/yt-mpv/internal/uri"
)

const backendInternetArchive = "internetarchive"

// InternetArchive downloads media with yt-dlp and uploads it as an
// archive.org item through the S3-compatible API.
type InternetArchive struct {
	client         HTTPDoer
	downloader     *Downloader
	logger         *slog.Logger
	progress       io.Writer
	accessKey      string
	secretKey      string
	metadataURL    string
	s3URL          string
	detailsURL     string
	prefix         string
	username       string
	collection     string
	mediaType      string
	cacheDir       string
	keepFiles      bool
	requestTimeout time.Duration
}

var _ Archiver = (*InternetArchive)(nil)

// InternetArchiveOption configures the Internet Archive backend.
type InternetArchiveOption func(*InternetArchive)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client HTTPDoer) InternetArchiveOption {
	return func(a *InternetArchive) {
		if client != nil {
			a.client = client
		}
	}
}

// WithDownloader overrides the yt-dlp downloader.
func WithDownloader(d *Downloader) InternetArchiveOption {
	return func(a *InternetArchive) {
		if d != nil {
			a.downloader = d
		}
	}
}

// WithProgress renders an upload progress bar to w.
func WithProgress(w io.Writer) InternetArchiveOption {
	return func(a *InternetArchive) {
		a.progress = w
	}
}

// NewInternetArchive constructs the archive.org item backend.
func NewInternetArchive(cfg *config.Config, logger *slog.Logger, opts ...InternetArchiveOption) (*InternetArchive, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	ia := cfg.InternetArchive
	a := &InternetArchive{
		client:         http.DefaultClient,
		logger:         logging.NewComponentLogger(logger, backendInternetArchive),
		accessKey:      ia.AccessKey,
		secretKey:      ia.SecretKey,
		metadataURL:    strings.TrimRight(ia.MetadataURL, "/"),
		s3URL:          strings.TrimRight(ia.S3URL, "/"),
		detailsURL:     strings.TrimRight(ia.DetailsURL, "/"),
		prefix:         ia.IdentifierPrefix,
		username:       ia.Username,
		collection:     ia.Collection,
		mediaType:      ia.MediaType,
		cacheDir:       cfg.Paths.CacheDir,
		keepFiles:      ia.KeepFiles,
		requestTimeout: time.Duration(ia.RequestTimeout) * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.downloader == nil {
		d, err := NewDownloader(cfg.Downloader.YtDlpBinary, cfg.Downloader.Format, cfg.Downloader.Timeout)
		if err != nil {
			return nil, err
		}
		a.downloader = d
	}
	return a, nil
}

// Name implements Archiver.
func (a *InternetArchive) Name() string { return backendInternetArchive }

// Identifier returns the item identifier used for url.
func (a *InternetArchive) Identifier(url uri.CanonicalURL) string {
	return ItemIdentifier(a.prefix, a.username, url)
}

// RemoteURL implements Archiver.
func (a *InternetArchive) RemoteURL(remoteID string) string {
	if remoteID == "" {
		return ""
	}
	return a.detailsURL + "/" + remoteID
}

type itemMetadata struct {
	Metadata map[string]any `json:"metadata"`
}

// Query reports whether the item for url exists.
func (a *InternetArchive) Query(ctx context.Context, url uri.CanonicalURL) (string, bool, error) {
	identifier := a.Identifier(url)
	queryCtx := ctx
	if a.requestTimeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, a.requestTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(queryCtx, http.MethodGet, a.metadataURL+"/"+identifier, nil)
	if err != nil {
		return "", false, fmt.Errorf("build metadata request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		return "", false, transportError(a.Name(), "metadata lookup", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", false, responseError(a.Name(), "metadata lookup", resp)
	}

	var payload itemMetadata
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", false, transient(a.Name(), Network, "decode metadata", err)
	}
	if len(payload.Metadata) == 0 {
		return "", false, nil
	}
	return identifier, true, nil
}

// Submit downloads url and uploads it as a new item. An existing item is
// reported as success without re-uploading.
func (a *InternetArchive) Submit(ctx context.Context, url uri.CanonicalURL) (string, error) {
	logger := logging.WithContext(ctx, a.logger)
	identifier, found, err := a.Query(ctx, url)
	if err != nil {
		return "", err
	}
	if found {
		logger.Info("item already exists", logging.String("identifier", identifier))
		return identifier, nil
	}
	identifier = a.Identifier(url)

	if a.accessKey == "" || a.secretKey == "" {
		return "", permanent(a.Name(), Rejected, "internet archive credentials not configured", nil)
	}

	logger.Info("downloading media", logging.String("identifier", identifier))
	download, err := a.downloader.Download(ctx, string(url), a.cacheDir)
	if err != nil {
		return "", err
	}
	if !a.keepFiles {
		defer a.removeDownload(logger, download)
	}

	info, err := ReadMediaInfo(download.InfoPath)
	if err != nil {
		logging.WarnWithContext(logger, "media info unavailable; uploading with minimal metadata", "archive.metadata",
			logging.Error(err),
			logging.String(logging.FieldImpact, "item title and description will be generic"),
		)
		info = MediaInfo{}
	}

	logger.Info("uploading item", logging.String("identifier", identifier), logging.String("file", filepath.Base(download.MediaPath)))
	if err := a.upload(ctx, identifier, download.MediaPath, a.headers(url, info)); err != nil {
		return "", err
	}
	return identifier, nil
}

func (a *InternetArchive) headers(url uri.CanonicalURL, info MediaInfo) http.Header {
	header := http.Header{}
	set := func(name, value string) {
		if value = strings.TrimSpace(value); value != "" {
			header.Set("x-archive-meta-"+name, encodeMetaValue(value))
		}
	}
	title := info.Title
	if title == "" {
		title = "Untitled Video"
	}
	source := info.WebpageURL
	if source == "" {
		source = string(url)
	}
	set("mediatype", a.mediaType)
	set("collection", a.collection)
	set("title", title)
	set("description", info.Description)
	set("creator", info.Creator())
	set("source", source)
	for i, subject := range info.Subjects() {
		header.Set(fmt.Sprintf("x-archive-meta%02d-subject", i+1), encodeMetaValue(subject))
	}
	return header
}

// encodeMetaValue wraps values that cannot travel as a plain header in the
// uri() form understood by the archive.org S3 API.
func encodeMetaValue(value string) string {
	for _, r := range value {
		if r > unicode.MaxASCII || r == '\n' || r == '\r' {
			return "uri(" + url.PathEscape(value) + ")"
		}
	}
	return value
}

func (a *InternetArchive) upload(ctx context.Context, identifier, path string, meta http.Header) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open media file: %w", err)
	}
	defer file.Close()
	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat media file: %w", err)
	}

	var body io.Reader = file
	var bar *progressbar.ProgressBar
	if a.progress != nil {
		bar = progressbar.NewOptions64(stat.Size(),
			progressbar.OptionSetWriter(a.progress),
			progressbar.OptionSetDescription("uploading "+identifier),
			progressbar.OptionShowBytes(true),
			progressbar.OptionClearOnFinish(),
		)
		body = io.TeeReader(file, bar)
	}

	target := fmt.Sprintf("%s/%s/%s", a.s3URL, identifier, url.PathEscape(filepath.Base(path)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, body)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.ContentLength = stat.Size()
	for name, values := range meta {
		req.Header[name] = values
	}
	req.Header.Set("Authorization", lowAuthorization(a.accessKey, a.secretKey))
	req.Header.Set("x-amz-auto-make-bucket", "1")
	req.Header.Set("x-archive-queue-derive", "1")

	resp, err := a.client.Do(req)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return transportError(a.Name(), "upload", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return responseError(a.Name(), "upload", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (a *InternetArchive) removeDownload(logger *slog.Logger, download Download) {
	for _, path := range []string{download.MediaPath, download.InfoPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.WarnWithContext(logger, "failed to remove downloaded file", "archive.cleanup",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "run yt-mpv cache clean"),
				logging.String(logging.FieldImpact, "cache directory keeps the file until pruned"),
			)
		}
	}
}
