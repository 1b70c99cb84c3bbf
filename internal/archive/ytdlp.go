package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout func(string)) error
}

// CommandError reports a non-zero exit together with the tail of stderr.
type CommandError struct {
	Binary string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %v", e.Binary, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Binary, e.Err, e.Stderr)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Download is the result of a yt-dlp run.
type Download struct {
	MediaPath string
	InfoPath  string
}

// MediaInfo is the subset of yt-dlp's info.json used for item metadata.
type MediaInfo struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Uploader    string   `json:"uploader"`
	Channel     string   `json:"channel"`
	Tags        []string `json:"tags"`
	Categories  []string `json:"categories"`
	WebpageURL  string   `json:"webpage_url"`
	Extractor   string   `json:"extractor"`
}

// Creator returns the best available author name.
func (m MediaInfo) Creator() string {
	if m.Uploader != "" {
		return m.Uploader
	}
	return m.Channel
}

// Subjects merges tags and categories, dropping duplicates.
func (m MediaInfo) Subjects() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, value := range append(append([]string{}, m.Tags...), m.Categories...) {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		key := strings.ToLower(value)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, value)
	}
	return out
}

// Downloader wraps yt-dlp.
type Downloader struct {
	binary  string
	format  string
	timeout time.Duration
	exec    Executor
}

// DownloaderOption configures the downloader.
type DownloaderOption func(*Downloader)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) DownloaderOption {
	return func(d *Downloader) {
		if exec != nil {
			d.exec = exec
		}
	}
}

// NewDownloader constructs a yt-dlp downloader.
func NewDownloader(binary, format string, timeoutSeconds int, opts ...DownloaderOption) (*Downloader, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("yt-dlp binary required")
	}
	d := &Downloader{
		binary:  binary,
		format:  strings.TrimSpace(format),
		timeout: time.Duration(timeoutSeconds) * time.Second,
		exec:    commandExecutor{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Download fetches url into dir and returns the media and info.json paths.
func (d *Downloader) Download(ctx context.Context, url, dir string) (Download, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Download{}, fmt.Errorf("create download directory: %w", err)
	}
	runCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	args := []string{}
	if d.format != "" {
		args = append(args, "-f", d.format)
	}
	args = append(args,
		"--write-info-json",
		"--no-part",
		"--force-overwrites",
		"--no-playlist",
		"-o", filepath.Join(dir, "yt-mpv-%(extractor)s-%(id)s.%(ext)s"),
		"--print", "after_move:filepath",
		url,
	)

	var mediaPath string
	err := d.exec.Run(runCtx, d.binary, args, func(line string) {
		if line = strings.TrimSpace(line); line != "" {
			mediaPath = line
		}
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Download{}, ctxErr
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return Download{}, transient(backendInternetArchive, Timeout, "yt-dlp timed out", err)
		}
		return Download{}, classifyYtDlp(err)
	}
	if mediaPath == "" {
		return Download{}, transient(backendInternetArchive, Network, "yt-dlp reported no output file", nil)
	}
	if _, err := os.Stat(mediaPath); err != nil {
		return Download{}, fmt.Errorf("stat downloaded file: %w", err)
	}
	return Download{
		MediaPath: mediaPath,
		InfoPath:  strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath)) + ".info.json",
	}, nil
}

const selfUpdateTimeout = 2 * time.Minute

// SelfUpdate runs yt-dlp's own updater and returns its final status line.
func (d *Downloader) SelfUpdate(ctx context.Context) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, selfUpdateTimeout)
	defer cancel()

	var status string
	err := d.exec.Run(runCtx, d.binary, []string{"-U"}, func(line string) {
		if line = strings.TrimSpace(line); line != "" {
			status = line
		}
	})
	if err != nil {
		return "", fmt.Errorf("update %s: %w", filepath.Base(d.binary), err)
	}
	return status, nil
}

// ReadMediaInfo decodes an info.json file written by yt-dlp.
func ReadMediaInfo(path string) (MediaInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return MediaInfo{}, fmt.Errorf("read info json: %w", err)
	}
	var info MediaInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return MediaInfo{}, fmt.Errorf("decode info json: %w", err)
	}
	return info, nil
}

// classifyYtDlp maps yt-dlp failures onto the submission error taxonomy.
func classifyYtDlp(err error) error {
	var cmdErr *CommandError
	stderr := ""
	if errors.As(err, &cmdErr) {
		stderr = cmdErr.Stderr
	}
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "unsupported url"):
		return permanent(backendInternetArchive, InvalidURL, "yt-dlp does not support this url", err)
	case strings.Contains(lower, "http error 429"), strings.Contains(lower, "too many requests"):
		return transient(backendInternetArchive, RateLimited, "media host rate limited the download", err)
	case strings.Contains(lower, "video unavailable"),
		strings.Contains(lower, "private video"),
		strings.Contains(lower, "has been removed"),
		strings.Contains(lower, "been terminated"):
		return permanent(backendInternetArchive, Rejected, "media is unavailable", err)
	case strings.Contains(lower, "timed out"), strings.Contains(lower, "timeout"):
		return transient(backendInternetArchive, Timeout, "download timed out", err)
	default:
		return transient(backendInternetArchive, Network, "yt-dlp failed", err)
	}
}

const stderrTailLines = 20

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onStdout func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var (
		wg      sync.WaitGroup
		scanErr error
		once    sync.Once
		mu      sync.Mutex
		tail    []string
	)

	scan := func(r io.Reader, forward func(string)) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			forward(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	forwardStdout := func(line string) {
		if onStdout != nil {
			onStdout(line)
		}
	}
	collectStderr := func(line string) {
		mu.Lock()
		defer mu.Unlock()
		tail = append(tail, line)
		if len(tail) > stderrTailLines {
			tail = tail[len(tail)-stderrTailLines:]
		}
	}

	wg.Add(2)
	go scan(stdout, forwardStdout)
	go scan(stderr, collectStderr)

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		return &CommandError{Binary: filepath.Base(binary), Stderr: strings.Join(tail, "\n"), Err: err}
	}
	return nil
}
