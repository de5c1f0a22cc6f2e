package ytdlp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ProgressUpdate captures yt-dlp download progress output.
type ProgressUpdate struct {
	Percent float64
	Message string
}

// Downloader defines the behaviour required by the fetch handler.
type Downloader interface {
	Download(ctx context.Context, url, destDir string, progress func(ProgressUpdate)) (string, error)
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout func(string)) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps yt-dlp CLI interactions.
type Client struct {
	binary          string
	format          string
	downloadTimeout time.Duration
	exec            Executor
}

// New constructs a yt-dlp client. An empty format falls back to yt-dlp's
// own default selection.
func New(binary, format string, downloadTimeoutSeconds int, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("yt-dlp binary required")
	}
	client := &Client{
		binary:          binary,
		format:          strings.TrimSpace(format),
		downloadTimeout: time.Duration(downloadTimeoutSeconds) * time.Second,
		exec:            commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Download runs yt-dlp against the given URL, writing into destDir, and
// returns the path of the downloaded file.
func (c *Client) Download(ctx context.Context, url, destDir string, progress func(ProgressUpdate)) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", errors.New("download url required")
	}
	if destDir == "" {
		return "", errors.New("destination directory required")
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create destination: %w", err)
	}

	downloadCtx := ctx
	if c.downloadTimeout > 0 {
		var cancel context.CancelFunc
		downloadCtx, cancel = context.WithTimeout(ctx, c.downloadTimeout)
		defer cancel()
	}

	args := []string{
		"--no-playlist",
		"--newline",
		"--output", filepath.Join(destDir, "%(id)s.%(ext)s"),
	}
	if c.format != "" {
		args = append(args, "--format", c.format)
	}
	args = append(args, url)

	// Snapshot the directory before the run so the new file stands out even
	// when yt-dlp picks an extension we did not predict.
	before, err := listFiles(destDir)
	if err != nil {
		return "", fmt.Errorf("inspect destination: %w", err)
	}

	if err := c.exec.Run(downloadCtx, c.binary, args, func(line string) {
		if progress == nil {
			return
		}
		if update, ok := parseProgress(line); ok {
			progress(update)
		}
	}); err != nil {
		return "", fmt.Errorf("yt-dlp download: %w", err)
	}

	after, err := listFiles(destDir)
	if err != nil {
		return "", fmt.Errorf("inspect download outputs: %w", err)
	}
	target := newestNewFile(before, after)
	if target == "" {
		return "", errors.New("yt-dlp produced no output file")
	}
	return target, nil
}

type fileEntry struct {
	path    string
	modTime time.Time
}

func listFiles(dir string) (map[string]fileEntry, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	result := make(map[string]fileEntry, len(items))
	for _, item := range items {
		if item.IsDir() {
			continue
		}
		name := strings.ToLower(item.Name())
		if strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".ytdl") {
			continue
		}
		info, err := item.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, item.Name())
		result[path] = fileEntry{path: path, modTime: info.ModTime()}
	}
	return result, nil
}

func newestNewFile(before, after map[string]fileEntry) string {
	var best fileEntry
	for path, entry := range after {
		if _, existed := before[path]; existed {
			continue
		}
		if best.path == "" || entry.modTime.After(best.modTime) {
			best = entry
		}
	}
	return best.path
}

// parseProgress extracts percentages from yt-dlp --newline output, e.g.
// "[download]  42.3% of 1.40GiB at 5.20MiB/s ETA 02:35".
func parseProgress(line string) (ProgressUpdate, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "[download]") {
		return ProgressUpdate{}, false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(line, "[download]"))
	fields := strings.Fields(rest)
	if len(fields) == 0 || !strings.HasSuffix(fields[0], "%") {
		return ProgressUpdate{}, false
	}
	percent, err := strconv.ParseFloat(strings.TrimSuffix(fields[0], "%"), 64)
	if err != nil {
		return ProgressUpdate{}, false
	}
	return ProgressUpdate{Percent: percent, Message: rest}, true
}

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

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := scanner.Text()
			if onStdout != nil {
				onStdout(line)
			} else {
				fmt.Fprintln(os.Stderr, line)
			}
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
