package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and file location configuration.
type Paths struct {
	StagingDir   string `toml:"staging_dir"`
	LogDir       string `toml:"log_dir"`
	ReviewDir    string `toml:"review_dir"`
	ProcessedLog string `toml:"processed_log"`
}

// YouTube contains configuration for the YouTube Data API listing client.
type YouTube struct {
	APIKey    string `toml:"api_key"`
	ChannelID string `toml:"channel_id"`
	BaseURL   string `toml:"base_url"`
}

// Upload contains configuration for publishing processed videos.
type Upload struct {
	TokenFile  string   `toml:"token_file"`
	UploadURL  string   `toml:"upload_url"`
	Privacy    string   `toml:"privacy"`
	CategoryID string   `toml:"category_id"`
	Tags       []string `toml:"tags"`
}

// Discovery contains configuration for candidate selection.
type Discovery struct {
	// Mode selects between processing only the most recently started stream
	// per pass ("latest") and draining the full unprocessed backlog ("backlog").
	Mode       string `toml:"mode"`
	ScanFloor  string `toml:"scan_floor"`
	ScanBudget int    `toml:"scan_budget"`
	PageSize   int    `toml:"page_size"`
}

// Pipeline contains the commit policy and retry bounds for the two large transfers.
type Pipeline struct {
	// Commit controls when a stream's URL is appended to the processed log:
	// "after_download" as soon as the source file is verified on disk, or
	// "after_publish" once the upload has succeeded.
	Commit        string `toml:"commit"`
	RetryAttempts int    `toml:"retry_attempts"`
	RetryDelay    int    `toml:"retry_delay"`
}

// Fetch contains configuration for the yt-dlp download step.
type Fetch struct {
	Format          string `toml:"format"`
	DownloadTimeout int    `toml:"download_timeout"`
}

// Transcode contains the speed-up recipe parameters.
type Transcode struct {
	SpeedFactor float64 `toml:"speed_factor"`
	FrameRate   int     `toml:"frame_rate"`
	VideoCodec  string  `toml:"video_codec"`
	DropAudio   bool    `toml:"drop_audio"`
	// AudioTrack, when set and drop_audio is false, is mixed under the
	// timelapse starting at a randomized seek offset.
	AudioTrack string `toml:"audio_track"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	CheckInterval        int `toml:"check_interval"`
	ErrorRetryInterval   int `toml:"error_retry_interval"`
	StagingRetentionDays int `toml:"staging_retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Discovery      bool   `toml:"discovery"`
	Download       bool   `toml:"download"`
	Upload         bool   `toml:"upload"`
	Review         bool   `toml:"review"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for streamlapse.
//
// Configuration sections by subsystem:
//   - Paths: staging, log, review directories and the processed URL log
//   - YouTube: Data API key, channel, base URL for discovery
//   - Upload: OAuth token file and publish metadata defaults
//   - Discovery: scan mode, floor, budget, page size
//   - Pipeline: commit policy and retry bounds
//   - Fetch: yt-dlp format and timeout
//   - Transcode: speed-up recipe constants
//   - Workflow: daemon interval timing
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	YouTube       YouTube       `toml:"youtube"`
	Upload        Upload        `toml:"upload"`
	Discovery     Discovery     `toml:"discovery"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Fetch         Fetch         `toml:"fetch"`
	Transcode     Transcode     `toml:"transcode"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/streamlapse/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("streamlapse.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir, c.Paths.ReviewDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if dir := filepath.Dir(c.Paths.ProcessedLog); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create processed log directory %q: %w", dir, err)
		}
	}
	return nil
}

// YtdlpBinary returns the yt-dlp executable name.
func (c *Config) YtdlpBinary() string {
	return "yt-dlp"
}

// FFmpegBinary returns the ffmpeg executable name used for transcoding.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
