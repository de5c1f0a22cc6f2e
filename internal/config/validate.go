package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// CommitAfterDownload and CommitAfterPublish are the recognized values for
// pipeline.commit.
const (
	CommitAfterDownload = "after_download"
	CommitAfterPublish  = "after_publish"
)

// ModeLatest and ModeBacklog are the recognized values for discovery.mode.
const (
	ModeLatest  = "latest"
	ModeBacklog = "backlog"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateYouTube(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	if err := c.validateDiscovery(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateTranscode(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateYouTube() error {
	if c.YouTube.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/streamlapse/config.toml"
		}
		return fmt.Errorf("youtube.api_key is required. Set YOUTUBE_API_KEY env var or edit %s (create with 'streamlapse config init')", defaultPath)
	}
	if c.YouTube.ChannelID == "" {
		return errors.New("youtube.channel_id is required")
	}
	return nil
}

func (c *Config) validateUpload() error {
	switch c.Upload.Privacy {
	case "public", "unlisted", "private":
	default:
		return fmt.Errorf("upload.privacy must be public, unlisted, or private (got %q)", c.Upload.Privacy)
	}
	return nil
}

func (c *Config) validateDiscovery() error {
	switch c.Discovery.Mode {
	case ModeLatest, ModeBacklog:
	default:
		return fmt.Errorf("discovery.mode must be %q or %q (got %q)", ModeLatest, ModeBacklog, c.Discovery.Mode)
	}
	if c.Discovery.PageSize < 1 || c.Discovery.PageSize > 50 {
		return errors.New("discovery.page_size must be between 1 and 50")
	}
	if c.Discovery.ScanBudget < 0 {
		return errors.New("discovery.scan_budget must not be negative")
	}
	if floor := strings.TrimSpace(c.Discovery.ScanFloor); floor != "" {
		if _, err := time.Parse(time.RFC3339, floor); err != nil {
			return fmt.Errorf("discovery.scan_floor must be an RFC 3339 timestamp: %w", err)
		}
	}
	return nil
}

func (c *Config) validatePipeline() error {
	switch c.Pipeline.Commit {
	case CommitAfterDownload, CommitAfterPublish:
	default:
		return fmt.Errorf("pipeline.commit must be %q or %q (got %q)", CommitAfterDownload, CommitAfterPublish, c.Pipeline.Commit)
	}
	if c.Pipeline.RetryAttempts < 1 {
		return errors.New("pipeline.retry_attempts must be at least 1")
	}
	if c.Pipeline.RetryDelay < 0 {
		return errors.New("pipeline.retry_delay must not be negative (seconds)")
	}
	return nil
}

func (c *Config) validateTranscode() error {
	if c.Transcode.SpeedFactor <= 1 {
		return errors.New("transcode.speed_factor must be greater than 1")
	}
	if c.Transcode.FrameRate <= 0 {
		return errors.New("transcode.frame_rate must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.check_interval":       c.Workflow.CheckInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"fetch.download_timeout":        c.Fetch.DownloadTimeout,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Workflow.StagingRetentionDays < 1 {
		return errors.New("workflow.staging_retention_days must be at least 1")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
