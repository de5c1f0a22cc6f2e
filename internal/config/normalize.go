package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeYouTube(); err != nil {
		return err
	}
	if err := c.normalizeUpload(); err != nil {
		return err
	}
	c.normalizeDiscovery()
	c.normalizePipeline()
	if err := c.normalizeTranscode(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.ReviewDir, err = expandPath(c.Paths.ReviewDir); err != nil {
		return fmt.Errorf("paths.review_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ProcessedLog) == "" {
		c.Paths.ProcessedLog = defaultProcessedLog
	}
	if c.Paths.ProcessedLog, err = expandPath(c.Paths.ProcessedLog); err != nil {
		return fmt.Errorf("paths.processed_log: %w", err)
	}
	return nil
}

func (c *Config) normalizeYouTube() error {
	if c.YouTube.APIKey == "" {
		if value, ok := os.LookupEnv("YOUTUBE_API_KEY"); ok {
			c.YouTube.APIKey = value
		}
	}
	c.YouTube.APIKey = strings.TrimSpace(c.YouTube.APIKey)
	c.YouTube.ChannelID = strings.TrimSpace(c.YouTube.ChannelID)
	if c.YouTube.ChannelID == "" {
		if value, ok := os.LookupEnv("YOUTUBE_CHANNEL_ID"); ok {
			c.YouTube.ChannelID = strings.TrimSpace(value)
		}
	}
	c.YouTube.BaseURL = strings.TrimSpace(c.YouTube.BaseURL)
	if c.YouTube.BaseURL == "" {
		c.YouTube.BaseURL = defaultYouTubeBaseURL
	}
	return nil
}

func (c *Config) normalizeUpload() error {
	var err error
	if strings.TrimSpace(c.Upload.TokenFile) == "" {
		c.Upload.TokenFile = defaultTokenFile
	}
	if c.Upload.TokenFile, err = expandPath(c.Upload.TokenFile); err != nil {
		return fmt.Errorf("upload.token_file: %w", err)
	}
	c.Upload.UploadURL = strings.TrimSpace(c.Upload.UploadURL)
	if c.Upload.UploadURL == "" {
		c.Upload.UploadURL = defaultUploadURL
	}
	c.Upload.Privacy = strings.ToLower(strings.TrimSpace(c.Upload.Privacy))
	if c.Upload.Privacy == "" {
		c.Upload.Privacy = defaultPrivacy
	}
	c.Upload.CategoryID = strings.TrimSpace(c.Upload.CategoryID)
	if c.Upload.CategoryID == "" {
		c.Upload.CategoryID = defaultCategoryID
	}
	return nil
}

func (c *Config) normalizeDiscovery() {
	c.Discovery.Mode = strings.ToLower(strings.TrimSpace(c.Discovery.Mode))
	if c.Discovery.Mode == "" {
		c.Discovery.Mode = defaultDiscoveryMode
	}
	c.Discovery.ScanFloor = strings.TrimSpace(c.Discovery.ScanFloor)
	if c.Discovery.PageSize <= 0 {
		c.Discovery.PageSize = defaultPageSize
	}
}

func (c *Config) normalizePipeline() {
	c.Pipeline.Commit = strings.ToLower(strings.TrimSpace(c.Pipeline.Commit))
	if c.Pipeline.Commit == "" {
		c.Pipeline.Commit = defaultCommitPolicy
	}
	if c.Pipeline.RetryAttempts <= 0 {
		c.Pipeline.RetryAttempts = defaultRetryAttempts
	}
	if c.Pipeline.RetryDelay < 0 {
		c.Pipeline.RetryDelay = defaultRetryDelay
	}
}

func (c *Config) normalizeTranscode() error {
	c.Transcode.VideoCodec = strings.TrimSpace(c.Transcode.VideoCodec)
	if c.Transcode.VideoCodec == "" {
		c.Transcode.VideoCodec = defaultVideoCodec
	}
	c.Transcode.AudioTrack = strings.TrimSpace(c.Transcode.AudioTrack)
	if c.Transcode.AudioTrack != "" {
		expanded, err := expandPath(c.Transcode.AudioTrack)
		if err != nil {
			return fmt.Errorf("transcode.audio_track: %w", err)
		}
		c.Transcode.AudioTrack = expanded
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = defaultLogRetentionDays
	}
}
