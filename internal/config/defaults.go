package config

const (
	defaultStagingDir       = "~/.local/share/streamlapse/staging"
	defaultLogDir           = "~/.local/share/streamlapse/logs"
	defaultReviewDir        = "~/.local/share/streamlapse/review"
	defaultProcessedLog     = "~/.local/share/streamlapse/processed_urls.txt"
	defaultYouTubeBaseURL   = "https://www.googleapis.com/youtube/v3"
	defaultUploadURL        = "https://www.googleapis.com/upload/youtube/v3/videos"
	defaultTokenFile        = "~/.config/streamlapse/token.json"
	defaultPrivacy          = "public"
	defaultCategoryID       = "22"
	defaultDiscoveryMode    = "latest"
	defaultPageSize         = 50
	defaultCommitPolicy     = "after_download"
	defaultRetryAttempts    = 3
	defaultRetryDelay       = 30
	defaultFetchFormat      = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"
	defaultDownloadTimeout  = 7200
	defaultFrameRate        = 60
	defaultVideoCodec       = "libx264"
	defaultCheckInterval    = 40
	defaultErrorRetry       = 10
	defaultStagingRetention = 7
	defaultNotifyTimeout    = 10
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 60
)

// defaultSpeedFactor compresses roughly a seven-hour stream into about a
// minute; it is the reciprocal of the 0.00234 setpts multiplier.
const defaultSpeedFactor = 427.35

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir:   defaultStagingDir,
			LogDir:       defaultLogDir,
			ReviewDir:    defaultReviewDir,
			ProcessedLog: defaultProcessedLog,
		},
		YouTube: YouTube{
			BaseURL: defaultYouTubeBaseURL,
		},
		Upload: Upload{
			TokenFile:  defaultTokenFile,
			UploadURL:  defaultUploadURL,
			Privacy:    defaultPrivacy,
			CategoryID: defaultCategoryID,
			Tags:       []string{"livestream", "timelapse"},
		},
		Discovery: Discovery{
			Mode:     defaultDiscoveryMode,
			PageSize: defaultPageSize,
		},
		Pipeline: Pipeline{
			Commit:        defaultCommitPolicy,
			RetryAttempts: defaultRetryAttempts,
			RetryDelay:    defaultRetryDelay,
		},
		Fetch: Fetch{
			Format:          defaultFetchFormat,
			DownloadTimeout: defaultDownloadTimeout,
		},
		Transcode: Transcode{
			SpeedFactor: defaultSpeedFactor,
			FrameRate:   defaultFrameRate,
			VideoCodec:  defaultVideoCodec,
			DropAudio:   true,
		},
		Workflow: Workflow{
			CheckInterval:        defaultCheckInterval,
			ErrorRetryInterval:   defaultErrorRetry,
			StagingRetentionDays: defaultStagingRetention,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Discovery:      true,
			Download:       true,
			Upload:         true,
			Review:         true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
