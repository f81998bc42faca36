package config

const (
	defaultDataDir              = "~/.local/share/medcast"
	defaultAPIBind              = "127.0.0.1:7823"
	defaultStageTimeoutSeconds  = 120
	defaultStageRetryAttempts   = 3
	defaultStageRetryBackoffMS  = 500
	defaultStageRetryMaxMS      = 8000
	defaultIndexRetentionDays   = 7
	defaultIndexTimeoutSeconds  = 30
	defaultBaselineWaitSeconds  = 60
	defaultPerJobSeconds        = 240
	defaultMaxConcurrentRuns    = 4
	defaultEnqueueRetryAttempts = 5
	defaultEnqueueBackoffMS     = 250
	defaultShutdownTimeout      = 15
	defaultSubmissionsPerMin    = 6
	defaultSubmissionBurst      = 3
	defaultNotifyTimeout        = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			APIBind: defaultAPIBind,
		},
		Stages: Stages{
			TimeoutSeconds: defaultStageTimeoutSeconds,
			RetryAttempts:  defaultStageRetryAttempts,
			RetryBackoffMS: defaultStageRetryBackoffMS,
			RetryMaxMS:     defaultStageRetryMaxMS,
		},
		IndexProvider: IndexProvider{
			RetentionDays:  defaultIndexRetentionDays,
			TimeoutSeconds: defaultIndexTimeoutSeconds,
		},
		RenderQueue: RenderQueue{
			BaselineWaitSeconds: defaultBaselineWaitSeconds,
			PerJobSeconds:       defaultPerJobSeconds,
		},
		Pipeline: Pipeline{
			MaxConcurrentRuns:      defaultMaxConcurrentRuns,
			EnqueueRetryAttempts:   defaultEnqueueRetryAttempts,
			EnqueueRetryBackoffMS:  defaultEnqueueBackoffMS,
			ShutdownTimeoutSeconds: defaultShutdownTimeout,
		},
		Limits: Limits{
			SubmissionsPerMinute: defaultSubmissionsPerMin,
			SubmissionBurst:      defaultSubmissionBurst,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			RunReady:       true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
