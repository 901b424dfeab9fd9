package config

const (
	defaultDataDir            = "~/.local/share/autosub"
	defaultLogRetentionDays   = 60
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultMaxConcurrentJobs  = 2
	defaultGPUSlots           = 1
	defaultQueuePollInterval  = 2
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 120
	defaultWhisperModel       = "large-v3-turbo"
	defaultWhisperDevice      = "auto"
	defaultWhisperCompute     = "auto"
	defaultWhisperBeamSize    = 5
	defaultWhisperCacheDir    = "~/.cache/autosub/whisperx"
	defaultOllamaBaseURL      = "http://localhost:11434"
	defaultOllamaModel        = "qwen2.5:7b"
	defaultOllamaTimeout      = 120
	defaultTranslateBatch     = 20
	defaultMaxLineChars       = 42
	defaultSubtitleFont       = "Arial"
	defaultSubtitleFontSize   = 24
	defaultSubtitleColor      = "&H00FFFFFF"
	defaultSubtitleOutline    = "&H00000000"
	defaultSubtitleMarginV    = 20
	defaultVideoPreset        = "medium"
	defaultVideoCRF           = 23
	defaultAPIBind            = "127.0.0.1:8686"
	defaultTempCleanupSched   = "@every 1h"
	defaultJobPurgeSched      = "@every 24h"
	defaultBatchSyncSched     = "@every 30s"
	defaultHealthCheckSched   = "@every 5m"
	defaultJobRetentionDays   = 30
	defaultMinFreeDiskGiB     = 5
	defaultNotifyTimeout      = 10
	defaultDiarizeMinSpeakers = 1
	defaultDiarizeMaxSpeakers = 8
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			// Upload, work, output, log, and database paths derive from
			// DataDir during normalization unless set explicitly.
			DataDir: defaultDataDir,
		},
		Pipeline: Pipeline{
			MaxConcurrentJobs: defaultMaxConcurrentJobs,
			GPUSlots:          defaultGPUSlots,
			GPUAcquireTimeout: 0,
			QueuePollInterval: defaultQueuePollInterval,
			HeartbeatInterval: defaultHeartbeatInterval,
			HeartbeatTimeout:  defaultHeartbeatTimeout,
		},
		Transcription: Transcription{
			Model:       defaultWhisperModel,
			Device:      defaultWhisperDevice,
			ComputeType: defaultWhisperCompute,
			BeamSize:    defaultWhisperBeamSize,
			CacheDir:    defaultWhisperCacheDir,
		},
		Diarization: Diarization{
			MinSpeakers: defaultDiarizeMinSpeakers,
			MaxSpeakers: defaultDiarizeMaxSpeakers,
		},
		Translation: Translation{
			BaseURL:        defaultOllamaBaseURL,
			Model:          defaultOllamaModel,
			TimeoutSeconds: defaultOllamaTimeout,
			BatchLines:     defaultTranslateBatch,
		},
		Subtitles: Subtitles{
			Formats:      []string{"srt"},
			MaxLineChars: defaultMaxLineChars,
			FontName:     defaultSubtitleFont,
			FontSize:     defaultSubtitleFontSize,
			PrimaryColor: defaultSubtitleColor,
			OutlineColor: defaultSubtitleOutline,
			MarginV:      defaultSubtitleMarginV,
		},
		Video: Video{
			Preset: defaultVideoPreset,
			CRF:    defaultVideoCRF,
		},
		API: API{
			Enabled: true,
			Bind:    defaultAPIBind,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Housekeeping: Housekeeping{
			TempCleanupSchedule: defaultTempCleanupSched,
			JobPurgeSchedule:    defaultJobPurgeSched,
			BatchSyncSchedule:   defaultBatchSyncSched,
			HealthCheckSchedule: defaultHealthCheckSched,
			JobRetentionDays:    defaultJobRetentionDays,
			MinFreeDiskGiB:      defaultMinFreeDiskGiB,
		},
		Notifications: Notifications{
			RequestTimeout:  defaultNotifyTimeout,
			JobFailures:     true,
			BatchCompletion: true,
		},
	}
}
