package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePipeline()
	if err := c.normalizeTranscription(); err != nil {
		return err
	}
	c.normalizeDiarization()
	c.normalizeTranslation()
	c.normalizeSubtitles()
	c.normalizeVideo()
	c.normalizeAPI()
	c.normalizeHousekeeping()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.UploadDir) == "" {
		c.Paths.UploadDir = filepath.Join(c.Paths.DataDir, "uploads")
	}
	if c.Paths.UploadDir, err = expandPath(c.Paths.UploadDir); err != nil {
		return fmt.Errorf("paths.upload_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = filepath.Join(c.Paths.DataDir, "work")
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = filepath.Join(c.Paths.DataDir, "output")
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DatabasePath) == "" {
		c.Paths.DatabasePath = filepath.Join(c.Paths.DataDir, "autosub.db")
	}
	if c.Paths.DatabasePath, err = expandPath(c.Paths.DatabasePath); err != nil {
		return fmt.Errorf("paths.database_path: %w", err)
	}
	return nil
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.MaxConcurrentJobs <= 0 {
		c.Pipeline.MaxConcurrentJobs = defaultMaxConcurrentJobs
	}
	if c.Pipeline.GPUSlots <= 0 {
		c.Pipeline.GPUSlots = defaultGPUSlots
	}
	if c.Pipeline.GPUAcquireTimeout < 0 {
		c.Pipeline.GPUAcquireTimeout = 0
	}
	if c.Pipeline.QueuePollInterval <= 0 {
		c.Pipeline.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Pipeline.HeartbeatInterval <= 0 {
		c.Pipeline.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Pipeline.HeartbeatTimeout <= 0 {
		c.Pipeline.HeartbeatTimeout = defaultHeartbeatTimeout
	}
}

func (c *Config) normalizeTranscription() error {
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultWhisperModel
	}
	c.Transcription.Device = strings.ToLower(strings.TrimSpace(c.Transcription.Device))
	if c.Transcription.Device == "" {
		c.Transcription.Device = defaultWhisperDevice
	}
	c.Transcription.ComputeType = strings.ToLower(strings.TrimSpace(c.Transcription.ComputeType))
	if c.Transcription.ComputeType == "" {
		c.Transcription.ComputeType = defaultWhisperCompute
	}
	if c.Transcription.BeamSize <= 0 {
		c.Transcription.BeamSize = defaultWhisperBeamSize
	}
	if strings.TrimSpace(c.Transcription.CacheDir) == "" {
		c.Transcription.CacheDir = defaultWhisperCacheDir
	}
	var err error
	if c.Transcription.CacheDir, err = expandPath(c.Transcription.CacheDir); err != nil {
		return fmt.Errorf("transcription.cache_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDiarization() {
	c.Diarization.HuggingFaceToken = strings.TrimSpace(c.Diarization.HuggingFaceToken)
	if c.Diarization.HuggingFaceToken == "" {
		if value, ok := os.LookupEnv("HUGGING_FACE_HUB_TOKEN"); ok {
			c.Diarization.HuggingFaceToken = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("HF_TOKEN"); ok {
			c.Diarization.HuggingFaceToken = strings.TrimSpace(value)
		}
	}
	if c.Diarization.MinSpeakers <= 0 {
		c.Diarization.MinSpeakers = defaultDiarizeMinSpeakers
	}
	if c.Diarization.MaxSpeakers <= 0 {
		c.Diarization.MaxSpeakers = defaultDiarizeMaxSpeakers
	}
}

func (c *Config) normalizeTranslation() {
	c.Translation.BaseURL = strings.TrimRight(strings.TrimSpace(c.Translation.BaseURL), "/")
	if c.Translation.BaseURL == "" {
		c.Translation.BaseURL = defaultOllamaBaseURL
	}
	c.Translation.Model = strings.TrimSpace(c.Translation.Model)
	if c.Translation.Model == "" {
		c.Translation.Model = defaultOllamaModel
	}
	if c.Translation.TimeoutSeconds <= 0 {
		c.Translation.TimeoutSeconds = defaultOllamaTimeout
	}
	if c.Translation.BatchLines <= 0 {
		c.Translation.BatchLines = defaultTranslateBatch
	}
}

func (c *Config) normalizeSubtitles() {
	formats := make([]string, 0, len(c.Subtitles.Formats))
	seen := make(map[string]struct{}, len(c.Subtitles.Formats))
	for _, format := range c.Subtitles.Formats {
		normalized := strings.ToLower(strings.TrimSpace(format))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		formats = append(formats, normalized)
	}
	if len(formats) == 0 {
		formats = []string{"srt"}
	}
	c.Subtitles.Formats = formats
	if c.Subtitles.MaxLineChars <= 0 {
		c.Subtitles.MaxLineChars = defaultMaxLineChars
	}
	if strings.TrimSpace(c.Subtitles.FontName) == "" {
		c.Subtitles.FontName = defaultSubtitleFont
	}
	if c.Subtitles.FontSize <= 0 {
		c.Subtitles.FontSize = defaultSubtitleFontSize
	}
	if strings.TrimSpace(c.Subtitles.PrimaryColor) == "" {
		c.Subtitles.PrimaryColor = defaultSubtitleColor
	}
	if strings.TrimSpace(c.Subtitles.OutlineColor) == "" {
		c.Subtitles.OutlineColor = defaultSubtitleOutline
	}
	if c.Subtitles.MarginV <= 0 {
		c.Subtitles.MarginV = defaultSubtitleMarginV
	}
}

func (c *Config) normalizeVideo() {
	c.Video.Preset = strings.ToLower(strings.TrimSpace(c.Video.Preset))
	if c.Video.Preset == "" {
		c.Video.Preset = defaultVideoPreset
	}
	if c.Video.CRF <= 0 {
		c.Video.CRF = defaultVideoCRF
	}
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
}

func (c *Config) normalizeHousekeeping() {
	if strings.TrimSpace(c.Housekeeping.TempCleanupSchedule) == "" {
		c.Housekeeping.TempCleanupSchedule = defaultTempCleanupSched
	}
	if strings.TrimSpace(c.Housekeeping.JobPurgeSchedule) == "" {
		c.Housekeeping.JobPurgeSchedule = defaultJobPurgeSched
	}
	if strings.TrimSpace(c.Housekeeping.BatchSyncSchedule) == "" {
		c.Housekeeping.BatchSyncSchedule = defaultBatchSyncSched
	}
	if strings.TrimSpace(c.Housekeeping.HealthCheckSchedule) == "" {
		c.Housekeeping.HealthCheckSchedule = defaultHealthCheckSched
	}
	if c.Housekeeping.JobRetentionDays < 0 {
		c.Housekeeping.JobRetentionDays = 0
	}
	if c.Housekeeping.MinFreeDiskGiB < 0 {
		c.Housekeeping.MinFreeDiskGiB = 0
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
