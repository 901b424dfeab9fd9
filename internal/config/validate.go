package config

import (
	"errors"
	"fmt"
	"strings"
)

var videoPresets = map[string]struct{}{
	"ultrafast": {},
	"superfast": {},
	"veryfast":  {},
	"faster":    {},
	"fast":      {},
	"medium":    {},
	"slow":      {},
	"slower":    {},
	"veryslow":  {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateDiarization(); err != nil {
		return err
	}
	if err := c.validateTranslation(); err != nil {
		return err
	}
	if err := c.validateSubtitles(); err != nil {
		return err
	}
	if err := c.validateVideo(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateHousekeeping(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if err := ensurePositiveMap(map[string]int{
		"pipeline.max_concurrent_jobs": c.Pipeline.MaxConcurrentJobs,
		"pipeline.gpu_slots":           c.Pipeline.GPUSlots,
		"pipeline.queue_poll_interval": c.Pipeline.QueuePollInterval,
	}); err != nil {
		return err
	}
	if c.Pipeline.GPUSlots > c.Pipeline.MaxConcurrentJobs {
		return errors.New("pipeline.gpu_slots must not exceed pipeline.max_concurrent_jobs")
	}
	if c.Pipeline.HeartbeatInterval <= 0 {
		return errors.New("pipeline.heartbeat_interval must be positive")
	}
	if c.Pipeline.HeartbeatTimeout <= 0 {
		return errors.New("pipeline.heartbeat_timeout must be positive")
	}
	if c.Pipeline.HeartbeatTimeout <= c.Pipeline.HeartbeatInterval {
		return errors.New("pipeline.heartbeat_timeout must be greater than pipeline.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if strings.TrimSpace(c.Transcription.Model) == "" {
		return errors.New("transcription.model must be set")
	}
	switch c.Transcription.Device {
	case "auto", "cpu", "cuda":
	default:
		return fmt.Errorf("transcription.device must be one of auto, cpu, cuda (got %q)", c.Transcription.Device)
	}
	switch c.Transcription.ComputeType {
	case "auto", "int8", "float16", "float32":
	default:
		return fmt.Errorf("transcription.compute_type must be one of auto, int8, float16, float32 (got %q)", c.Transcription.ComputeType)
	}
	if c.Transcription.BeamSize <= 0 {
		return errors.New("transcription.beam_size must be positive")
	}
	return nil
}

func (c *Config) validateDiarization() error {
	if !c.Diarization.Enabled {
		return nil
	}
	if c.Diarization.MinSpeakers <= 0 {
		return errors.New("diarization.min_speakers must be positive")
	}
	if c.Diarization.MaxSpeakers < c.Diarization.MinSpeakers {
		return errors.New("diarization.max_speakers must be >= diarization.min_speakers")
	}
	return nil
}

func (c *Config) validateTranslation() error {
	if strings.TrimSpace(c.Translation.BaseURL) == "" {
		return errors.New("translation.base_url must be set")
	}
	if strings.TrimSpace(c.Translation.Model) == "" {
		return errors.New("translation.model must be set")
	}
	if err := ensurePositiveMap(map[string]int{
		"translation.timeout_seconds": c.Translation.TimeoutSeconds,
		"translation.batch_lines":     c.Translation.BatchLines,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSubtitles() error {
	if len(c.Subtitles.Formats) == 0 {
		return errors.New("subtitles.formats must include at least one format")
	}
	for _, format := range c.Subtitles.Formats {
		switch format {
		case "srt", "vtt":
		default:
			return fmt.Errorf("subtitles.formats: unsupported format %q (supported: srt, vtt)", format)
		}
	}
	if c.Subtitles.MaxLineChars <= 0 {
		return errors.New("subtitles.max_line_chars must be positive")
	}
	if c.Subtitles.FontSize <= 0 {
		return errors.New("subtitles.font_size must be positive")
	}
	return nil
}

func (c *Config) validateVideo() error {
	if _, ok := videoPresets[c.Video.Preset]; !ok {
		return fmt.Errorf("video.preset: unknown x264 preset %q", c.Video.Preset)
	}
	if c.Video.CRF < 0 || c.Video.CRF > 51 {
		return errors.New("video.crf must be between 0 and 51")
	}
	return nil
}

func (c *Config) validateAPI() error {
	if !c.API.Enabled {
		return nil
	}
	if strings.TrimSpace(c.API.Bind) == "" {
		return errors.New("api.bind must be set when api.enabled is true")
	}
	return nil
}

func (c *Config) validateHousekeeping() error {
	if c.Housekeeping.JobRetentionDays < 0 {
		return errors.New("housekeeping.job_retention_days must be >= 0")
	}
	if c.Housekeeping.MinFreeDiskGiB < 0 {
		return errors.New("housekeeping.min_free_disk_gib must be >= 0")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
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
