package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration for the daemon and pipeline stages.
type Paths struct {
	DataDir      string `toml:"data_dir"`
	UploadDir    string `toml:"upload_dir"`
	WorkDir      string `toml:"work_dir"`
	OutputDir    string `toml:"output_dir"`
	LogDir       string `toml:"log_dir"`
	DatabasePath string `toml:"database_path"`
}

// Pipeline contains scheduler and GPU admission settings.
type Pipeline struct {
	MaxConcurrentJobs int `toml:"max_concurrent_jobs"`
	GPUSlots          int `toml:"gpu_slots"`
	// GPUAcquireTimeout bounds how long a GPU stage waits for a slot, in
	// seconds. Zero waits indefinitely.
	GPUAcquireTimeout int `toml:"gpu_acquire_timeout"`
	QueuePollInterval int `toml:"queue_poll_interval"`
	HeartbeatInterval int `toml:"heartbeat_interval"`
	HeartbeatTimeout  int `toml:"heartbeat_timeout"`
}

// Transcription contains WhisperX invocation settings.
type Transcription struct {
	Model       string `toml:"model"`
	Device      string `toml:"device"`
	ComputeType string `toml:"compute_type"`
	BeamSize    int    `toml:"beam_size"`
	CacheDir    string `toml:"cache_dir"`
}

// Diarization contains speaker diarization settings.
type Diarization struct {
	Enabled          bool   `toml:"enabled"`
	HuggingFaceToken string `toml:"hf_token"`
	MinSpeakers      int    `toml:"min_speakers"`
	MaxSpeakers      int    `toml:"max_speakers"`
}

// Translation contains Ollama connection settings for subtitle translation.
type Translation struct {
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	BatchLines     int    `toml:"batch_lines"`
}

// Subtitles contains subtitle assembly defaults and burn-in styling.
type Subtitles struct {
	Formats      []string `toml:"formats"`
	MaxLineChars int      `toml:"max_line_chars"`
	FontName     string   `toml:"font_name"`
	FontSize     int      `toml:"font_size"`
	PrimaryColor string   `toml:"primary_color"`
	OutlineColor string   `toml:"outline_color"`
	MarginV      int      `toml:"margin_v"`
}

// Video contains burn-in encode settings.
type Video struct {
	Preset string `toml:"preset"`
	CRF    int    `toml:"crf"`
}

// API contains HTTP API server settings.
type API struct {
	Enabled bool   `toml:"enabled"`
	Bind    string `toml:"bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Housekeeping contains janitor schedules and retention settings.
type Housekeeping struct {
	TempCleanupSchedule string `toml:"temp_cleanup_schedule"`
	JobPurgeSchedule    string `toml:"job_purge_schedule"`
	BatchSyncSchedule   string `toml:"batch_sync_schedule"`
	HealthCheckSchedule string `toml:"health_check_schedule"`
	JobRetentionDays    int    `toml:"job_retention_days"`
	MinFreeDiskGiB      int    `toml:"min_free_disk_gib"`
}

// Notifications contains ntfy push notification settings.
type Notifications struct {
	NtfyTopic       string `toml:"ntfy_topic"`
	RequestTimeout  int    `toml:"request_timeout"`
	JobFailures     bool   `toml:"job_failures"`
	BatchCompletion bool   `toml:"batch_completion"`
}

// Config encapsulates all configuration values for the daemon and CLI.
//
// Configuration sections by subsystem:
//   - Paths: data, upload, work, output, and log directories plus the database
//   - Pipeline: job concurrency, GPU admission, polling, heartbeats
//   - Transcription: WhisperX model and device selection
//   - Diarization: speaker labeling defaults
//   - Translation: Ollama connection for subtitle translation
//   - Subtitles: output formats, line wrapping, burn-in style
//   - Video: burn-in encode preset and quality
//   - API: HTTP/WebSocket server bind address
//   - Logging: log format, level, and retention
//   - Housekeeping: janitor schedules and retention windows
//   - Notifications: ntfy topics for terminal job/batch events
type Config struct {
	Paths         Paths         `toml:"paths"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Transcription Transcription `toml:"transcription"`
	Diarization   Diarization   `toml:"diarization"`
	Translation   Translation   `toml:"translation"`
	Subtitles     Subtitles     `toml:"subtitles"`
	Video         Video         `toml:"video"`
	API           API           `toml:"api"`
	Logging       Logging       `toml:"logging"`
	Housekeeping  Housekeeping  `toml:"housekeeping"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/autosub/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
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

	projectPath, err := filepath.Abs("autosub.toml")
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
	dirs := []string{
		c.Paths.DataDir,
		c.Paths.UploadDir,
		c.Paths.WorkDir,
		c.Paths.OutputDir,
		c.Paths.LogDir,
		c.Transcription.CacheDir,
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if dir := filepath.Dir(c.Paths.DatabasePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create database directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for extraction and burn-in.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media probing.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// WhisperXBinary returns the WhisperX executable name used for transcription.
func (c *Config) WhisperXBinary() string {
	return "whisperx"
}

// QueuePollInterval returns the scheduler poll cadence as a duration.
func (c *Config) QueuePollInterval() time.Duration {
	return time.Duration(c.Pipeline.QueuePollInterval) * time.Second
}

// HeartbeatInterval returns the runner heartbeat cadence as a duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Pipeline.HeartbeatInterval) * time.Second
}

// HeartbeatTimeout returns the stale-processing cutoff as a duration.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.Pipeline.HeartbeatTimeout) * time.Second
}

// GPUAcquireTimeout returns the gate acquisition bound; zero means wait
// indefinitely.
func (c *Config) GPUAcquireTimeout() time.Duration {
	if c.Pipeline.GPUAcquireTimeout <= 0 {
		return 0
	}
	return time.Duration(c.Pipeline.GPUAcquireTimeout) * time.Second
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
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
