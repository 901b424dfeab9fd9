// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// The pipeline uses it to probe input duration before extraction (progress
// banding and burn-in percentages are derived from it) and to confirm that an
// input actually carries audio.
package ffprobe
