package logging

import "strings"

// ProgressSampler rate-limits stage progress records. WhisperX and ffmpeg
// report far more often than a log should capture, so only bucket crossings
// and stage changes emit.
type ProgressSampler struct {
	bucketSize float64
	lastStage  string
	lastBucket int
}

// NewProgressSampler builds a sampler emitting on stage changes and every
// bucketSize percent (5% when zero or negative).
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 5
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether this progress update is worth a log record.
// A negative percent means unknown progress. The message is ignored when
// deciding; it tends to carry volatile content like ETAs.
func (s *ProgressSampler) ShouldLog(percent float64, stage, message string) bool {
	if s == nil {
		return true
	}
	emit := false
	if name := strings.TrimSpace(stage); name != "" && name != s.lastStage {
		s.lastStage = name
		s.lastBucket = -1
		emit = true
	}
	if percent >= 0 {
		bucket := int(percent / s.bucketSize)
		if percent >= 100 {
			bucket = int(100 / s.bucketSize)
		}
		if bucket > s.lastBucket {
			s.lastBucket = bucket
			emit = true
		}
	}
	return emit
}

// Reset clears sampler state between jobs.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastStage = ""
	s.lastBucket = -1
}
