package transcribe

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"autosub/internal/textutil"
)

// Segment is one timed span of speech.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// Document is the transcript artifact passed between stages.
type Document struct {
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments"`
}

// LoadDocument reads a transcript JSON file.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse transcript %s: %w", path, err)
	}
	return &doc, nil
}

// Save writes the document as indented JSON.
func (d *Document) Save(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

// Lines returns the trimmed text of every non-empty segment, in order.
func (d *Document) Lines() []string {
	lines := make([]string, 0, len(d.Segments))
	for _, seg := range d.Segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			lines = append(lines, text)
		}
	}
	return lines
}

// repeatSimilarity is the cosine threshold above which consecutive segments
// count as the same line repeated.
const repeatSimilarity = 0.9

// CollapseRepeats merges runs of consecutive near-identical segments, a
// WhisperX failure mode on silence and background music. The first segment
// of a run survives with its end time extended over the run. Returns the
// number of segments dropped.
func (d *Document) CollapseRepeats() int {
	if d == nil || len(d.Segments) < 2 {
		return 0
	}
	kept := d.Segments[:1]
	prev := textutil.NewFingerprint(d.Segments[0].Text)
	for _, seg := range d.Segments[1:] {
		fp := textutil.NewFingerprint(seg.Text)
		if prev != nil && fp != nil && textutil.CosineSimilarity(prev, fp) >= repeatSimilarity {
			last := &kept[len(kept)-1]
			if seg.End > last.End {
				last.End = seg.End
			}
			continue
		}
		kept = append(kept, seg)
		prev = fp
	}
	dropped := len(d.Segments) - len(kept)
	d.Segments = kept
	return dropped
}
