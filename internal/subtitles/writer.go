package subtitles

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"autosub/internal/transcribe"
)

// Cue is one subtitle entry ready for serialization.
type Cue struct {
	Start   float64
	End     float64
	Lines   []string
	Speaker string
}

// BuildCues converts transcript segments into cues, wrapping text at
// maxLineChars. Empty segments are dropped and degenerate timings widened to
// a minimum display window.
func BuildCues(doc *transcribe.Document, maxLineChars int, includeSpeakers bool) []Cue {
	cues := make([]Cue, 0, len(doc.Segments))
	for _, seg := range doc.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if includeSpeakers && seg.Speaker != "" {
			text = fmt.Sprintf("[%s] %s", seg.Speaker, text)
		}
		start, end := seg.Start, seg.End
		if end <= start {
			end = start + 0.5
		}
		cues = append(cues, Cue{
			Start:   start,
			End:     end,
			Lines:   wrapText(text, maxLineChars),
			Speaker: seg.Speaker,
		})
	}
	return cues
}

// wrapText greedily wraps text at word boundaries. Words longer than the
// limit stand alone on their line.
func wrapText(text string, maxChars int) []string {
	if maxChars <= 0 {
		return []string{text}
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	current := words[0]
	for _, word := range words[1:] {
		if utf8.RuneCountInString(current)+1+utf8.RuneCountInString(word) <= maxChars {
			current += " " + word
			continue
		}
		lines = append(lines, current)
		current = word
	}
	return append(lines, current)
}

// FormatSRT serializes cues as SubRip text.
func FormatSRT(cues []Cue) string {
	var b strings.Builder
	for i, cue := range cues {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", srtTimestamp(cue.Start), srtTimestamp(cue.End))
		for _, line := range cue.Lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// FormatVTT serializes cues as WebVTT text.
func FormatVTT(cues []Cue) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, cue := range cues {
		fmt.Fprintf(&b, "%s --> %s\n", vttTimestamp(cue.Start), vttTimestamp(cue.End))
		for _, line := range cue.Lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func splitSeconds(seconds float64) (int, int, int, int) {
	if seconds < 0 {
		seconds = 0
	}
	millis := int(seconds*1000 + 0.5)
	return millis / 3600000, millis / 60000 % 60, millis / 1000 % 60, millis % 1000
}

func srtTimestamp(seconds float64) string {
	h, m, s, ms := splitSeconds(seconds)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func vttTimestamp(seconds float64) string {
	h, m, s, ms := splitSeconds(seconds)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
