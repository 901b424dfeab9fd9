package subtitles

import (
	"strings"
	"testing"

	"autosub/internal/transcribe"
)

func TestBuildCues(t *testing.T) {
	doc := &transcribe.Document{Segments: []transcribe.Segment{
		{Start: 0, End: 2.5, Text: " Hello there. ", Speaker: "SPEAKER_00"},
		{Start: 2.5, End: 2.5, Text: "Degenerate timing"},
		{Start: 5, End: 6, Text: "   "},
	}}

	cues := BuildCues(doc, 42, false)
	if len(cues) != 2 {
		t.Fatalf("cue count = %d, want 2 (blank segment dropped)", len(cues))
	}
	if cues[0].Lines[0] != "Hello there." {
		t.Errorf("cue text = %q", cues[0].Lines[0])
	}
	if cues[1].End <= cues[1].Start {
		t.Errorf("degenerate timing not widened: %+v", cues[1])
	}

	withSpeakers := BuildCues(doc, 42, true)
	if withSpeakers[0].Lines[0] != "[SPEAKER_00] Hello there." {
		t.Errorf("speaker prefix missing: %q", withSpeakers[0].Lines[0])
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText("the quick brown fox jumps over the lazy dog", 15)
	for _, line := range lines {
		if len(line) > 15 {
			t.Errorf("line %q exceeds limit", line)
		}
	}
	if strings.Join(lines, " ") != "the quick brown fox jumps over the lazy dog" {
		t.Errorf("wrapping lost words: %v", lines)
	}

	long := wrapText("supercalifragilisticexpialidocious", 10)
	if len(long) != 1 {
		t.Errorf("oversized word should stand alone: %v", long)
	}
}

func TestFormatSRT(t *testing.T) {
	cues := []Cue{
		{Start: 0, End: 2.5, Lines: []string{"Hello"}},
		{Start: 3661.25, End: 3662, Lines: []string{"Two", "lines"}},
	}
	got := FormatSRT(cues)
	want := "1\n00:00:00,000 --> 00:00:02,500\nHello\n\n" +
		"2\n01:01:01,250 --> 01:01:02,000\nTwo\nlines\n\n"
	if got != want {
		t.Errorf("FormatSRT:\n%q\nwant:\n%q", got, want)
	}
}

func TestFormatVTT(t *testing.T) {
	cues := []Cue{{Start: 0.5, End: 2, Lines: []string{"Hi"}}}
	got := FormatVTT(cues)
	if !strings.HasPrefix(got, "WEBVTT\n\n") {
		t.Errorf("missing WEBVTT header: %q", got)
	}
	if !strings.Contains(got, "00:00:00.500 --> 00:00:02.000\nHi\n") {
		t.Errorf("cue body wrong: %q", got)
	}
}

func TestForceStyle(t *testing.T) {
	style := Style{FontName: "Noto Sans", FontSize: 24, PrimaryColor: "&H00FFFFFF", MarginV: 30}
	got := style.ForceStyle()
	for _, want := range []string{"FontName=Noto Sans", "FontSize=24", "PrimaryColour=&H00FFFFFF", "MarginV=30"} {
		if !strings.Contains(got, want) {
			t.Errorf("ForceStyle %q missing %q", got, want)
		}
	}
	if (Style{}).ForceStyle() != "" {
		t.Errorf("zero style should render empty")
	}
}
