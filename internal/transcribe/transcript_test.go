package transcribe_test

import (
	"path/filepath"
	"testing"

	"autosub/internal/transcribe"
)

func TestCollapseRepeatsMergesHallucinatedRuns(t *testing.T) {
	doc := &transcribe.Document{
		Segments: []transcribe.Segment{
			{Start: 0, End: 2, Text: "Welcome back everyone"},
			{Start: 2, End: 4, Text: "Thanks for watching the show"},
			{Start: 4, End: 6, Text: "Thanks for watching the show."},
			{Start: 6, End: 8, Text: "Thanks for watching the show!"},
			{Start: 8, End: 10, Text: "The weather cleared up by morning"},
		},
	}

	dropped := doc.CollapseRepeats()
	if dropped != 2 {
		t.Fatalf("expected 2 segments dropped, got %d", dropped)
	}
	if len(doc.Segments) != 3 {
		t.Fatalf("expected 3 segments kept, got %d", len(doc.Segments))
	}
	merged := doc.Segments[1]
	if merged.Text != "Thanks for watching the show" {
		t.Fatalf("expected first repeat kept, got %q", merged.Text)
	}
	if merged.Start != 2 || merged.End != 8 {
		t.Fatalf("expected merged span 2..8, got %v..%v", merged.Start, merged.End)
	}
	if doc.Segments[2].Text != "The weather cleared up by morning" {
		t.Fatalf("unexpected trailing segment: %q", doc.Segments[2].Text)
	}
}

func TestCollapseRepeatsLeavesDistinctDialogue(t *testing.T) {
	doc := &transcribe.Document{
		Segments: []transcribe.Segment{
			{Start: 0, End: 2, Text: "Where did you park the car"},
			{Start: 2, End: 4, Text: "Around the corner by the bakery"},
			{Start: 4, End: 6, Text: "We should hurry before it rains"},
		},
	}
	if dropped := doc.CollapseRepeats(); dropped != 0 {
		t.Fatalf("expected no segments dropped, got %d", dropped)
	}
	if len(doc.Segments) != 3 {
		t.Fatalf("expected all segments kept, got %d", len(doc.Segments))
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.json")
	doc := &transcribe.Document{
		Language: "en",
		Segments: []transcribe.Segment{
			{Start: 0, End: 1.5, Text: "Hello there", Speaker: "SPEAKER_00"},
		},
	}
	if err := doc.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := transcribe.LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument failed: %v", err)
	}
	if loaded.Language != "en" || len(loaded.Segments) != 1 || loaded.Segments[0].Speaker != "SPEAKER_00" {
		t.Fatalf("unexpected round-trip document: %+v", loaded)
	}
}
