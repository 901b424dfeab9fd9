package ffprobe

import "testing"

func TestParse(t *testing.T) {
	payload := []byte(`{
		"streams": [
			{"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080},
			{"index": 1, "codec_type": "audio", "codec_name": "aac", "channels": 6},
			{"index": 2, "codec_type": "audio", "codec_name": "ac3", "channels": 2}
		],
		"format": {"filename": "movie.mkv", "nb_streams": 3, "duration": "5421.120000"}
	}`)
	result, err := Parse(payload)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if result.VideoStreamCount() != 1 {
		t.Fatalf("expected 1 video stream, got %d", result.VideoStreamCount())
	}
	if result.AudioStreamCount() != 2 {
		t.Fatalf("expected 2 audio streams, got %d", result.AudioStreamCount())
	}
	if result.DurationSeconds() != 5421.12 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestDurationFallsBackToStreams(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "video", Duration: "90.5"},
			{CodecType: "audio", Duration: "91.25"},
		},
	}
	if got := result.DurationSeconds(); got != 91.25 {
		t.Fatalf("duration = %v, want stream maximum", got)
	}
}

func TestDurationUnavailable(t *testing.T) {
	result := Result{Format: Format{Duration: "bad"}}
	if got := result.DurationSeconds(); got != 0 {
		t.Fatalf("duration = %v, want 0", got)
	}
}
