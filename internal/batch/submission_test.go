package batch_test

import (
	"errors"
	"testing"

	"autosub/internal/batch"
	"autosub/internal/services"
	"autosub/internal/stage"
	"autosub/internal/testsupport"
)

func TestBuildJobDefaultsFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Transcription.Model = "large-v3"
	cfg.Translation.Model = "llama3.1:8b"
	cfg.Subtitles.Formats = []string{"srt", "vtt"}

	job, err := batch.BuildJob(cfg, nil, "/in/movie.mkv", batch.JobOptions{TargetLanguage: "de"})
	if err != nil {
		t.Fatalf("BuildJob: %v", err)
	}
	if job.SourceLanguage != "auto" {
		t.Errorf("source language = %q, want auto", job.SourceLanguage)
	}
	if job.WhisperModel != "large-v3" || job.TranslationModel != "llama3.1:8b" {
		t.Errorf("models = %q/%q, want config defaults", job.WhisperModel, job.TranslationModel)
	}
	if len(job.OutputFormats) != 2 {
		t.Errorf("formats = %v, want config defaults", job.OutputFormats)
	}
	want := []string{stage.Extract, stage.Transcribe, stage.Translate, stage.BuildSubtitles}
	if len(job.Stages) != len(want) {
		t.Fatalf("stages = %v, want %v", job.Stages, want)
	}
	for i := range want {
		if job.Stages[i] != want[i] {
			t.Fatalf("stages = %v, want %v", job.Stages, want)
		}
	}
	if job.TotalSteps != len(want) {
		t.Errorf("TotalSteps = %d, want %d", job.TotalSteps, len(want))
	}
}

func TestBuildJobSkipsTranslateWhenLanguagesMatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	job, err := batch.BuildJob(cfg, nil, "/in/movie.mkv", batch.JobOptions{
		SourceLanguage: "de",
		TargetLanguage: "deu",
	})
	if err != nil {
		t.Fatalf("BuildJob: %v", err)
	}
	for _, name := range job.Stages {
		if name == stage.Translate {
			t.Fatalf("stages %v include translate for matching languages", job.Stages)
		}
	}
}

func TestBuildJobRejectsBadInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cases := []struct {
		name string
		path string
		opts batch.JobOptions
	}{
		{"empty path", "  ", batch.JobOptions{TargetLanguage: "de"}},
		{"bad source", "/in/a.mkv", batch.JobOptions{SourceLanguage: "klingon", TargetLanguage: "de"}},
		{"bad target", "/in/a.mkv", batch.JobOptions{TargetLanguage: "not-a-language"}},
		{"auto target", "/in/a.mkv", batch.JobOptions{TargetLanguage: "auto"}},
		{"bad format", "/in/a.mkv", batch.JobOptions{TargetLanguage: "de", OutputFormats: []string{"ass"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := batch.BuildJob(cfg, nil, tc.path, tc.opts)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("error = %v, want ErrConfiguration", err)
			}
		})
	}
}
