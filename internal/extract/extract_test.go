package extract_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"autosub/internal/extract"
	"autosub/internal/media/ffprobe"
	"autosub/internal/queue"
	"autosub/internal/services"
	"autosub/internal/testsupport"
)

func probeWithAudio(duration string) extract.Prober {
	return func(context.Context, string) (ffprobe.Result, error) {
		return ffprobe.Result{
			Streams: []ffprobe.Stream{{CodecType: "video"}, {CodecType: "audio"}},
			Format:  ffprobe.Format{Duration: duration},
		}, nil
	}
}

func TestExecuteExtractsAudio(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	var gotName string
	var gotArgs []string
	engine := extract.New(cfg).
		WithProber(probeWithAudio("120.5")).
		WithRunner(func(ctx context.Context, name string, args ...string) error {
			gotName = name
			gotArgs = args
			return nil
		})

	job := &queue.Job{ID: "job-1", InputPath: "/in/movie.mkv"}
	out, err := engine.Execute(context.Background(), job, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if gotName != "ffmpeg" {
		t.Errorf("binary = %q", gotName)
	}
	joined := strings.Join(gotArgs, " ")
	for _, want := range []string{"-i /in/movie.mkv", "-ac 1", "-ar 16000", "-c:a pcm_s16le", "-map 0:a:0"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
	if !strings.HasSuffix(out.AudioPath, "/job-1/audio.wav") {
		t.Errorf("audio path = %q", out.AudioPath)
	}
	if out.DurationSeconds != 120.5 {
		t.Errorf("duration = %v", out.DurationSeconds)
	}
}

func TestExecuteRejectsAudiolessInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	engine := extract.New(cfg).
		WithProber(func(context.Context, string) (ffprobe.Result, error) {
			return ffprobe.Result{Streams: []ffprobe.Stream{{CodecType: "video"}}}, nil
		}).
		WithRunner(func(context.Context, string, ...string) error {
			t.Fatal("ffmpeg should not run for audioless input")
			return nil
		})

	_, err := engine.Execute(context.Background(), &queue.Job{ID: "job-2", InputPath: "/in/silent.mkv"}, nil)
	if !errors.Is(err, services.ErrStageExecution) {
		t.Fatalf("error = %v, want ErrStageExecution", err)
	}
}

func TestExecuteWrapsToolFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	t.Run("probe failure", func(t *testing.T) {
		engine := extract.New(cfg).WithProber(func(context.Context, string) (ffprobe.Result, error) {
			return ffprobe.Result{}, errors.New("ffprobe: exit status 1")
		})
		_, err := engine.Execute(context.Background(), &queue.Job{ID: "job-3", InputPath: "/in/x.mkv"}, nil)
		if !errors.Is(err, services.ErrExternalTool) {
			t.Fatalf("error = %v, want ErrExternalTool", err)
		}
	})

	t.Run("ffmpeg failure", func(t *testing.T) {
		engine := extract.New(cfg).
			WithProber(probeWithAudio("10")).
			WithRunner(func(context.Context, string, ...string) error {
				return errors.New("ffmpeg: exit status 1: invalid data")
			})
		_, err := engine.Execute(context.Background(), &queue.Job{ID: "job-4", InputPath: "/in/x.mkv"}, nil)
		if !errors.Is(err, services.ErrExternalTool) {
			t.Fatalf("error = %v, want ErrExternalTool", err)
		}
	})
}
