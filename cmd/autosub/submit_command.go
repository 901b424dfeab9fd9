package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"autosub/internal/api"
)

type jobFlags struct {
	sourceLanguage   string
	targetLanguage   string
	outputFormats    []string
	diarize          bool
	burnIn           bool
	whisperModel     string
	translationModel string
	subtitleStyle    string
	videoPreset      string
	priority         int
}

func (f *jobFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.sourceLanguage, "source", "s", "", "Source language code, or \"auto\" to detect")
	cmd.Flags().StringVarP(&f.targetLanguage, "target", "t", "", "Target language code")
	cmd.Flags().StringSliceVarP(&f.outputFormats, "format", "f", nil, "Subtitle output formats (srt, vtt)")
	cmd.Flags().BoolVar(&f.diarize, "diarize", false, "Label speakers via diarization")
	cmd.Flags().BoolVar(&f.burnIn, "burn-in", false, "Encode a hardsub video alongside the subtitle files")
	cmd.Flags().StringVar(&f.whisperModel, "whisper-model", "", "Override the transcription model")
	cmd.Flags().StringVar(&f.translationModel, "translation-model", "", "Override the translation model")
	cmd.Flags().StringVar(&f.subtitleStyle, "style", "", "Subtitle style override for burn-in")
	cmd.Flags().StringVar(&f.videoPreset, "preset", "", "x264 preset for burn-in")
	cmd.Flags().IntVarP(&f.priority, "priority", "p", 0, "Scheduling priority (higher runs first)")
}

func (f *jobFlags) payload() api.JobOptionsPayload {
	return api.JobOptionsPayload{
		SourceLanguage:   f.sourceLanguage,
		TargetLanguage:   f.targetLanguage,
		OutputFormats:    f.outputFormats,
		Diarize:          f.diarize,
		BurnIn:           f.burnIn,
		WhisperModel:     f.whisperModel,
		TranslationModel: f.translationModel,
		SubtitleStyle:    f.subtitleStyle,
		VideoPreset:      f.videoPreset,
		Priority:         f.priority,
	}
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var flags jobFlags
	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Submit a video file for subtitle generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve input path: %w", err)
			}
			job, err := ctx.client().SubmitJob(cmd.Context(), api.SubmitJobRequest{
				InputPath:         input,
				JobOptionsPayload: flags.payload(),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s for %s (%s -> %s)\n",
				shortID(job.ID), job.SourceFilename, job.SourceLanguage, job.TargetLanguage)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var flags jobFlags
	var name string
	cmd := &cobra.Command{
		Use:   "batch <files...>",
		Short: "Submit several files as one batch with shared settings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.SubmitBatchRequest{
				Name:     name,
				Defaults: flags.payload(),
			}
			for _, arg := range args {
				input, err := filepath.Abs(arg)
				if err != nil {
					return fmt.Errorf("resolve input path %s: %w", arg, err)
				}
				req.Files = append(req.Files, api.BatchFilePayload{Path: input})
			}
			batch, err := ctx.client().SubmitBatch(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued batch %s with %d jobs\n", shortID(batch.ID), batch.TotalJobs)
			for _, job := range batch.Jobs {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s  %s\n", shortID(job.ID), job.SourceFilename)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&name, "name", "n", "", "Batch display name")
	return cmd
}
