package stage

import "strings"

// Canonical stage names. The stage list persisted on a job uses these values;
// renaming one invalidates resume state for in-flight jobs.
const (
	Extract        = "extract"
	Transcribe     = "transcribe"
	Diarize        = "diarize"
	Translate      = "translate"
	BuildSubtitles = "build_subtitles"
	BurnIn         = "burn_in"
)

// SequenceOptions captures the per-job configuration that shapes the stage
// list.
type SequenceOptions struct {
	Diarize        bool
	SourceLanguage string
	TargetLanguage string
	BurnIn         bool
}

// Sequence computes the ordered stage list for a job at submission time.
// Extraction, transcription, and subtitle assembly always run; diarization,
// translation, and burn-in join when the submission asks for them.
func Sequence(opts SequenceOptions) []string {
	stages := []string{Extract, Transcribe}
	if opts.Diarize {
		stages = append(stages, Diarize)
	}
	if wantsTranslation(opts.SourceLanguage, opts.TargetLanguage) {
		stages = append(stages, Translate)
	}
	stages = append(stages, BuildSubtitles)
	if opts.BurnIn {
		stages = append(stages, BurnIn)
	}
	return stages
}

func wantsTranslation(source, target string) bool {
	target = strings.ToLower(strings.TrimSpace(target))
	if target == "" {
		return false
	}
	source = strings.ToLower(strings.TrimSpace(source))
	// An "auto" source cannot be compared until detection runs, so the
	// translate stage is scheduled and skips itself if the detected language
	// already matches.
	return source != target
}
