// Package transcribe runs WhisperX over extracted audio and owns the JSON
// transcript document the later stages refine.
//
// The document shape matches WhisperX output (a segments array plus the
// detected language), so the raw tool output doubles as the pipeline artifact
// and diarize/translate rewrite it in place under the job work dir.
package transcribe
