// Package subtitles assembles subtitle files from the final transcript.
//
// It writes one artifact per requested format (SRT, WebVTT) into the output
// directory and owns the Style type the burn-in stage renders with.
package subtitles
