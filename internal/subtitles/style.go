package subtitles

import (
	"fmt"
	"strings"

	"autosub/internal/config"
)

// Style describes how burned-in subtitles are rendered. Values map onto ASS
// force_style keys understood by ffmpeg's subtitles filter.
type Style struct {
	FontName     string
	FontSize     int
	PrimaryColor string
	OutlineColor string
	MarginV      int
}

// StyleFromConfig builds the default style from the [subtitles] section.
func StyleFromConfig(cfg *config.Config) Style {
	return Style{
		FontName:     cfg.Subtitles.FontName,
		FontSize:     cfg.Subtitles.FontSize,
		PrimaryColor: cfg.Subtitles.PrimaryColor,
		OutlineColor: cfg.Subtitles.OutlineColor,
		MarginV:      cfg.Subtitles.MarginV,
	}
}

// ForceStyle renders the style as an ffmpeg force_style argument. Empty when
// no field is set, so the filter falls back to player defaults.
func (s Style) ForceStyle() string {
	parts := make([]string, 0, 5)
	if name := strings.TrimSpace(s.FontName); name != "" {
		parts = append(parts, "FontName="+name)
	}
	if s.FontSize > 0 {
		parts = append(parts, fmt.Sprintf("FontSize=%d", s.FontSize))
	}
	if color := strings.TrimSpace(s.PrimaryColor); color != "" {
		parts = append(parts, "PrimaryColour="+color)
	}
	if color := strings.TrimSpace(s.OutlineColor); color != "" {
		parts = append(parts, "OutlineColour="+color)
	}
	if s.MarginV > 0 {
		parts = append(parts, fmt.Sprintf("MarginV=%d", s.MarginV))
	}
	return strings.Join(parts, ",")
}
