package services

import (
	"regexp"
	"strings"
)

var (
	vttHeader     = regexp.MustCompile(`(?s)^WEBVTT.*?\n\n`)
	vttNoteBlock  = regexp.MustCompile(`(?ms)^NOTE.*?\n\n`)
	cueIndexLine  = regexp.MustCompile(`^\d+$`)
	inlineCueTags = regexp.MustCompile(`<[^>]+>`)
	styleBlock    = regexp.MustCompile(`(?ms)^STYLE.*?\n\n`)
)

// ParseSubtitle turns WebVTT or SRT content into plain cue text: header and
// NOTE/STYLE blocks, cue-index lines, timestamp lines, and inline markup are
// all dropped.
func ParseSubtitle(raw string) string {
	t := strings.ReplaceAll(raw, "\r\n", "\n")
	t = vttHeader.ReplaceAllString(t, "")
	t = vttNoteBlock.ReplaceAllString(t, "")
	t = styleBlock.ReplaceAllString(t, "")

	var out []string
	for _, line := range strings.Split(t, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Contains(line, "-->") {
			continue
		}
		if cueIndexLine.MatchString(line) {
			continue
		}
		line = inlineCueTags.ReplaceAllString(line, "")
		if line != "" {
			out = append(out, line)
		}
	}

	return CleanText(strings.Join(out, " "))
}
