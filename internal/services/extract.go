package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"cardforge-backend/internal/models"
)

// Origin kinds recorded on decks and notes.
const (
	OriginText    = "text"
	OriginURL     = "url"
	OriginYouTube = "youtube"
	OriginVideo   = "video"
	OriginPDF     = "pdf"
	OriginPPTX    = "pptx"
	OriginUnknown = "unknown"
)

// SourceMaterial is the normalized output of exactly one extractor. Text is
// either empty (extraction found nothing, caller decides what that means) or
// cleaned and bounded by the configured character ceiling.
type SourceMaterial struct {
	Text       string
	OriginKind string
	CharLength int
	Title      string
}

// ExtractError is raised only for failures that need distinct user guidance;
// plain "no text found" is reported as empty material instead.
type ExtractError struct {
	Code    string // "YT_NO_CAPTIONS" | "VIDEO_PROCESS" | "AUDIO_TRANSCRIBE" | "NO_TEXT_EXTRACTED"
	Message string
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract: %s: %s", e.Code, e.Message)
}

const (
	ErrCodeNoText          = "NO_TEXT_EXTRACTED"
	ErrCodeYTNoCaptions    = "YT_NO_CAPTIONS"
	ErrCodeVideoProcess    = "VIDEO_PROCESS"
	ErrCodeAudioTranscribe = "AUDIO_TRANSCRIBE"
)

type ExtractService struct {
	youtube     *YouTubeService
	media       *MediaService
	files       *FileExtractService
	web         *WebExtractService
	storagePath string
	maxChars    int
}

func NewExtractService(youtube *YouTubeService, media *MediaService, files *FileExtractService, web *WebExtractService, storagePath string, maxChars int) *ExtractService {
	return &ExtractService{
		youtube:     youtube,
		media:       media,
		files:       files,
		web:         web,
		storagePath: storagePath,
		maxChars:    maxChars,
	}
}

// Extract runs the single extractor matching the submission kind and returns
// normalized material. Empty text is a valid result; typed errors are
// reserved for the media/caption failures that need their own messaging.
func (s *ExtractService) Extract(ctx context.Context, sub models.Submission) (*SourceMaterial, error) {
	m := &SourceMaterial{OriginKind: OriginUnknown, Title: sub.Title}

	switch sub.Kind {
	case "text":
		m.OriginKind = OriginText
		m.Text = sub.Text

	case "url":
		m.OriginKind = OriginURL
		text, title, err := s.web.Extract(ctx, sub.URL)
		if err != nil {
			return nil, err
		}
		m.Text = text
		if m.Title == "" {
			m.Title = title
		}

	case "youtube":
		m.OriginKind = OriginYouTube
		text, err := s.youtube.Transcript(ctx, sub.VideoURL, sub.Language)
		if err != nil {
			return nil, err
		}
		m.Text = text

	case "video", "audio":
		m.OriginKind = OriginVideo
		text, err := s.media.Transcribe(ctx, s.resolvePath(sub.FilePath), firstNonEmpty(sub.VideoURL, sub.AudioURL), sub.Language)
		if err != nil {
			return nil, err
		}
		m.Text = text

	case "pdf":
		m.OriginKind = OriginPDF
		m.Text = s.files.ExtractPDF(s.resolvePath(sub.FilePath))

	case "pptx":
		m.OriginKind = OriginPPTX
		m.Text = s.files.ExtractPPTX(s.resolvePath(sub.FilePath))

	case "subtitle":
		m.OriginKind = OriginVideo
		data, err := os.ReadFile(s.resolvePath(sub.FilePath))
		if err == nil {
			m.Text = ParseSubtitle(string(data))
		}

	default:
		return nil, &ExtractError{Code: ErrCodeNoText, Message: "unsupported submission kind: " + sub.Kind}
	}

	m.Text = Truncate(CleanText(m.Text), s.maxChars)
	m.CharLength = len(m.Text)
	return m, nil
}

func (s *ExtractService) resolvePath(p string) string {
	if p == "" {
		return ""
	}
	return filepath.Join(s.storagePath, p)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// CleanText collapses whitespace runs and trims. All extractors funnel
// through this before truncation.
func CleanText(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// Truncate tail-cuts to at most max bytes, backing up so a multi-byte rune
// is never split at the boundary. Text at exactly max is untouched; zero max
// disables the cap.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// SelectKind picks exactly one input kind from a submission that may name
// several, by fixed priority: video/audio > text > url > subtitle >
// uploaded document > linked document.
func SelectKind(sub models.Submission) string {
	ext := strings.ToLower(filepath.Ext(sub.FileName))
	switch {
	case sub.VideoURL != "" && isYouTubeURL(sub.VideoURL):
		return "youtube"
	case sub.VideoURL != "":
		return "video"
	case sub.AudioURL != "":
		return "audio"
	case sub.FilePath != "" && (ext == ".mp4" || ext == ".webm" || ext == ".mkv"):
		return "video"
	case sub.FilePath != "" && (ext == ".mp3" || ext == ".wav" || ext == ".m4a" || ext == ".ogg"):
		return "audio"
	case strings.TrimSpace(sub.Text) != "":
		return "text"
	case sub.URL != "" && isYouTubeURL(sub.URL):
		return "youtube"
	case sub.URL != "":
		return "url"
	case sub.FilePath != "" && (ext == ".srt" || ext == ".vtt"):
		return "subtitle"
	case sub.FilePath != "" && ext == ".pdf":
		return "pdf"
	case sub.FilePath != "" && ext == ".pptx":
		return "pptx"
	default:
		return ""
	}
}

func isYouTubeURL(raw string) bool {
	return extractVideoID(raw) != ""
}
