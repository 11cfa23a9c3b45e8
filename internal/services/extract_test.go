package services

import (
	"strings"
	"testing"
	"unicode/utf8"

	"cardforge-backend/internal/models"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses runs", "a  b\t\tc\n\nd", "a b c d"},
		{"trims edges", "  hello world  ", "hello world"},
		{"empty", "   \n\t ", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CleanText(tc.in); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	s := strings.Repeat("x", 100)
	if got := Truncate(s, 100); got != s {
		t.Error("text at exactly max must be untouched")
	}
	if got := Truncate(s, 99); len(got) != 99 {
		t.Errorf("got %d chars, want 99", len(got))
	}
	if got := Truncate(s, 0); got != s {
		t.Error("zero max disables truncation")
	}
}

func TestTruncate_RuneBoundary(t *testing.T) {
	s := strings.Repeat("é", 10) // 2 bytes per rune
	got := Truncate(s, 5)
	if !utf8.ValidString(got) {
		t.Fatalf("truncation split a rune: %q", got)
	}
	if got != "éé" {
		t.Errorf("got %q, want %q", got, "éé")
	}
}

func TestSelectKind(t *testing.T) {
	tests := []struct {
		name string
		sub  models.Submission
		want string
	}{
		{"youtube video url", models.Submission{VideoURL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"}, "youtube"},
		{"direct video url", models.Submission{VideoURL: "https://cdn.example.com/lecture.mp4"}, "video"},
		{"audio url", models.Submission{AudioURL: "https://cdn.example.com/lecture.mp3"}, "audio"},
		{"uploaded video file", models.Submission{FilePath: "u/1/a.mp4", FileName: "a.mp4"}, "video"},
		{"uploaded audio file", models.Submission{FilePath: "u/1/a.m4a", FileName: "a.m4a"}, "audio"},
		{"plain text", models.Submission{Text: "some source text"}, "text"},
		{"youtube in url field", models.Submission{URL: "https://youtu.be/dQw4w9WgXcQ"}, "youtube"},
		{"web url", models.Submission{URL: "https://example.com/article"}, "url"},
		{"subtitle file", models.Submission{FilePath: "u/1/a.srt", FileName: "a.srt"}, "subtitle"},
		{"pdf file", models.Submission{FilePath: "u/1/a.pdf", FileName: "a.pdf"}, "pdf"},
		{"pptx file", models.Submission{FilePath: "u/1/a.pptx", FileName: "a.pptx"}, "pptx"},
		{"nothing", models.Submission{}, ""},

		// priority: media beats text beats url beats files
		{"video beats text", models.Submission{VideoURL: "https://cdn.example.com/a.mp4", Text: "text"}, "video"},
		{"text beats url", models.Submission{Text: "text", URL: "https://example.com"}, "text"},
		{"url beats pdf", models.Submission{URL: "https://example.com", FilePath: "u/1/a.pdf", FileName: "a.pdf"}, "url"},
		{"whitespace text is not text", models.Submission{Text: "   ", URL: "https://example.com"}, "url"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SelectKind(tc.sub); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}
