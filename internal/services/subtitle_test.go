package services

import "testing"

func TestParseSubtitle_VTT(t *testing.T) {
	raw := "WEBVTT\nKind: captions\nLanguage: en\n\n" +
		"NOTE this block is metadata\nand spans lines\n\n" +
		"STYLE\n::cue { color: white }\n\n" +
		"00:00:01.000 --> 00:00:04.000\nWelcome to the <b>lecture</b>.\n\n" +
		"00:00:04.000 --> 00:00:07.000\nToday we cover goroutines.\n"

	got := ParseSubtitle(raw)
	want := "Welcome to the lecture. Today we cover goroutines."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestParseSubtitle_SRT(t *testing.T) {
	raw := "1\r\n00:00:01,000 --> 00:00:04,000\r\nFirst cue line.\r\n\r\n" +
		"2\r\n00:00:04,000 --> 00:00:07,000\r\nSecond cue line,\r\ncontinued here.\r\n"

	got := ParseSubtitle(raw)
	want := "First cue line. Second cue line, continued here."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestParseSubtitle_Empty(t *testing.T) {
	if got := ParseSubtitle("WEBVTT\n\n"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}
