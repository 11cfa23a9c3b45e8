package engine

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestShrink_UnderBudgetUntouched(t *testing.T) {
	text := "short source text"
	if got := Shrink(text, 1000); got != text {
		t.Errorf("got %q, want input unchanged", got)
	}
	if got := Shrink(text, 0); got != text {
		t.Errorf("zero budget should disable shrinking, got %q", got)
	}
}

func TestShrink_TailTruncate(t *testing.T) {
	text := strings.Repeat("a", 500)
	got := Shrink(text, 100)
	if len(got) > 100 {
		t.Errorf("got %d chars, want <= 100", len(got))
	}
}

func TestShrink_TailTruncateRuneSafe(t *testing.T) {
	text := strings.Repeat("言", 100) // 3 bytes per rune
	got := Shrink(text, 50)
	if !utf8.ValidString(got) {
		t.Fatalf("shrink split a rune: %q", got)
	}
	if len(got) > 50 {
		t.Errorf("got %d bytes, want <= 50", len(got))
	}
}

func TestShrink_SlideDigestRuneSafe(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 3; i++ {
		fmt.Fprintf(&b, "[Slide %d] %s\n", i, strings.Repeat("語", 200))
	}
	got := Shrink(b.String(), 900)
	if !utf8.ValidString(got) {
		t.Fatalf("slide digest split a rune: %q", got)
	}
}

func TestShrink_SlideDigest(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&b, "[Slide %d] %s\n", i, strings.Repeat("w", 600))
	}
	text := b.String()

	got := Shrink(text, 3000)
	if len(got) > 3000 {
		t.Fatalf("got %d chars, want <= 3000", len(got))
	}

	// A blind tail-truncate at 3000 chars would never reach slide 5; the
	// per-slide digest must.
	if !strings.Contains(got, "[Slide 5]") {
		t.Error("digest dropped later slides entirely")
	}
	if !strings.Contains(got, "[Slide 1]") {
		t.Error("digest dropped the first slide")
	}
}

func TestShrink_SingleMarkerFallsBackToTruncate(t *testing.T) {
	text := "[Slide 1] " + strings.Repeat("w", 500)
	got := Shrink(text, 100)
	if len(got) > 100 {
		t.Errorf("got %d chars, want <= 100", len(got))
	}
}

func TestChunkCards(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 12; i++ {
		fmt.Fprintf(&b, "This is sentence number %d about a topic worth remembering. ", i)
	}

	cards := ChunkCards(b.String(), 4)
	if len(cards) != 4 {
		t.Fatalf("got %d cards, want 4", len(cards))
	}
	for i, c := range cards {
		if !strings.HasPrefix(c.Question, "What do you remember about:") {
			t.Errorf("card %d question %q has wrong shape", i, c.Question)
		}
		if c.Answer == "" {
			t.Errorf("card %d has empty answer", i)
		}
	}
}

func TestChunkCards_FewerSentencesThanRequested(t *testing.T) {
	text := "Only one usable sentence lives in this source text."
	cards := ChunkCards(text, 10)
	if len(cards) != 1 {
		t.Fatalf("got %d cards, want 1", len(cards))
	}
}

func TestChunkCards_EmptyInput(t *testing.T) {
	if cards := ChunkCards("", 5); cards != nil {
		t.Errorf("got %+v, want nil", cards)
	}
	if cards := ChunkCards("tiny. bits. here.", 5); cards != nil {
		t.Errorf("short sentences should be filtered out, got %+v", cards)
	}
}
