package engine

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestValidateCards(t *testing.T) {
	tests := []struct {
		name string
		in   []Card
		want []Card
	}{
		{
			name: "collapses whitespace and appends question mark",
			in:   []Card{{Question: "  What   is\n Go ", Answer: "A language from  Google."}},
			want: []Card{{Question: "What is Go?", Answer: "A language from Google."}},
		},
		{
			name: "keeps existing question mark",
			in:   []Card{{Question: "What is Go?", Answer: "A language from Google."}},
			want: []Card{{Question: "What is Go?", Answer: "A language from Google."}},
		},
		{
			name: "drops short question",
			in:   []Card{{Question: "Go?", Answer: "A language from Google."}},
			want: []Card{},
		},
		{
			name: "drops short answer",
			in:   []Card{{Question: "What is Go?", Answer: "short"}},
			want: []Card{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ValidateCards(tc.in, 300, 1000)
			if len(got) != len(tc.want) {
				t.Fatalf("got %d cards, want %d: %+v", len(got), len(tc.want), got)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("card %d: got %+v, want %+v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestValidateCards_Truncation(t *testing.T) {
	long := strings.Repeat("x", 500)
	got := ValidateCards([]Card{{Question: long, Answer: long}}, 100, 200)
	if len(got) != 1 {
		t.Fatalf("got %d cards, want 1", len(got))
	}
	if len(got[0].Question) > 100 {
		t.Errorf("question length %d exceeds cap", len(got[0].Question))
	}
	if !strings.HasSuffix(got[0].Question, "?") {
		t.Error("truncated question lost its question mark")
	}
	if len(got[0].Answer) > 200 {
		t.Errorf("answer length %d exceeds cap", len(got[0].Answer))
	}
}

func TestValidateCards_TruncationRuneSafe(t *testing.T) {
	q := strings.Repeat("语", 60)  // 3 bytes per rune, 180 bytes total
	a := strings.Repeat("言", 120) // 360 bytes total
	got := ValidateCards([]Card{{Question: q, Answer: a}}, 100, 200)
	if len(got) != 1 {
		t.Fatalf("got %d cards, want 1", len(got))
	}
	if !utf8.ValidString(got[0].Question) {
		t.Errorf("question truncation split a rune: %q", got[0].Question)
	}
	if !utf8.ValidString(got[0].Answer) {
		t.Errorf("answer truncation split a rune: %q", got[0].Answer)
	}
	if len(got[0].Question) > 100 || len(got[0].Answer) > 200 {
		t.Errorf("caps exceeded: %d/%d", len(got[0].Question), len(got[0].Answer))
	}
}

func TestClip(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"under max untouched", "hello", 10, "hello"},
		{"ascii cut", "hello", 3, "hel"},
		{"backs up off a rune boundary", "ééé", 3, "é"},
		{"on a rune boundary", "ééé", 4, "éé"},
		{"zero max", "hello", 0, ""},
		{"negative max", "hello", -1, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := clip(tc.in, tc.max); got != tc.want {
				t.Errorf("clip(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
			}
		})
	}
}

func TestValidateCards_Idempotent(t *testing.T) {
	in := []Card{
		{Question: "  What   is Go ", Answer: "A language  from Google."},
		{Question: strings.Repeat("why ", 100), Answer: strings.Repeat("because ", 100)},
	}
	once := ValidateCards(in, 120, 300)
	twice := ValidateCards(once, 120, 300)

	if len(once) != len(twice) {
		t.Fatalf("second pass changed card count: %d vs %d", len(once), len(twice))
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("card %d changed on second pass: %+v vs %+v", i, once[i], twice[i])
		}
	}
}

func TestMergeDedup(t *testing.T) {
	existing := []Card{
		{Question: "What is Go?", Answer: "old answer"},
		{Question: "What is a channel?", Answer: "a conduit"},
	}
	incoming := []Card{
		{Question: "WHAT IS GO?", Answer: "new answer"},
		{Question: "What is a mutex?", Answer: "a lock"},
	}

	got := MergeDedup(existing, incoming)
	if len(got) != 3 {
		t.Fatalf("got %d cards, want 3", len(got))
	}
	// collision keeps position but takes the later answer
	if got[0].Question != "What is Go?" || got[0].Answer != "new answer" {
		t.Errorf("collision handling wrong: %+v", got[0])
	}
	if got[1].Question != "What is a channel?" {
		t.Errorf("order not stable: %+v", got[1])
	}
	if got[2].Question != "What is a mutex?" {
		t.Errorf("new card missing: %+v", got[2])
	}
}

func TestMergeDedup_DoesNotMutateInput(t *testing.T) {
	existing := []Card{{Question: "Q?", Answer: "original"}}
	MergeDedup(existing, []Card{{Question: "q?", Answer: "replaced"}})
	if existing[0].Answer != "original" {
		t.Error("MergeDedup mutated its input slice")
	}
}
