package engine

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Card is a draft flashcard, pre-persistence.
type Card struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

const (
	minQuestionChars = 8
	minAnswerChars   = 12
)

var wsRun = regexp.MustCompile(`\s+`)

func collapseWS(s string) string {
	return strings.TrimSpace(wsRun.ReplaceAllString(s, " "))
}

// clip truncates to at most max bytes without splitting a multi-byte rune at
// the boundary.
func clip(s string, max int) string {
	if max < 0 {
		max = 0
	}
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// ValidateCards normalizes drafts and drops the degenerate ones. The pass is
// idempotent: feeding its output back in yields the identical list.
//
// Per card: collapse whitespace, cap by truncation, append a missing `?`,
// drop anything under the minimum lengths.
func ValidateCards(cards []Card, maxQuestion, maxAnswer int) []Card {
	out := make([]Card, 0, len(cards))
	for _, c := range cards {
		q := collapseWS(c.Question)
		a := collapseWS(c.Answer)

		if maxQuestion > 0 && len(q) > maxQuestion {
			q = strings.TrimSpace(clip(q, maxQuestion))
		}
		if !strings.HasSuffix(q, "?") {
			if maxQuestion > 0 && len(q)+1 > maxQuestion {
				q = strings.TrimSpace(clip(q, maxQuestion-1))
			}
			q += "?"
		}
		if maxAnswer > 0 && len(a) > maxAnswer {
			a = strings.TrimSpace(clip(a, maxAnswer))
		}

		if len(q) < minQuestionChars || len(a) < minAnswerChars {
			continue
		}
		out = append(out, Card{Question: q, Answer: a})
	}
	return out
}

// MergeDedup appends incoming cards onto existing, deduplicating by
// lowercased question. On a collision the later answer wins, in place, so
// each distinct question appears exactly once and order is stable.
func MergeDedup(existing, incoming []Card) []Card {
	merged := make([]Card, len(existing))
	copy(merged, existing)

	index := make(map[string]int, len(merged))
	for i, c := range merged {
		index[strings.ToLower(c.Question)] = i
	}

	for _, c := range incoming {
		key := strings.ToLower(c.Question)
		if i, ok := index[key]; ok {
			merged[i].Answer = c.Answer
			continue
		}
		index[key] = len(merged)
		merged = append(merged, c)
	}
	return merged
}
