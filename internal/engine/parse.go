package engine

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	qMarker     = regexp.MustCompile(`(?i)^(?:\d+[\.\)]\s*)?(?:[-*]\s*)?(?:\*{0,2})q(?:uestion)?\s*\d*\s*(?:\*{0,2})[:.\)]\s*(.*)$`)
	aMarker     = regexp.MustCompile(`(?i)^(?:\d+[\.\)]\s*)?(?:[-*]\s*)?(?:\*{0,2})a(?:nswer)?\s*\d*\s*(?:\*{0,2})[:.\)]\s*(.*)$`)
	sameLineQA  = regexp.MustCompile(`(?i)^(?:\d+[\.\)]\s*)?q[:.]\s*(.+?)\s+a[:.]\s*(.+)$`)
	separatorLn = regexp.MustCompile(`^[-=_*]{3,}$`)
)

// ParseQABlocks recovers cards from the plain-text Q:/A:/--- serialization.
// The parser is line-oriented and deliberately tolerant: numbered and
// bulleted variants, markdown bold markers, same-line "Q: … A: …" fusion, and
// multi-line answers all parse. A card flushes on a separator line or on the
// next Q marker.
func ParseQABlocks(raw string) []Card {
	var cards []Card
	var q, a strings.Builder
	inAnswer := false

	flush := func() {
		question := strings.TrimSpace(q.String())
		answer := strings.TrimSpace(a.String())
		if question != "" && answer != "" {
			cards = append(cards, Card{Question: question, Answer: answer})
		}
		q.Reset()
		a.Reset()
		inAnswer = false
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if separatorLn.MatchString(line) {
			flush()
			continue
		}

		if m := sameLineQA.FindStringSubmatch(line); m != nil {
			flush()
			cards = append(cards, Card{
				Question: strings.TrimSpace(m[1]),
				Answer:   strings.TrimSpace(m[2]),
			})
			continue
		}

		if m := qMarker.FindStringSubmatch(line); m != nil {
			flush()
			q.WriteString(m[1])
			continue
		}

		if m := aMarker.FindStringSubmatch(line); m != nil {
			inAnswer = true
			if a.Len() > 0 {
				a.WriteString(" ")
			}
			a.WriteString(m[1])
			continue
		}

		// Continuation line: extend whichever field is open.
		if inAnswer {
			if a.Len() > 0 {
				a.WriteString(" ")
			}
			a.WriteString(line)
		} else if q.Len() > 0 {
			q.WriteString(" ")
			q.WriteString(line)
		}
	}
	flush()

	return cards
}

var codeFence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractJSONArray digs the first balanced JSON array out of a model response
// that may wrap it in prose or a markdown code fence.
func ExtractJSONArray(raw string) (string, bool) {
	if m := codeFence.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}

	start := strings.IndexByte(raw, '[')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '[':
			depth++
		case ch == ']':
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}

// ParseCardsJSON parses a model response expected to contain a JSON array of
// {question, answer} objects. Alternate key spellings are tolerated.
func ParseCardsJSON(raw string) ([]Card, bool) {
	arrText, ok := ExtractJSONArray(raw)
	if !ok {
		return nil, false
	}

	var items []map[string]interface{}
	if err := json.Unmarshal([]byte(arrText), &items); err != nil {
		return nil, false
	}

	var cards []Card
	for _, item := range items {
		q := firstStringField(item, "question", "q", "front", "prompt")
		a := firstStringField(item, "answer", "a", "back", "response")
		if q == "" || a == "" {
			continue
		}
		cards = append(cards, Card{Question: q, Answer: a})
	}
	return cards, true
}

func firstStringField(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
