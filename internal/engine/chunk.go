package engine

import (
	"regexp"
	"strings"
)

var sentenceSplit = regexp.MustCompile(`[^.!?]+[.!?]+|[^.!?]+$`)

// ChunkCards is the non-AI degradation path, used only when the inference
// backend is entirely unconfigured. It splits the source into sentence groups
// and wraps each as a pseudo-card. Decks built this way are tagged
// distinctly from AI-generated ones so consumers can tell them apart.
func ChunkCards(text string, n int) []Card {
	sentences := sentenceSplit.FindAllString(text, -1)
	var cleaned []string
	for _, s := range sentences {
		s = collapseWS(s)
		if len(s) >= 20 {
			cleaned = append(cleaned, s)
		}
	}
	if len(cleaned) == 0 {
		return nil
	}
	if n > len(cleaned) {
		n = len(cleaned)
	}

	per := len(cleaned) / n
	if per < 1 {
		per = 1
	}

	var cards []Card
	for i := 0; i < n; i++ {
		start := i * per
		end := start + per
		if i == n-1 {
			end = len(cleaned)
		}
		chunk := strings.Join(cleaned[start:end], " ")

		topic := cleaned[start]
		if len(topic) > 80 {
			topic = strings.TrimSpace(topic[:80]) + "…"
		}
		topic = strings.TrimRight(topic, ".!?")

		cards = append(cards, Card{
			Question: "What do you remember about: \"" + topic + "\"?",
			Answer:   chunk,
		})
	}
	return cards
}
