package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

const systemPrompt = "You are an expert educator who writes high-quality study flashcards. " +
	"Each card has a clear question and a complete, self-contained answer grounded " +
	"only in the provided material. Never invent facts that are not in the material."

func qaPrompt(source string, n int) string {
	return fmt.Sprintf(`Create exactly %d flashcards from the study material below.

Output each card as plain text in this exact format, nothing else:

Q: <question>
A: <answer>
---

Rules:
- exactly %d cards
- questions end with a question mark
- answers are complete sentences
- no numbering, no commentary, no introduction

Study material:
%s`, n, n, source)
}

func qaFillPrompt(source string, existing []Card, shortfall int) string {
	var questions strings.Builder
	for _, c := range existing {
		questions.WriteString("- ")
		questions.WriteString(c.Question)
		questions.WriteString("\n")
	}

	return fmt.Sprintf(`The study material below already has flashcards for these questions:

%s
Create exactly %d NEW flashcards covering different facts from the material. Do not repeat or rephrase any question listed above.

Output each card as plain text in this exact format, nothing else:

Q: <question>
A: <answer>
---

Study material:
%s`, questions.String(), shortfall, source)
}

func jsonPrompt(source string, n int) string {
	return fmt.Sprintf(`Create exactly %d flashcards from the study material below.

Respond with ONLY a JSON array, no prose, no markdown:
[{"question": "...", "answer": "..."}, ...]

Rules:
- exactly %d objects
- questions end with a question mark
- answers are complete sentences

Study material:
%s`, n, n, source)
}

func jsonFillPrompt(source string, existing []Card, shortfall int) string {
	var questions strings.Builder
	for _, c := range existing {
		questions.WriteString("- ")
		questions.WriteString(c.Question)
		questions.WriteString("\n")
	}

	return fmt.Sprintf(`Flashcards already exist for these questions:

%s
Create exactly %d NEW flashcards from the study material, covering different facts. Respond with ONLY a JSON array:
[{"question": "...", "answer": "..."}, ...]

Study material:
%s`, questions.String(), shortfall, source)
}

func repairPrompt(brokenOutput string) string {
	return fmt.Sprintf(`Reformat the following into a valid JSON array of objects with exactly the keys "question" and "answer". Output ONLY the JSON array, no prose, no markdown fences.

%s`, brokenOutput)
}

const notePrompt = `Write a clear, well-structured summary note of the study material below, in markdown. Use headings and bullet points where they help. Cover every major topic in the material; do not add information that is not present.

Study material:
%s`

// cardArraySchema is the guided-decoding schema for a batch of cards.
func cardArraySchema(n int) json.RawMessage {
	schema := fmt.Sprintf(`{
  "type": "array",
  "minItems": %d,
  "maxItems": %d,
  "items": {
    "type": "object",
    "properties": {
      "question": {"type": "string"},
      "answer": {"type": "string"}
    },
    "required": ["question", "answer"]
  }
}`, n, n)
	return json.RawMessage(schema)
}
