package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cardforge-backend/internal/runpod"
)

const minNoteChars = 40

// GenerateNote produces a markdown summary note of the source text in a
// single call, with one retry when the output is unusable.
func (g *Generator) GenerateNote(ctx context.Context, sourceText string) (string, error) {
	if g.caller == nil || !g.caller.Configured() {
		return "", &GenerationError{Code: CodeNotConfigured, Message: "inference endpoint is not configured"}
	}

	st := &genState{
		source:   Shrink(sourceText, g.opts.PromptBudget),
		deadline: time.Now().Add(g.opts.Budget),
	}

	note, gerr := g.notePass(ctx, st)
	if gerr == nil {
		return note, nil
	}
	if gerr.Code == CodeNotConfigured || time.Until(st.deadline) < minCallHeadroom {
		return "", gerr
	}

	note, gerr2 := g.notePass(ctx, st)
	if gerr2 == nil {
		return note, nil
	}
	return "", gerr
}

func (g *Generator) notePass(ctx context.Context, st *genState) (string, *GenerationError) {
	content, err := g.call(ctx, st, []runpod.Message{
		{Role: runpod.RoleSystem, Content: "You write clear, accurate study notes in markdown."},
		{Role: runpod.RoleUser, Content: fmt.Sprintf(notePrompt, st.source)},
	}, runpod.CallOptions{
		MaxTokens:   g.opts.MaxTokens,
		Temperature: 0.5,
	})
	if err != nil {
		return "", classifyCallError(err)
	}

	note := strings.TrimSpace(content)
	if len(note) < minNoteChars {
		return "", &GenerationError{Code: CodeBadOutput, Preview: previewOf(content), Message: "summary note was empty or degenerate"}
	}
	return note, nil
}
