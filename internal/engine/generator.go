package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"cardforge-backend/internal/runpod"
)

// Caller is the slice of the inference client the engine needs; tests swap
// in a scripted fake.
type Caller interface {
	Configured() bool
	Call(ctx context.Context, messages []runpod.Message, opts runpod.CallOptions) (string, error)
}

type Options struct {
	// Model is the configured model name or alias; it selects the primary
	// strategy (verbose-reasoning families parse better as Q/A blocks).
	Model string

	MaxTokens  int
	GuidedJSON bool

	// Budget is the wall-clock ceiling across all passes. Default 55s,
	// sized to typical serverless execution limits.
	Budget time.Duration

	// BatchSize splits guided-JSON generation; zero means one full batch.
	BatchSize int

	PromptBudget     int
	MaxQuestionChars int
	MaxAnswerChars   int
}

const (
	defaultBudget       = 55 * time.Second
	defaultPromptBudget = 20000

	// minCallHeadroom is the smallest remaining budget worth starting
	// another call with. It must be at least the client's timeout floor:
	// the client raises shorter timeouts to that floor, so a call started
	// with less headroom could outlive the budget and get killed by the
	// platform instead of failing cleanly here.
	minCallHeadroom = runpod.MinCallTimeout

	// Per-batch token budget scales with the cards requested so latency
	// stays bounded.
	tokensPerCard      = 90
	tokenOverhead      = 250
	maxQAFillPasses    = 2
	maxGuidedBatchRuns = 8
)

type Generator struct {
	caller Caller
	opts   Options
}

func NewGenerator(caller Caller, opts Options) *Generator {
	if opts.Budget <= 0 {
		opts.Budget = defaultBudget
	}
	if opts.PromptBudget <= 0 {
		opts.PromptBudget = defaultPromptBudget
	}
	return &Generator{caller: caller, opts: opts}
}

// genState tracks one generation request across its passes.
type genState struct {
	source   string
	target   int
	cards    []Card
	deadline time.Time
	lastErr  *GenerationError
}

// Generate converges on exactly n valid cards or fails with a typed error —
// never a silent shortfall.
func (g *Generator) Generate(ctx context.Context, sourceText string, n int) ([]Card, error) {
	if g.caller == nil || !g.caller.Configured() {
		return nil, &GenerationError{Code: CodeNotConfigured, Message: "inference endpoint is not configured"}
	}

	st := &genState{
		source:   Shrink(sourceText, g.opts.PromptBudget),
		target:   n,
		deadline: time.Now().Add(g.opts.Budget),
	}

	type strategy struct {
		name string
		run  func(ctx context.Context, st *genState) ([]Card, *GenerationError)
	}

	var strategies []strategy
	qa := strategy{name: "qa-blocks", run: g.runQA}
	guided := strategy{name: "guided-json", run: g.runGuidedBatches}
	oneShot := strategy{name: "one-shot-json", run: g.runOneShot}

	switch {
	case isVerboseReasoningModel(g.opts.Model):
		strategies = []strategy{qa}
		if g.opts.GuidedJSON {
			strategies = append(strategies, guided)
		}
		strategies = append(strategies, oneShot)
	case g.opts.GuidedJSON:
		strategies = []strategy{guided, qa, oneShot}
	default:
		strategies = []strategy{oneShot, qa}
	}

	for _, s := range strategies {
		cards, gerr := s.run(ctx, st)
		if gerr == nil && len(cards) >= n {
			return cards[:n], nil
		}
		if gerr != nil {
			log.Printf("card strategy %s failed: %s", s.name, gerr.Error())
			st.lastErr = gerr
			if gerr.Code == CodeNotConfigured {
				return nil, gerr
			}
		} else {
			log.Printf("card strategy %s fell short (%d/%d)", s.name, len(cards), n)
		}
		if time.Until(st.deadline) < minCallHeadroom {
			if st.lastErr == nil || st.lastErr.Code == "" {
				st.lastErr = &GenerationError{Code: CodeTimeout, Message: "generation budget exhausted"}
			}
			break
		}
	}

	if st.lastErr != nil {
		return nil, st.lastErr
	}
	return nil, &GenerationError{Code: CodeBadOutput, Message: fmt.Sprintf("could not produce %d valid cards", n)}
}

// runQA drives the plain-text Q/A block format: initial pass with an
// assistant prefill, up to two fill passes naming the questions that already
// exist, and a strict-JSON fill for the tail when guided decoding is on.
func (g *Generator) runQA(ctx context.Context, st *genState) ([]Card, *GenerationError) {
	cards, gerr := g.qaPass(ctx, st, qaPrompt(st.source, st.target), nil)
	if gerr != nil {
		return nil, gerr
	}

	for pass := 0; pass < maxQAFillPasses && len(cards) < st.target; pass++ {
		if time.Until(st.deadline) < minCallHeadroom {
			return cards, nil
		}
		shortfall := st.target - len(cards)
		more, gerr := g.qaPass(ctx, st, qaFillPrompt(st.source, cards, shortfall), cards)
		if gerr != nil {
			// fill-pass failures are not fatal; keep what we have
			log.Printf("qa fill pass failed: %s", gerr.Error())
			break
		}
		cards = more
	}

	if len(cards) < st.target && g.opts.GuidedJSON && time.Until(st.deadline) >= minCallHeadroom {
		shortfall := st.target - len(cards)
		more, gerr := g.guidedCall(ctx, st, jsonFillPrompt(st.source, cards, shortfall), shortfall)
		if gerr == nil {
			cards = MergeDedup(cards, more)
		} else {
			log.Printf("strict-json fill failed: %s", gerr.Error())
		}
	}

	return cards, nil
}

func (g *Generator) qaPass(ctx context.Context, st *genState, prompt string, existing []Card) ([]Card, *GenerationError) {
	messages := []runpod.Message{
		{Role: runpod.RoleSystem, Content: systemPrompt},
		{Role: runpod.RoleUser, Content: prompt},
		// Prefill biases the model into immediate format compliance,
		// skipping preambles.
		{Role: runpod.RoleAssistant, Content: "Q:"},
	}

	content, err := g.call(ctx, st, messages, runpod.CallOptions{
		MaxTokens:   g.tokensFor(st.target),
		Temperature: 0.7,
	})
	if err != nil {
		return nil, classifyCallError(err)
	}

	// The prefilled "Q:" is usually not echoed back.
	trimmed := strings.TrimSpace(content)
	if !qMarker.MatchString(firstLine(trimmed)) {
		trimmed = "Q: " + trimmed
	}

	parsed := ValidateCards(ParseQABlocks(trimmed), g.opts.MaxQuestionChars, g.opts.MaxAnswerChars)
	return MergeDedup(existing, parsed), nil
}

// runGuidedBatches issues schema-constrained batches against the wall-clock
// budget. A batch that cannot fit the remaining budget is not started.
func (g *Generator) runGuidedBatches(ctx context.Context, st *genState) ([]Card, *GenerationError) {
	batchSize := g.opts.BatchSize
	if batchSize <= 0 || batchSize > st.target {
		batchSize = st.target
	}

	var cards []Card
	for run := 0; run < maxGuidedBatchRuns && len(cards) < st.target; run++ {
		remaining := st.target - len(cards)
		batch := batchSize
		if batch > remaining {
			batch = remaining
		}

		if time.Until(st.deadline) < minCallHeadroom {
			return nil, &GenerationError{Code: CodeTimeout, Message: "not enough budget left to start another batch"}
		}

		prompt := jsonPrompt(st.source, batch)
		if len(cards) > 0 {
			prompt = jsonFillPrompt(st.source, cards, batch)
		}
		parsed, gerr := g.guidedCall(ctx, st, prompt, batch)
		if gerr != nil {
			return nil, gerr
		}

		before := len(cards)
		cards = MergeDedup(cards, parsed)
		if len(cards) == before {
			// the model is only repeating itself; stop instead of burning budget
			break
		}
	}

	return cards, nil
}

func (g *Generator) guidedCall(ctx context.Context, st *genState, prompt string, n int) ([]Card, *GenerationError) {
	content, err := g.call(ctx, st, []runpod.Message{
		{Role: runpod.RoleSystem, Content: systemPrompt},
		{Role: runpod.RoleUser, Content: prompt},
	}, runpod.CallOptions{
		MaxTokens:   g.tokensFor(n),
		Temperature: 0.7,
		GuidedJSON:  cardArraySchema(n),
	})
	if err != nil {
		return nil, classifyCallError(err)
	}

	parsed, ok := ParseCardsJSON(content)
	if !ok {
		return nil, &GenerationError{Code: CodeBadOutput, Preview: previewOf(content), Message: "guided batch response contained no JSON array"}
	}
	valid := ValidateCards(parsed, g.opts.MaxQuestionChars, g.opts.MaxAnswerChars)
	if len(valid) == 0 {
		// zero valid cards from a parsed batch is systemic, not transient
		return nil, &GenerationError{Code: CodeBadOutput, Preview: previewOf(content), Message: "guided batch parsed to zero valid cards"}
	}
	return valid, nil
}

// runOneShot asks for the whole deck in one unconstrained call, with one
// repair pass and a final Q/A attempt before giving up.
func (g *Generator) runOneShot(ctx context.Context, st *genState) ([]Card, *GenerationError) {
	content, err := g.call(ctx, st, []runpod.Message{
		{Role: runpod.RoleSystem, Content: systemPrompt},
		{Role: runpod.RoleUser, Content: jsonPrompt(st.source, st.target)},
	}, runpod.CallOptions{
		MaxTokens:   g.tokensFor(st.target),
		Temperature: 0.7,
	})
	if err != nil {
		return nil, classifyCallError(err)
	}

	if cards := g.parseAndValidate(content); len(cards) > 0 {
		return cards, nil
	}

	if time.Until(st.deadline) >= minCallHeadroom {
		repaired, rerr := g.call(ctx, st, []runpod.Message{
			{Role: runpod.RoleUser, Content: repairPrompt(previewLong(content))},
		}, runpod.CallOptions{
			MaxTokens:   g.tokensFor(st.target),
			Temperature: 0,
		})
		if rerr == nil {
			if cards := g.parseAndValidate(repaired); len(cards) > 0 {
				return cards, nil
			}
		}
	}

	if time.Until(st.deadline) >= minCallHeadroom {
		cards, gerr := g.qaPass(ctx, st, qaPrompt(st.source, st.target), nil)
		if gerr == nil && len(cards) > 0 {
			return cards, nil
		}
	}

	return nil, &GenerationError{Code: CodeBadOutput, Preview: previewOf(content), Message: "model output could not be coerced into valid cards"}
}

func (g *Generator) parseAndValidate(content string) []Card {
	parsed, ok := ParseCardsJSON(content)
	if !ok {
		return nil
	}
	return ValidateCards(parsed, g.opts.MaxQuestionChars, g.opts.MaxAnswerChars)
}

// call routes every outbound request through one place so the remaining
// wall-clock budget bounds each call's timeout.
func (g *Generator) call(ctx context.Context, st *genState, messages []runpod.Message, opts runpod.CallOptions) (string, error) {
	remaining := time.Until(st.deadline)
	if remaining < minCallHeadroom {
		return "", &runpod.CallError{Reason: runpod.ReasonTimeout, Message: "generation budget exhausted"}
	}
	opts.Timeout = remaining
	return g.caller.Call(ctx, messages, opts)
}

func (g *Generator) tokensFor(n int) int {
	tokens := n*tokensPerCard + tokenOverhead
	if g.opts.MaxTokens > 0 && tokens > g.opts.MaxTokens {
		tokens = g.opts.MaxTokens
	}
	return tokens
}

// Verbose-reasoning families burn their token budget on chain-of-thought and
// comply poorly with constrained decoding, so they get the Q/A path first.
var verboseModelMarkers = []string{"r1", "qwq", "reason", "think", "o1", "o3"}

func isVerboseReasoningModel(model string) bool {
	m := strings.ToLower(model)
	for _, marker := range verboseModelMarkers {
		if strings.Contains(m, marker) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func previewLong(s string) string {
	const repairCap = 6000
	return clip(s, repairCap)
}
