package engine

import (
	"errors"
	"fmt"

	"cardforge-backend/internal/runpod"
)

// Generation failure codes. Callers map these to user-facing guidance: a
// queue backlog, a timeout, and malformed model output each need a different
// message.
const (
	CodeNotConfigured = "RUNPOD_NOT_CONFIGURED"
	CodeInQueue       = "RUNPOD_IN_QUEUE"
	CodeTimeout       = "RUNPOD_TIMEOUT"
	CodeBadOutput     = "RUNPOD_BAD_OUTPUT"
	CodeHTTPError     = "RUNPOD_HTTP_ERROR"
)

type GenerationError struct {
	Code    string
	Preview string // clipped sample of the offending model output, for diagnosis
	Message string
}

func (e *GenerationError) Error() string {
	if e.Preview != "" {
		return fmt.Sprintf("generation: %s: %s (output preview: %s)", e.Code, e.Message, e.Preview)
	}
	return fmt.Sprintf("generation: %s: %s", e.Code, e.Message)
}

// classifyCallError folds an inference-client failure into a generation code.
// The IN_QUEUE/IN_PROGRESS distinction on timeouts survives: a queue backlog
// wants a "try again later", a stalled run wants a "reduce the card count".
func classifyCallError(err error) *GenerationError {
	var ce *runpod.CallError
	if !errors.As(err, &ce) {
		return &GenerationError{Code: CodeHTTPError, Message: err.Error()}
	}

	switch ce.Reason {
	case runpod.ReasonNotConfigured:
		return &GenerationError{Code: CodeNotConfigured, Message: ce.Message}
	case runpod.ReasonTimeout:
		if ce.LastStatus == "IN_QUEUE" {
			return &GenerationError{Code: CodeInQueue, Message: "the inference endpoint is backed up; try again shortly"}
		}
		return &GenerationError{Code: CodeTimeout, Message: "the inference call timed out"}
	case runpod.ReasonEmptyOutput:
		return &GenerationError{Code: CodeBadOutput, Message: "the model returned no usable output"}
	default:
		return &GenerationError{Code: CodeHTTPError, Message: ce.Error()}
	}
}

func previewOf(s string) string {
	const previewCap = 300
	if len(s) > previewCap {
		return clip(s, previewCap) + "…"
	}
	return s
}
