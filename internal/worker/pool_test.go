package worker

import (
	"errors"
	"strings"
	"testing"

	"cardforge-backend/internal/engine"
	"cardforge-backend/internal/services"
)

func TestClassifyPipelineError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantCode      string
		wantRetryable bool
	}{
		{
			name:          "caption failure is final",
			err:           &services.ExtractError{Code: services.ErrCodeYTNoCaptions, Message: "no captions"},
			wantCode:      "YT_NO_CAPTIONS",
			wantRetryable: false,
		},
		{
			name:          "transcription failure is final",
			err:           &services.ExtractError{Code: services.ErrCodeAudioTranscribe, Message: "asr failed"},
			wantCode:      "AUDIO_TRANSCRIBE",
			wantRetryable: false,
		},
		{
			name:          "missing endpoint config is final",
			err:           &engine.GenerationError{Code: engine.CodeNotConfigured, Message: "not configured"},
			wantCode:      engine.CodeNotConfigured,
			wantRetryable: false,
		},
		{
			name:          "generation timeout retries",
			err:           &engine.GenerationError{Code: engine.CodeTimeout, Message: "timed out"},
			wantCode:      engine.CodeTimeout,
			wantRetryable: true,
		},
		{
			name:          "bad output retries",
			err:           &engine.GenerationError{Code: engine.CodeBadOutput, Message: "garbage"},
			wantCode:      engine.CodeBadOutput,
			wantRetryable: true,
		},
		{
			name:          "unknown error retries as internal",
			err:           errors.New("connection reset"),
			wantCode:      "INTERNAL",
			wantRetryable: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			je := classifyPipelineError(tc.err)
			if je.code != tc.wantCode {
				t.Errorf("got code %s, want %s", je.code, tc.wantCode)
			}
			if je.retryable != tc.wantRetryable {
				t.Errorf("got retryable %v, want %v", je.retryable, tc.wantRetryable)
			}
		})
	}
}

func TestClassifyPipelineError_IncludesPreview(t *testing.T) {
	je := classifyPipelineError(&engine.GenerationError{
		Code:    engine.CodeBadOutput,
		Message: "unparseable",
		Preview: "I cannot help with that",
	})
	if !strings.Contains(je.message, "I cannot help with that") {
		t.Errorf("preview missing from message: %q", je.message)
	}
}

func TestResultType(t *testing.T) {
	if got := resultType("deck-generation"); got != "deck" {
		t.Errorf("got %q", got)
	}
	if got := resultType("note-generation"); got != "note" {
		t.Errorf("got %q", got)
	}
}
