package runpod

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type ASRCode string

const (
	ASRNotConfigured ASRCode = "NOT_CONFIGURED"
	ASRHTTPError     ASRCode = "HTTP_ERROR"
	ASRProviderError ASRCode = "PROVIDER_ERROR"
	ASRException     ASRCode = "EXCEPTION"
)

type ASRError struct {
	Code    ASRCode
	Message string
}

func (e *ASRError) Error() string {
	return fmt.Sprintf("asr: %s: %s", e.Code, e.Message)
}

// ASRInput carries the audio payload: a fetchable URL, or base64 bytes for
// payloads small enough to pass inline.
type ASRInput struct {
	AudioURL    string
	AudioBase64 string
}

type ASROptions struct {
	Timeout  time.Duration
	Language string
}

const (
	defaultASRTimeout = 45 * time.Second
	maxASRTimeout     = 120 * time.Second
)

// ASRClient calls a RunPod speech-recognition worker (faster-whisper) and
// normalizes its varied output field names into one transcript string.
type ASRClient struct {
	endpoint     string
	apiKey       string
	pollInterval time.Duration
	httpClient   *http.Client
}

func NewASRClient(endpoint, apiKey string, pollInterval time.Duration) *ASRClient {
	if pollInterval <= 0 {
		pollInterval = defaultPollEvery
	}
	return &ASRClient{
		endpoint:     strings.TrimRight(endpoint, "/"),
		apiKey:       apiKey,
		pollInterval: pollInterval,
		httpClient:   &http.Client{},
	}
}

func (c *ASRClient) Configured() bool {
	return c != nil && c.endpoint != "" && c.apiKey != ""
}

func (c *ASRClient) Transcribe(ctx context.Context, in ASRInput, opts ASROptions) (string, error) {
	if !c.Configured() {
		return "", &ASRError{Code: ASRNotConfigured, Message: "RUNPOD_ASR_ENDPOINT or RUNPOD_API_KEY is not set"}
	}
	if in.AudioURL == "" && in.AudioBase64 == "" {
		return "", &ASRError{Code: ASRException, Message: "no audio payload provided"}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultASRTimeout
	}
	if timeout > maxASRTimeout {
		timeout = maxASRTimeout
	}
	deadline := time.Now().Add(timeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	input := map[string]interface{}{}
	if in.AudioURL != "" {
		input["audio"] = in.AudioURL
	} else {
		input["audio_base64"] = in.AudioBase64
	}
	if opts.Language != "" {
		input["language"] = opts.Language
	}

	status, payload, err := c.doJSON(ctx, http.MethodPost, c.endpoint, map[string]interface{}{"input": input})
	if err != nil {
		return "", &ASRError{Code: ASRException, Message: err.Error()}
	}
	if status < 200 || status >= 300 {
		return "", &ASRError{Code: ASRHTTPError, Message: fmt.Sprintf("http %d: %s", status, previewPayload(payload))}
	}

	// A /run-style deployment answers with a job id; finish it with the
	// shared poll loop.
	if _, hasOutput := payload["output"]; !hasOutput {
		if jobID, _ := payload["id"].(string); jobID != "" {
			statusURL, uerr := c.statusURL(jobID)
			if uerr != nil {
				return "", &ASRError{Code: ASRException, Message: uerr.Error()}
			}
			last, p, timedOut, perr := pollUntil(ctx, c.pollInterval, deadline,
				func(ctx context.Context) (string, map[string]interface{}, error) {
					code, sp, ferr := c.doJSON(ctx, http.MethodGet, statusURL, nil)
					if ferr != nil {
						return "", nil, ferr
					}
					if code < 200 || code >= 300 {
						return "", sp, fmt.Errorf("status endpoint returned %d", code)
					}
					s, _ := sp["status"].(string)
					return s, sp, nil
				},
				func(s string) bool { return s == "COMPLETED" },
				func(s string) bool { return s == "FAILED" || s == "CANCELLED" },
			)
			if perr != nil {
				return "", &ASRError{Code: ASRHTTPError, Message: perr.Error()}
			}
			if timedOut || last != "COMPLETED" {
				return "", &ASRError{Code: ASRProviderError, Message: "transcription job ended with status " + last}
			}
			payload = p
		}
	}

	if errField := extractProviderError(payload); errField != "" {
		return "", &ASRError{Code: ASRProviderError, Message: errField}
	}

	transcript := extractTranscript(payload["output"])
	if strings.TrimSpace(transcript) == "" {
		return "", &ASRError{Code: ASRProviderError, Message: "provider returned no transcript"}
	}
	return strings.TrimSpace(transcript), nil
}

func (c *ASRClient) statusURL(jobID string) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", err
	}
	idx := strings.LastIndex(u.Path, "/")
	if idx < 0 {
		return "", fmt.Errorf("endpoint has no path to derive status URL from")
	}
	u.Path = u.Path[:idx] + "/status/" + jobID
	return u.String(), nil
}

func (c *ASRClient) doJSON(ctx context.Context, method, rawURL string, body interface{}) (int, map[string]interface{}, error) {
	status, payload, err := doAuthedJSON(ctx, c.httpClient, method, rawURL, body, c.apiKey, false)
	if err == nil && status == http.StatusUnauthorized {
		status, payload, err = doAuthedJSON(ctx, c.httpClient, method, rawURL, body, c.apiKey, true)
	}
	return status, payload, err
}

func extractProviderError(payload map[string]interface{}) string {
	switch e := payload["error"].(type) {
	case string:
		return e
	case map[string]interface{}:
		if msg, ok := e["message"].(string); ok {
			return msg
		}
		return previewPayload(e)
	}
	if out, ok := payload["output"].(map[string]interface{}); ok {
		if e, ok := out["error"].(string); ok {
			return e
		}
	}
	return ""
}

func extractTranscript(out interface{}) string {
	switch t := out.(type) {
	case string:
		return t
	case map[string]interface{}:
		for _, key := range []string{"transcription", "transcript", "text"} {
			if s, ok := t[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
