package runpod

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Reason classifies why a call failed. Everything except NOT_CONFIGURED is
// retryable by the caller; the client itself never retries across requests
// beyond the 401 and response-format repairs.
type Reason string

const (
	ReasonNotConfigured   Reason = "NOT_CONFIGURED"
	ReasonHTTPError       Reason = "HTTP_ERROR"
	ReasonStatusHTTPError Reason = "STATUS_HTTP_ERROR"
	ReasonJobFailed       Reason = "JOB_FAILED"
	ReasonTimeout         Reason = "TIMEOUT"
	ReasonEmptyOutput     Reason = "EMPTY_OUTPUT"
	ReasonException       Reason = "EXCEPTION"
)

type CallError struct {
	Reason     Reason
	HTTPStatus int
	JobID      string
	LastStatus string
	Message    string
}

func (e *CallError) Error() string {
	var b strings.Builder
	b.WriteString("runpod: ")
	b.WriteString(string(e.Reason))
	if e.HTTPStatus != 0 {
		fmt.Fprintf(&b, " (http %d)", e.HTTPStatus)
	}
	if e.LastStatus != "" {
		fmt.Fprintf(&b, " (last status %s)", e.LastStatus)
	}
	if e.JobID != "" {
		fmt.Fprintf(&b, " (job %s)", e.JobID)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

type CallOptions struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
	Stop        []string

	// GuidedJSON is a JSON schema constraining decoding (the job-queue
	// protocol's best-effort guided_json field).
	GuidedJSON json.RawMessage

	// ResponseFormat is an OpenAI-style response_format descriptor. When nil
	// and GuidedJSON is set, one is derived for the chat path.
	ResponseFormat json.RawMessage

	// ExtraBody is merged into the job-queue input object as-is.
	ExtraBody map[string]interface{}

	// Timeout bounds the whole call including polling. Zero means the
	// client default; values under the floor are raised to it.
	Timeout time.Duration
}

const (
	defaultCallTimeout = 120 * time.Second
	defaultPollEvery   = 1500 * time.Millisecond
)

// MinCallTimeout is the floor any call timeout is raised to; serverless cold
// starts alone can eat several seconds. Callers working against a wall-clock
// budget must not start a call with less than this remaining, because the
// raise means the call may run the full floor regardless of what they asked
// for.
const MinCallTimeout = 15 * time.Second

// Client speaks to a RunPod serverless LLM endpoint over either the generic
// job-queue protocol (submit/poll) or the OpenAI-compatible chat protocol,
// normalizing both into a single content-or-CallError result.
type Client struct {
	endpoint     string
	apiKey       string
	model        string
	pollInterval time.Duration
	callTimeout  time.Duration
	httpClient   *http.Client

	mu          sync.Mutex
	servedModel string // discovered fully qualified model id, cached per process
	rawAuth     bool   // remembered auth-header format after a 401 repair
}

func NewClient(endpoint, apiKey, model string, pollInterval, callTimeout time.Duration) *Client {
	if pollInterval <= 0 {
		pollInterval = defaultPollEvery
	}
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &Client{
		endpoint:     strings.TrimRight(endpoint, "/"),
		apiKey:       apiKey,
		model:        model,
		pollInterval: pollInterval,
		callTimeout:  callTimeout,
		// Per-call deadlines come from contexts; a fixed transport timeout
		// would preempt long synchronous runs.
		httpClient: &http.Client{},
	}
}

// Configured reports whether the client can attempt any outbound call.
func (c *Client) Configured() bool {
	return c != nil && c.endpoint != "" && c.apiKey != ""
}

// Call sends a conversation and returns the model's text output. A nil error
// guarantees non-empty content; a non-nil error is always a *CallError.
func (c *Client) Call(ctx context.Context, messages []Message, opts CallOptions) (string, error) {
	if !c.Configured() {
		return "", &CallError{Reason: ReasonNotConfigured, Message: "RUNPOD_LLM_ENDPOINT or RUNPOD_API_KEY is not set"}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.callTimeout
	}
	if timeout < MinCallTimeout {
		timeout = MinCallTimeout
	}
	deadline := time.Now().Add(timeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	wantsStructured := opts.GuidedJSON != nil || opts.ResponseFormat != nil

	// The async /run path queues well but honors guided_json only as a hint.
	// When the caller needs structured output and an OpenAI-compatible base
	// can be derived from the same endpoint, prefer the sync chat path and
	// fall back to the queue on failure.
	if wantsStructured && strings.HasSuffix(c.endpoint, "/run") {
		base := strings.TrimSuffix(c.endpoint, "/run") + "/openai/v1"
		content, err := c.callChat(ctx, deadline, base, messages, opts)
		if err == nil {
			return content, nil
		}
		var ce *CallError
		if errors.As(err, &ce) && ce.Reason == ReasonNotConfigured {
			return "", err
		}
	}

	return c.callQueue(ctx, deadline, messages, opts)
}

// ---- job-queue protocol ----

func (c *Client) callQueue(ctx context.Context, deadline time.Time, messages []Message, opts CallOptions) (string, error) {
	input := map[string]interface{}{
		"model":       c.model,
		"messages":    messages,
		"max_tokens":  opts.MaxTokens,
		"temperature": opts.Temperature,
	}
	if opts.TopP > 0 {
		input["top_p"] = opts.TopP
	}
	if len(opts.Stop) > 0 {
		input["stop"] = opts.Stop
	}
	if opts.GuidedJSON != nil {
		input["guided_json"] = opts.GuidedJSON
	}
	for k, v := range opts.ExtraBody {
		input[k] = v
	}

	status, payload, err := c.doJSON(ctx, http.MethodPost, c.endpoint, map[string]interface{}{"input": input})
	if err != nil {
		return "", &CallError{Reason: ReasonException, Message: err.Error()}
	}
	if status < 200 || status >= 300 {
		return "", &CallError{Reason: ReasonHTTPError, HTTPStatus: status, Message: previewPayload(payload)}
	}

	// Synchronous shape: output present immediately.
	if out, ok := payload["output"]; ok && out != nil {
		return c.finishOutput(out, "")
	}

	jobID, _ := payload["id"].(string)
	if jobID == "" {
		return "", &CallError{Reason: ReasonEmptyOutput, Message: "submit response had neither output nor id"}
	}

	statusURL, err := c.statusURL(jobID)
	if err != nil {
		return "", &CallError{Reason: ReasonException, JobID: jobID, Message: err.Error()}
	}

	var lastHTTP int
	last, payload, timedOut, err := pollUntil(ctx, c.pollInterval, deadline,
		func(ctx context.Context) (string, map[string]interface{}, error) {
			code, p, ferr := c.doJSON(ctx, http.MethodGet, statusURL, nil)
			if ferr != nil {
				return "", nil, ferr
			}
			lastHTTP = code
			if code < 200 || code >= 300 {
				return "", p, fmt.Errorf("status endpoint returned %d", code)
			}
			s, _ := p["status"].(string)
			return s, p, nil
		},
		func(s string) bool { return s == "COMPLETED" },
		func(s string) bool { return s == "FAILED" || s == "CANCELLED" },
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", &CallError{Reason: ReasonTimeout, JobID: jobID, LastStatus: last, Message: ctx.Err().Error()}
		}
		return "", &CallError{Reason: ReasonStatusHTTPError, HTTPStatus: lastHTTP, JobID: jobID, Message: err.Error()}
	}
	if timedOut {
		// lastStatus matters downstream: IN_QUEUE means capacity backlog,
		// IN_PROGRESS means a stalled run.
		return "", &CallError{Reason: ReasonTimeout, JobID: jobID, LastStatus: last}
	}
	if last != "COMPLETED" {
		return "", &CallError{Reason: ReasonJobFailed, JobID: jobID, LastStatus: last, Message: previewPayload(payload)}
	}

	return c.finishOutput(payload["output"], jobID)
}

func (c *Client) statusURL(jobID string) (string, error) {
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

func (c *Client) finishOutput(out interface{}, jobID string) (string, error) {
	text := StripThink(ExtractOutputText(out))
	if strings.TrimSpace(text) == "" {
		return "", &CallError{Reason: ReasonEmptyOutput, JobID: jobID}
	}
	return text, nil
}

// ---- OpenAI-compatible protocol ----

func (c *Client) callChat(ctx context.Context, deadline time.Time, base string, messages []Message, opts CallOptions) (string, error) {
	responseFormat := opts.ResponseFormat
	if responseFormat == nil && opts.GuidedJSON != nil {
		wrapped, _ := json.Marshal(map[string]interface{}{
			"type": "json_schema",
			"json_schema": map[string]interface{}{
				"name":   "result",
				"schema": json.RawMessage(opts.GuidedJSON),
			},
		})
		responseFormat = wrapped
	}

	body := func(model string, withFormat bool) map[string]interface{} {
		b := map[string]interface{}{
			"model":       model,
			"messages":    messages,
			"max_tokens":  opts.MaxTokens,
			"temperature": opts.Temperature,
		}
		if opts.TopP > 0 {
			b["top_p"] = opts.TopP
		}
		if len(opts.Stop) > 0 {
			b["stop"] = opts.Stop
		}
		if withFormat && responseFormat != nil {
			b["response_format"] = responseFormat
		}
		return b
	}

	model := c.model
	c.mu.Lock()
	if c.servedModel != "" {
		model = c.servedModel
	}
	c.mu.Unlock()

	chatURL := base + "/chat/completions"
	status, payload, err := c.doJSON(ctx, http.MethodPost, chatURL, body(model, true))
	if err != nil {
		return "", &CallError{Reason: ReasonException, Message: err.Error()}
	}

	// Some deployments expose the compatible server under a different
	// prefix; 404/405 means the path, not the request, was wrong.
	if status == http.StatusNotFound || status == http.StatusMethodNotAllowed {
		if alt := c.altChatBase(); alt != "" && alt != base {
			return c.callChat(ctx, deadline, alt, messages, opts)
		}
	}

	if (status == http.StatusBadRequest || status >= 500) && responseFormat != nil {
		// Repair (a): the deployment may require its fully qualified served
		// model id rather than an alias.
		if discovered := c.discoverServedModel(ctx, base); discovered != "" && discovered != model {
			status, payload, err = c.doJSON(ctx, http.MethodPost, chatURL, body(discovered, true))
			if err != nil {
				return "", &CallError{Reason: ReasonException, Message: err.Error()}
			}
			model = discovered
		}
		// Repair (b): drop the response_format entirely.
		if status == http.StatusBadRequest || status >= 500 {
			status, payload, err = c.doJSON(ctx, http.MethodPost, chatURL, body(model, false))
			if err != nil {
				return "", &CallError{Reason: ReasonException, Message: err.Error()}
			}
		}
	}

	if status < 200 || status >= 300 {
		return "", &CallError{Reason: ReasonHTTPError, HTTPStatus: status, Message: previewPayload(payload)}
	}

	return c.finishOutput(payload, "")
}

func (c *Client) altChatBase() string {
	if strings.HasSuffix(c.endpoint, "/run") {
		return strings.TrimSuffix(c.endpoint, "/run") + "/v1"
	}
	return ""
}

func (c *Client) discoverServedModel(ctx context.Context, base string) string {
	status, payload, err := c.doJSON(ctx, http.MethodGet, base+"/models", nil)
	if err != nil || status < 200 || status >= 300 {
		return ""
	}
	data, _ := payload["data"].([]interface{})
	if len(data) == 0 {
		return ""
	}
	first, _ := data[0].(map[string]interface{})
	id, _ := first["id"].(string)
	if id != "" {
		c.mu.Lock()
		c.servedModel = id
		c.mu.Unlock()
	}
	return id
}

// ---- transport ----

// doJSON issues one request with bearer auth. On 401 it retries exactly once
// with the alternate header formatting (raw key vs "Bearer "-prefixed) to
// tolerate operator misconfiguration, remembering whichever form succeeded.
func (c *Client) doJSON(ctx context.Context, method, rawURL string, body interface{}) (int, map[string]interface{}, error) {
	c.mu.Lock()
	raw := c.rawAuth
	c.mu.Unlock()

	status, payload, err := doAuthedJSON(ctx, c.httpClient, method, rawURL, body, c.apiKey, raw)
	if err == nil && status == http.StatusUnauthorized {
		status, payload, err = doAuthedJSON(ctx, c.httpClient, method, rawURL, body, c.apiKey, !raw)
		if err == nil && status != http.StatusUnauthorized {
			c.mu.Lock()
			c.rawAuth = !raw
			c.mu.Unlock()
		}
	}
	return status, payload, err
}

func doAuthedJSON(ctx context.Context, client *http.Client, method, rawURL string, body interface{}, apiKey string, rawAuth bool) (int, map[string]interface{}, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, rdr)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authHeader(apiKey, rawAuth))

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16*1024*1024))
	if err != nil {
		return resp.StatusCode, nil, err
	}

	payload := map[string]interface{}{}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			// Non-JSON bodies still matter for error previews.
			payload = map[string]interface{}{"raw": string(data)}
		}
	}
	return resp.StatusCode, payload, nil
}

func authHeader(apiKey string, raw bool) string {
	trimmed := strings.TrimPrefix(apiKey, "Bearer ")
	if raw {
		return trimmed
	}
	return "Bearer " + trimmed
}

func previewPayload(payload map[string]interface{}) string {
	if payload == nil {
		return ""
	}
	data, _ := json.Marshal(payload)
	const max = 400
	s := string(data)
	if len(s) > max {
		s = s[:max]
	}
	return s
}

// ---- output extraction ----

// ExtractOutputText probes a provider payload through the known candidate
// field shapes and returns the first string-typed hit. RunPod workers and
// vLLM deployments disagree on where generated text lives.
func ExtractOutputText(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []interface{}:
		var parts []string
		for _, item := range t {
			if s := ExtractOutputText(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "")
	case map[string]interface{}:
		if choices, ok := t["choices"].([]interface{}); ok && len(choices) > 0 {
			if choice, ok := choices[0].(map[string]interface{}); ok {
				if msg, ok := choice["message"].(map[string]interface{}); ok {
					if s, ok := msg["content"].(string); ok && s != "" {
						return s
					}
				}
				if s, ok := choice["text"].(string); ok && s != "" {
					return s
				}
				if tokens, ok := choice["tokens"].([]interface{}); ok {
					var b strings.Builder
					for _, tok := range tokens {
						if s, ok := tok.(string); ok {
							b.WriteString(s)
						}
					}
					if b.Len() > 0 {
						return b.String()
					}
				}
			}
		}
		for _, key := range []string{"output_text", "generated_text", "text"} {
			if s, ok := t[key].(string); ok && s != "" {
				return s
			}
		}
		if out, ok := t["output"]; ok {
			return ExtractOutputText(out)
		}
		return ""
	default:
		return ""
	}
}

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThink removes inline chain-of-thought. Some models emit their
// reasoning in <think> markers, which corrupts downstream parsing.
func StripThink(s string) string {
	s = thinkBlock.ReplaceAllString(s, "")
	if idx := strings.LastIndex(s, "</think>"); idx >= 0 {
		s = s[idx+len("</think>"):]
	}
	if idx := strings.Index(s, "<think>"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
