package runpod

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestCall_NotConfigured(t *testing.T) {
	c := NewClient("", "", "default", 0, 0)
	_, err := c.Call(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, CallOptions{})

	var ce *CallError
	if !errors.As(err, &ce) || ce.Reason != ReasonNotConfigured {
		t.Fatalf("got %v, want %s", err, ReasonNotConfigured)
	}
}

func TestCall_SynchronousOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"output": map[string]interface{}{
				"choices": []interface{}{
					map[string]interface{}{
						"message": map[string]interface{}{"content": "hello from the model"},
					},
				},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/v2/ep/runsync", "key", "default", 10*time.Millisecond, 0)
	got, err := c.Call(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, CallOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello from the model" {
		t.Errorf("got %q", got)
	}
}

func TestCall_PollsToCompletion(t *testing.T) {
	var polls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/ep/run", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "job-1", "status": "IN_QUEUE"})
	})
	mux.HandleFunc("/v2/ep/status/job-1", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&polls, 1) < 3 {
			json.NewEncoder(w).Encode(map[string]interface{}{"status": "IN_PROGRESS"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "COMPLETED",
			"output": "final transcript text",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL+"/v2/ep/run", "key", "default", 5*time.Millisecond, 0)
	got, err := c.Call(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, CallOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "final transcript text" {
		t.Errorf("got %q", got)
	}
	if atomic.LoadInt32(&polls) < 3 {
		t.Errorf("expected at least 3 polls, got %d", polls)
	}
}

func TestCall_JobFailed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/ep/run", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "job-2"})
	})
	mux.HandleFunc("/v2/ep/status/job-2", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "FAILED", "error": "worker crashed"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL+"/v2/ep/run", "key", "default", 5*time.Millisecond, 0)
	_, err := c.Call(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, CallOptions{})

	var ce *CallError
	if !errors.As(err, &ce) || ce.Reason != ReasonJobFailed {
		t.Fatalf("got %v, want %s", err, ReasonJobFailed)
	}
	if ce.JobID != "job-2" || ce.LastStatus != "FAILED" {
		t.Errorf("error missing job context: %+v", ce)
	}
}

func TestCall_AuthHeaderFallback(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		// This deployment wants the bare key, not "Bearer <key>".
		if r.Header.Get("Authorization") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"output": "authorized output"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/v2/ep/runsync", "secret", "default", 10*time.Millisecond, 0)
	got, err := c.Call(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, CallOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "authorized output" {
		t.Errorf("got %q", got)
	}
	if atomic.LoadInt32(&requests) != 2 {
		t.Errorf("expected exactly 2 requests (401 then retry), got %d", requests)
	}
}

func TestCall_EmptyOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"output": "   "})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/v2/ep/runsync", "key", "default", 10*time.Millisecond, 0)
	_, err := c.Call(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, CallOptions{})

	var ce *CallError
	if !errors.As(err, &ce) || ce.Reason != ReasonEmptyOutput {
		t.Fatalf("got %v, want %s", err, ReasonEmptyOutput)
	}
}

func TestCall_StructuredFallsBackToQueue(t *testing.T) {
	// Neither OpenAI-compatible prefix exists on this deployment; the guided
	// call must land on the queue path and still succeed.
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/ep/openai/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/v2/ep/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/v2/ep/run", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		input, _ := body["input"].(map[string]interface{})
		if input["guided_json"] == nil {
			t.Error("queue request lost the guided_json field")
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"output": `[{"question":"q"}]`})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL+"/v2/ep/run", "key", "default", 5*time.Millisecond, 0)
	got, err := c.Call(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, CallOptions{
		GuidedJSON: json.RawMessage(`{"type":"array"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "question") {
		t.Errorf("got %q", got)
	}
}

func TestStatusURL(t *testing.T) {
	c := NewClient("https://api.example.com/v2/abc/run", "key", "m", 0, 0)
	got, err := c.statusURL("job-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://api.example.com/v2/abc/status/job-9" {
		t.Errorf("got %q", got)
	}
}

func TestExtractOutputText(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{"plain string", "hello", "hello"},
		{"chat choices", map[string]interface{}{
			"choices": []interface{}{
				map[string]interface{}{"message": map[string]interface{}{"content": "chat content"}},
			},
		}, "chat content"},
		{"completion text", map[string]interface{}{
			"choices": []interface{}{map[string]interface{}{"text": "completion"}},
		}, "completion"},
		{"token list", map[string]interface{}{
			"choices": []interface{}{
				map[string]interface{}{"tokens": []interface{}{"a", "b", "c"}},
			},
		}, "abc"},
		{"generated_text field", map[string]interface{}{"generated_text": "generated"}, "generated"},
		{"nested output", map[string]interface{}{
			"output": map[string]interface{}{"text": "nested"},
		}, "nested"},
		{"list of parts", []interface{}{"part one ", "part two"}, "part one part two"},
		{"nil", nil, ""},
		{"number", 42, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractOutputText(tc.in); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStripThink(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"closed block", "<think>reasoning here</think>the answer", "the answer"},
		{"multiline block", "<think>line one\nline two</think>\nfinal", "final"},
		{"unclosed trailing", "useful part <think>still reasoning", "useful part"},
		{"orphan close tag", "leaked reasoning</think>real output", "real output"},
		{"no markers", "plain output", "plain output"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripThink(tc.in); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestPollUntil_DeadlineElapses(t *testing.T) {
	deadline := time.Now().Add(30 * time.Millisecond)
	last, _, timedOut, err := pollUntil(context.Background(), 5*time.Millisecond, deadline,
		func(ctx context.Context) (string, map[string]interface{}, error) {
			return "IN_QUEUE", nil, nil
		},
		func(s string) bool { return s == "COMPLETED" },
		func(s string) bool { return s == "FAILED" },
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !timedOut {
		t.Fatal("expected timedOut")
	}
	if last != "IN_QUEUE" {
		t.Errorf("last status %q, want IN_QUEUE", last)
	}
}

func TestPollUntil_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, _, err := pollUntil(ctx, time.Millisecond, time.Now().Add(time.Second),
		func(ctx context.Context) (string, map[string]interface{}, error) {
			return "IN_QUEUE", nil, nil
		},
		func(s string) bool { return false },
		func(s string) bool { return false },
	)
	if err == nil {
		t.Fatal("expected context error")
	}
}
