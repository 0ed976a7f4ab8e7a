package vapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"receptionist-platform/internal/config"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(config.VapiConfig{APIKey: "key", BaseURL: srv.URL, Timeout: 2 * time.Second})
}

func TestClient_UnconfiguredIsUnavailable(t *testing.T) {
	c := New(config.VapiConfig{})
	if c.Configured() {
		t.Fatalf("expected unconfigured client")
	}
	if _, err := c.ListAssistants(context.Background(), 1); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClient_UpdateAssistantAlwaysSendsToolIDs(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/assistant/a1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer")
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = io.WriteString(w, `{"id":"a1","model":{"toolIds":["t1","t2"]}}`)
	})

	spec := AssistantSpec{Name: "x", Model: ModelSpec{Provider: "openai", Model: "gpt-4o-mini"}, Voice: &Voice{Provider: "azure", VoiceID: "v"}}
	out, err := c.UpdateAssistant(context.Background(), "a1", []string{"t1", "t2"}, spec)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(out.Model.ToolIDs) != 2 {
		t.Fatalf("unexpected response: %+v", out)
	}
	model, _ := body["model"].(map[string]any)
	ids, _ := model["toolIds"].([]any)
	if len(ids) != 2 || ids[0] != "t1" {
		t.Fatalf("expected toolIds in body, got %v", body)
	}

	if _, err := c.UpdateAssistant(context.Background(), "a1", nil, spec); !errors.Is(err, ErrToolIDsRequired) {
		t.Fatalf("expected ErrToolIDsRequired, got %v", err)
	}
}

func TestClient_EmptyToolListIsExplicit(t *testing.T) {
	var raw []byte
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ = io.ReadAll(r.Body)
		_, _ = io.WriteString(w, `{"id":"a1"}`)
	})
	if _, err := c.CreateAssistant(context.Background(), AssistantSpec{}, []string{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	var body struct {
		Model struct {
			ToolIDs []string `json:"toolIds"`
		} `json:"model"`
	}
	_ = json.Unmarshal(raw, &body)
	if body.Model.ToolIDs == nil {
		t.Fatalf("expected toolIds: [] in %s", raw)
	}
}

func TestClient_UpdateToolSendsFunctionOnly(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = io.WriteString(w, `{"id":"t1","type":"function"}`)
	})
	_, err := c.UpdateTool(context.Background(), "t1", FunctionUpdate{Name: "n", Description: "d", Parameters: map[string]any{"type": "object"}})
	if err != nil {
		t.Fatalf("update tool: %v", err)
	}
	if len(body) != 1 {
		t.Fatalf("expected only the function block, got %v", body)
	}
	if _, ok := body["function"]; !ok {
		t.Fatalf("expected function block, got %v", body)
	}
}

func TestClient_ErrorsNameTheOperation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"bad tool"}`)
	})
	_, err := c.CreateTool(context.Background(), ToolSpec{Type: ToolTypeFunction})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Op != "create tool" || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestClient_DeleteNotFoundIsSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	if err := c.DeleteTool(context.Background(), "gone"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := c.DeleteAssistant(context.Background(), "gone"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestClient_RetriesReadsButNotWrites(t *testing.T) {
	var gets, posts atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if gets.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = io.WriteString(w, `[{"id":"a1"}]`)
		default:
			posts.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}
	})

	list, err := c.ListAssistants(context.Background(), 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || gets.Load() != 2 {
		t.Fatalf("expected one retry, gets=%d list=%v", gets.Load(), list)
	}

	if _, err := c.CreateTool(context.Background(), ToolSpec{}); err == nil {
		t.Fatalf("expected error")
	}
	if posts.Load() != 1 {
		t.Fatalf("writes must not be retried, got %d attempts", posts.Load())
	}
}

func TestClient_ListCallsQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("assistantId") != "a1" || r.URL.Query().Get("limit") != "5" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `[{"id":"c1","status":"ended","endedReason":"customer-ended-call"}]`)
	})
	calls, err := c.ListCalls(context.Background(), ListCallsParams{AssistantID: "a1", Limit: 5})
	if err != nil {
		t.Fatalf("list calls: %v", err)
	}
	if len(calls) != 1 || calls[0].EndedReason != "customer-ended-call" {
		t.Fatalf("unexpected calls: %+v", calls)
	}
}

func TestClient_CallAndToolLookups(t *testing.T) {
	var created CallRequest
	mux := http.NewServeMux()
	mux.HandleFunc("POST /call", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&created)
		_, _ = io.WriteString(w, `{"id":"c1","assistantId":"a1","status":"queued"}`)
	})
	mux.HandleFunc("GET /call/c1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"c1","status":"ended","endedReason":"customer-did-not-answer"}`)
	})
	mux.HandleFunc("GET /tool/t1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"t1","type":"function","function":{"name":"acme__create_appointment"}}`)
	})
	mux.HandleFunc("GET /tool", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "5" {
			t.Errorf("expected limit=5, got %q", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `[{"id":"t1","type":"function"},{"id":"t2","type":"apiRequest","name":"acme__get_current_time"}]`)
	})
	c := newTestClient(t, mux.ServeHTTP)
	ctx := context.Background()

	call, err := c.CreateCall(ctx, CallRequest{AssistantID: "a1", Customer: Customer{Number: "+34600111222"}})
	if err != nil || call.ID != "c1" {
		t.Fatalf("create call: %+v %v", call, err)
	}
	if created.Customer.Number != "+34600111222" {
		t.Fatalf("unexpected request body %+v", created)
	}

	got, err := c.GetCall(ctx, "c1")
	if err != nil || got.EndedReason != "customer-did-not-answer" {
		t.Fatalf("get call: %+v %v", got, err)
	}

	tool, err := c.GetTool(ctx, "t1")
	if err != nil || tool.ToolName() != "acme__create_appointment" {
		t.Fatalf("get tool: %+v %v", tool, err)
	}
	tools, err := c.ListTools(ctx, 5)
	if err != nil || len(tools) != 2 || tools[1].ToolName() != "acme__get_current_time" {
		t.Fatalf("list tools: %+v %v", tools, err)
	}
}
