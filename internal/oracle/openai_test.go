package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/greenproof/fleetscore/internal/criteria"
)

func newMockOracleServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", r.Header.Get("Authorization"))
		}
		resp := openai.ChatCompletionResponse{
			ID:    "chatcmpl-1",
			Model: "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: "assistant", Content: content}},
			},
			Usage: openai.Usage{TotalTokens: 321},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestClientAnalyzeReturnsPayload(t *testing.T) {
	payload := `{"cng_fleet":{"criteria_found":true,"score":1,"confidence":90,"quote":"Acme runs 40 CNG trucks.","justification":"Direct statement."}}`
	server := newMockOracleServer(t, payload)
	defer server.Close()

	c, err := NewClient(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5 * time.Second}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	res, err := c.Analyze(context.Background(), Request{
		Entity:    "Acme Logistics",
		SourceURL: "https://acmelogistics.com/fleet",
		Text:      "Acme runs 40 CNG trucks.",
		Criteria:  []criteria.ID{criteria.CNGFleet},
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if string(res.Payload) != payload {
		t.Fatalf("unexpected payload: %s", res.Payload)
	}
	if res.TokensUsed != 321 {
		t.Fatalf("unexpected token count: %d", res.TokensUsed)
	}
}

func TestClientAnalyzeStripsCodeFences(t *testing.T) {
	server := newMockOracleServer(t, "```json\n{\"a\":1}\n```")
	defer server.Close()

	c, err := NewClient(Config{APIKey: "test-key", BaseURL: server.URL}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	res, err := c.Analyze(context.Background(), Request{
		Entity: "Acme", SourceURL: "u", Text: "text",
		Criteria: []criteria.ID{criteria.TotalTruckFleetSize},
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if string(res.Payload) != `{"a":1}` {
		t.Fatalf("fences not stripped: %q", res.Payload)
	}
}

func TestClientAnalyzeAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "boom", "type": "server_error"}}`))
	}))
	defer server.Close()

	c, err := NewClient(Config{APIKey: "test-key", BaseURL: server.URL}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = c.Analyze(context.Background(), Request{
		Entity: "Acme", SourceURL: "u", Text: "text",
		Criteria: []criteria.ID{criteria.TotalTruckFleetSize},
	})
	if err == nil {
		t.Fatal("expected error from api failure")
	}
}

func TestClientAnalyzeValidatesInput(t *testing.T) {
	c, err := NewClient(Config{APIKey: "test-key"}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.Analyze(context.Background(), Request{Entity: "Acme", Criteria: []criteria.ID{criteria.TotalTruckFleetSize}}); err == nil {
		t.Fatal("expected error for empty text")
	}
	if _, err := c.Analyze(context.Background(), Request{Entity: "Acme", Text: "text"}); err == nil {
		t.Fatal("expected error for no criteria")
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(Config{}, nil); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestBuildPromptNamesCriteriaAndContract(t *testing.T) {
	req := Request{
		Entity:    "Acme Logistics",
		SourceURL: "https://acmelogistics.com/sustainability",
		Text:      "Body text here.",
		Criteria:  []criteria.ID{criteria.TotalTruckFleetSize, criteria.CNGFleetSize},
	}
	prompt := BuildPrompt(req)

	for _, want := range []string{
		"Acme Logistics",
		string(criteria.TotalTruckFleetSize),
		string(criteria.CNGFleetSize),
		`"criteria_found"`,
		`"quote"`,
		"Body text here.",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, string(criteria.EmissionReporting)) {
		t.Fatal("prompt must only name requested criteria")
	}
}
