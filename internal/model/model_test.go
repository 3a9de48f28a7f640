package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/lotas/tabgruppen/internal/types"
)

type fakeOllama struct {
	mu        sync.Mutex
	requests  []generateRequest
	responses []string
	status    int
}

func testTabs() []*types.Tab {
	return []*types.Tab{
		{ID: 1, URL: "https://github.com/lotas/tabgruppen", Title: "tabgruppen", Domain: "github.com"},
		{ID: 2, URL: "https://bbc.com/news", Title: "Breaking news", Domain: "bbc.com"},
	}
}

// newFakeOllama serves canned responses in order, repeating the last one,
// and records every decoded request body.
func newFakeOllama(t *testing.T, f *fakeOllama) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %q", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}

		f.mu.Lock()
		f.requests = append(f.requests, req)
		n := len(f.requests) - 1
		f.mu.Unlock()

		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}
		if n >= len(f.responses) {
			n = len(f.responses) - 1
		}
		json.NewEncoder(w).Encode(generateResponse{Response: f.responses[n]})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClassifyMappingFormat(t *testing.T) {
	f := &fakeOllama{responses: []string{`{"1": "Dev", "2": "News"}`}}
	srv := newFakeOllama(t, f)

	c := &Classifier{Host: srv.URL, Model: "llama3.2"}
	res := c.Classify(context.Background(), testTabs(), 8)

	if res.Fallback {
		t.Fatal("unexpected fallback")
	}
	if len(res.Groups) != 2 {
		t.Fatalf("groups = %+v", res.Groups)
	}
	if len(f.requests) != 1 {
		t.Errorf("expected 1 request, got %d", len(f.requests))
	}

	req := f.requests[0]
	if req.Model != "llama3.2" {
		t.Errorf("model = %q", req.Model)
	}
	if req.Stream {
		t.Error("stream must be off")
	}
	if req.Options.Temperature != 0 {
		t.Errorf("temperature = %v", req.Options.Temperature)
	}
	if want := baseTokens + tokensPerTab*2; req.Options.NumPredict != want {
		t.Errorf("num_predict = %d, want %d", req.Options.NumPredict, want)
	}
	if !strings.Contains(req.Prompt, "[1] github.com: tabgruppen") {
		t.Errorf("prompt missing tab line:\n%s", req.Prompt)
	}
}

func TestClassifyGroupsArrayFormat(t *testing.T) {
	f := &fakeOllama{responses: []string{`[{"name":"Dev","color":"blue","tabIds":[1]},{"name":"News","tabIds":[2]}]`}}
	srv := newFakeOllama(t, f)

	c := &Classifier{Host: srv.URL, Model: "llama3.2"}
	res := c.Classify(context.Background(), testTabs(), 8)

	if res.Fallback {
		t.Fatal("unexpected fallback")
	}
	if len(res.Groups) != 2 || res.Groups[0].Name != "Dev" || res.Groups[1].Name != "News" {
		t.Errorf("groups = %+v", res.Groups)
	}
}

func TestClassifyGroupsEnvelopeWithDuplicateKeys(t *testing.T) {
	f := &fakeOllama{responses: []string{
		`{"groups":[{"name":"Dev","tabIds":[1]}],"groups":[{"name":"News","tabIds":[2]}]}`,
	}}
	srv := newFakeOllama(t, f)

	c := &Classifier{Host: srv.URL, Model: "llama3.2"}
	res := c.Classify(context.Background(), testTabs(), 8)

	if res.Fallback {
		t.Fatal("unexpected fallback")
	}
	if len(res.Groups) != 2 {
		t.Errorf("groups = %+v", res.Groups)
	}
}

func TestClassifyRetriesMalformedThenSucceeds(t *testing.T) {
	f := &fakeOllama{responses: []string{
		"I cannot produce JSON right now.",
		`{"1": "Dev", "2": "News"}`,
	}}
	srv := newFakeOllama(t, f)

	c := &Classifier{Host: srv.URL, Model: "llama3.2"}
	res := c.Classify(context.Background(), testTabs(), 8)

	if res.Fallback {
		t.Fatal("retry should have recovered without fallback")
	}
	if len(f.requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(f.requests))
	}
	// The retry escalates the token budget.
	first := f.requests[0].Options.NumPredict
	second := f.requests[1].Options.NumPredict
	if second != first*2 {
		t.Errorf("num_predict %d then %d, want doubling", first, second)
	}
}

func TestClassifyExhaustsRetriesThenFallsBack(t *testing.T) {
	f := &fakeOllama{responses: []string{"still no JSON here"}}
	srv := newFakeOllama(t, f)

	c := &Classifier{Host: srv.URL, Model: "llama3.2", RetryBudget: 2}
	res := c.Classify(context.Background(), testTabs(), 8)

	if !res.Fallback {
		t.Fatal("expected fallback result")
	}
	if len(f.requests) != 3 {
		t.Errorf("expected 3 requests (1 + 2 retries), got %d", len(f.requests))
	}
	// The fallback still covers every tab.
	covered := 0
	for _, g := range res.Groups {
		covered += len(g.TabIDs)
	}
	if covered != 2 {
		t.Errorf("fallback covered %d of 2 tabs", covered)
	}
}

func TestClassifyServerErrorFallsBackWithoutRetry(t *testing.T) {
	f := &fakeOllama{status: http.StatusInternalServerError}
	srv := newFakeOllama(t, f)

	c := &Classifier{Host: srv.URL, Model: "llama3.2"}
	res := c.Classify(context.Background(), testTabs(), 8)

	if !res.Fallback {
		t.Fatal("expected fallback result")
	}
	if len(f.requests) != 1 {
		t.Errorf("transport errors must not retry, got %d requests", len(f.requests))
	}
}

func TestClassifyUnreachableHostFallsBack(t *testing.T) {
	c := &Classifier{Host: "http://127.0.0.1:1", Model: "llama3.2"}
	res := c.Classify(context.Background(), testTabs(), 8)
	if !res.Fallback {
		t.Fatal("expected fallback result")
	}
}

func TestClassifyUnreliableFallsBackWithoutRetry(t *testing.T) {
	// Only 1 of 5 tabs covered: over the missing threshold.
	f := &fakeOllama{responses: []string{`{"1": "Dev"}`}}
	srv := newFakeOllama(t, f)

	tabs := []*types.Tab{
		{ID: 1, URL: "https://github.com/a", Domain: "github.com"},
		{ID: 2, URL: "https://bbc.com/b", Domain: "bbc.com"},
		{ID: 3, URL: "https://example.com/c", Domain: "example.com"},
		{ID: 4, URL: "https://example.com/d", Domain: "example.com"},
		{ID: 5, URL: "https://example.com/e", Domain: "example.com"},
	}

	c := &Classifier{Host: srv.URL, Model: "llama3.2"}
	res := c.Classify(context.Background(), tabs, 8)

	if !res.Fallback {
		t.Fatal("expected fallback result")
	}
	if len(f.requests) != 1 {
		t.Errorf("unreliable responses must not retry, got %d requests", len(f.requests))
	}
}

func TestClassifyEmptyInput(t *testing.T) {
	c := &Classifier{Host: "http://127.0.0.1:1", Model: "llama3.2"}
	res := c.Classify(context.Background(), nil, 8)
	if res.Fallback || len(res.Groups) != 0 {
		t.Errorf("got %+v", res)
	}
}

func TestClassifyReportsProgress(t *testing.T) {
	f := &fakeOllama{responses: []string{`{"1": "Dev", "2": "News"}`}}
	srv := newFakeOllama(t, f)

	var stages []string
	c := &Classifier{
		Host:  srv.URL,
		Model: "llama3.2",
		OnProgress: func(percent int, stage string) {
			stages = append(stages, stage)
		},
	}
	c.Classify(context.Background(), testTabs(), 8)

	if len(stages) == 0 || stages[len(stages)-1] != "done" {
		t.Errorf("stages = %v", stages)
	}
}

func TestBuildPromptIncludesMetaHint(t *testing.T) {
	tabs := []*types.Tab{{
		ID:     7,
		URL:    "https://example.com",
		Domain: "example.com",
		Title:  "Example",
		Meta:   types.PageMetadata{OGType: "article", Description: "A worked example"},
	}}
	p := BuildPrompt(tabs)
	if !strings.Contains(p, "[7] example.com: Example (article; A worked example)") {
		t.Errorf("prompt:\n%s", p)
	}
	if !strings.Contains(p, "Dev") || !strings.Contains(p, "Other") {
		t.Error("prompt must enumerate the category vocabulary")
	}
}
