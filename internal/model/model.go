// Package model implements the model-backed tab classifier. It asks an
// Ollama instance for a strict-JSON categorization, repairs and validates
// the response, retries on malformed output, and falls back to the
// heuristic classifier on any persistent failure — callers never see an
// error, only a result.
package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/lotas/tabgruppen/internal/applog"
	"github.com/lotas/tabgruppen/internal/category"
	"github.com/lotas/tabgruppen/internal/heuristic"
	"github.com/lotas/tabgruppen/internal/lenientjson"
	"github.com/lotas/tabgruppen/internal/limiter"
	"github.com/lotas/tabgruppen/internal/types"
	"github.com/lotas/tabgruppen/internal/validate"
)

// DefaultRetryBudget bounds re-requests after a malformed response.
// Transport errors and unreliable responses are never retried.
const DefaultRetryBudget = 3

const (
	baseTokens     = 256
	tokensPerTab   = 16
	maxTokens      = 2048
	maxMetaPreview = 120
)

// ErrMalformed marks a response no repair rule could turn into JSON.
var ErrMalformed = errors.New("model: malformed response")

// Progress is invoked at stage boundaries during a classify call. The
// transport that carries it elsewhere is the caller's concern.
type Progress func(percent int, stage string)

// Classifier talks to one Ollama model. The zero value is not usable;
// set Host and Model.
type Classifier struct {
	Host  string // e.g. http://localhost:11434
	Model string

	// RetryBudget overrides DefaultRetryBudget when > 0.
	RetryBudget int
	// MissingThreshold overrides validate.DefaultMissingThreshold when > 0.
	MissingThreshold float64

	HTTPClient *http.Client
	OnProgress Progress
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Classify categorizes tabs with the model, falling back to pattern
// matching on failure. It never returns an error; a degraded result is
// flagged with Result.Fallback instead.
func (c *Classifier) Classify(ctx context.Context, tabs []*types.Tab, maxGroups int) *types.Result {
	if len(tabs) == 0 {
		return &types.Result{}
	}

	res, err := c.attempt(ctx, tabs, 0)
	if err != nil {
		applog.Info("classify.fallback", "reason", err.Error())
		res = heuristic.Classify(tabs, maxGroups)
		res.Fallback = true
		c.progress(100, "fallback")
		return res
	}

	res.Groups = limiter.Limit(res.Groups, maxGroups)
	c.progress(100, "done")
	return res
}

// attempt runs one request/parse/validate cycle, recursing with an
// incremented retry counter on malformed output only.
func (c *Classifier) attempt(ctx context.Context, tabs []*types.Tab, retry int) (*types.Result, error) {
	c.progress(10, "prompt")
	prompt := BuildPrompt(tabs)

	c.progress(30, "request")
	text, err := c.generate(ctx, prompt, c.tokenBudget(len(tabs), retry))
	if err != nil {
		// Transport and engine errors are not worth retrying here.
		return nil, err
	}

	c.progress(70, "parse")
	res, err := c.parse(text, tabs)
	if errors.Is(err, ErrMalformed) {
		budget := c.RetryBudget
		if budget <= 0 {
			budget = DefaultRetryBudget
		}
		if retry < budget {
			applog.Info("classify.retry", "attempt", retry+1)
			return c.attempt(ctx, tabs, retry+1)
		}
		return nil, fmt.Errorf("retries exhausted: %w", err)
	}
	if err != nil {
		return nil, err
	}

	c.progress(90, "validated")
	return res, nil
}

// BuildPrompt enumerates the tabs and demands a strict JSON mapping of tab
// ID to one of the canonical category names.
func BuildPrompt(tabs []*types.Tab) string {
	var b strings.Builder
	b.WriteString("Categorize each browser tab into exactly one of these categories: ")
	b.WriteString(strings.Join(category.Names(), ", "))
	b.WriteString(".\n\nTabs:\n")
	for _, t := range tabs {
		domain := t.Domain
		if domain == "" {
			domain = types.DomainOf(t.URL)
		}
		fmt.Fprintf(&b, "[%d] %s: %s", t.ID, domain, t.Title)
		if hint := metaHint(t.Meta); hint != "" {
			fmt.Fprintf(&b, " (%s)", hint)
		}
		b.WriteByte('\n')
	}
	b.WriteString("\nRespond with ONLY a JSON object mapping each tab ID to its category name, like {\"12\": \"Dev\", \"15\": \"News\"}. No explanation.")
	return b.String()
}

// metaHint condenses page metadata into a short parenthetical for the prompt.
func metaHint(m types.PageMetadata) string {
	var parts []string
	if m.OGType != "" {
		parts = append(parts, m.OGType)
	}
	if m.Description != "" {
		parts = append(parts, truncate(m.Description, maxMetaPreview))
	} else if m.MainHeading != "" {
		parts = append(parts, truncate(m.MainHeading, maxMetaPreview))
	}
	return strings.Join(parts, "; ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// tokenBudget scales with tab count so larger batches are not truncated,
// escalates with each retry, and stays capped.
func (c *Classifier) tokenBudget(tabCount, retry int) int {
	n := baseTokens + tokensPerTab*tabCount
	n <<= retry
	if n > maxTokens {
		n = maxTokens
	}
	return n
}

func (c *Classifier) generate(ctx context.Context, prompt string, numPredict int) (string, error) {
	reqBody := generateRequest{
		Model:  c.Model,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: 0,
			NumPredict:  numPredict,
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned HTTP %d", resp.StatusCode)
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	return result.Response, nil
}

// groupsEnvelope is the alternate response format: an object holding a
// groups array (possibly with duplicate "groups" keys, repaired upstream).
type groupsEnvelope struct {
	Groups []validate.RawGroup `json:"groups"`
}

// parse extracts JSON from the raw model text and validates it in whichever
// of the two supported formats it parses as.
func (c *Classifier) parse(text string, tabs []*types.Tab) (*types.Result, error) {
	doc, err := lenientjson.Extract(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	doc = lenientjson.MergeGroupArrays(doc)

	threshold := c.MissingThreshold
	if threshold <= 0 {
		threshold = validate.DefaultMissingThreshold
	}

	if strings.HasPrefix(doc, "[") {
		var raw []validate.RawGroup
		if err := json.Unmarshal([]byte(doc), &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return validate.Groups(raw, tabs, threshold)
	}

	var env groupsEnvelope
	if err := json.Unmarshal([]byte(doc), &env); err == nil && len(env.Groups) > 0 {
		return validate.Groups(env.Groups, tabs, threshold)
	}

	var mapping map[string]string
	if err := json.Unmarshal([]byte(doc), &mapping); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return validate.Mapping(mapping, tabs, threshold)
}

func (c *Classifier) progress(percent int, stage string) {
	if c.OnProgress != nil {
		c.OnProgress(percent, stage)
	}
}
