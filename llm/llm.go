// Package llm provides a Gemini HTTP client for chat completions with
// key-level and model-level fallback.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mvalenta/kiri/config"
	"github.com/mvalenta/kiri/router"
)

// Turn is one entry of an assembled prompt. Role is "system", "user", or
// "model"; the single system turn is mapped to the API's systemInstruction
// field, never into the contents array.
type Turn struct {
	Role string
	Text string
}

const (
	RoleSystem = "system"
	RoleUser   = "user"
	RoleModel  = "model"
)

// Reply is the one internal response shape. Provider response variants are
// normalized into it immediately after the network call and never leak past
// this package.
type Reply struct {
	Text string
}

type Client struct {
	cfg        *config.LLMConfig
	httpClient *http.Client
}

func New(cfg *config.LLMConfig) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		},
	}
}

func (c *Client) apiBase() string {
	if c.cfg.BaseURL != "" {
		return c.cfg.BaseURL
	}
	return "https://generativelanguage.googleapis.com"
}

// attempt is one (credential, model) pair in the fallback chain.
type attempt struct {
	key   string
	model string
}

// attempts returns the ordered fallback chain for a routed tier: the
// routed model on the primary key, pro escalation on the primary key,
// then the same sequence on the fallback key when one is configured.
// The first successful attempt short-circuits; there are no retries
// within an attempt.
func (c *Client) attempts(tier router.Tier) []attempt {
	routed := c.cfg.FlashModel
	if tier == router.Pro {
		routed = c.cfg.ProModel
	}

	var out []attempt
	for _, key := range []string{c.cfg.GeminiKey, c.cfg.FallbackKey} {
		if key == "" {
			continue
		}
		out = append(out, attempt{key: key, model: routed})
		if routed != c.cfg.ProModel {
			out = append(out, attempt{key: key, model: c.cfg.ProModel})
		}
	}
	return out
}

// Complete issues the assembled turns to the routed model tier, walking
// the fallback chain until one attempt succeeds. The returned text is
// never empty and never exceeds the configured reply limit; on total
// failure the error is a *Error carrying a canned user-facing message.
func (c *Client) Complete(ctx context.Context, turns []Turn, tier router.Tier) (string, error) {
	var lastErr error
	for _, a := range c.attempts(tier) {
		reply, err := c.generate(ctx, a.key, a.model, turns)
		if err != nil {
			slog.Warn("completion attempt failed", "model", a.model, "error", err)
			lastErr = err
			continue
		}
		text := strings.TrimSpace(reply.Text)
		if text == "" {
			// An empty reply is a reply, not a failure: escalating the
			// chain over it would burn quota for the same prompt.
			return msgEmptyReply, nil
		}
		return c.shrink(ctx, text), nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no API key configured")
	}
	return "", classify(lastErr)
}

// shrink brings an oversized reply under the configured character limit:
// first a cheaper flash call asking the model to summarize its own output,
// then sentence-boundary truncation if the summary is still too long.
func (c *Client) shrink(ctx context.Context, text string) string {
	limit := c.cfg.ReplyCharLimit
	if limit <= 0 || len(text) <= limit {
		return text
	}

	prompt := fmt.Sprintf(
		"Rewrite the following message so it is under %d characters while keeping "+
			"all key information and the original tone. Reply with the rewritten "+
			"message only.\n\n%s", limit-100, text)
	reply, err := c.generate(ctx, c.cfg.GeminiKey, c.cfg.FlashModel,
		[]Turn{{Role: RoleUser, Text: prompt}})
	if err != nil {
		slog.Warn("summarize-down call failed, truncating instead", "error", err)
		return truncateAtSentence(text, limit)
	}
	short := strings.TrimSpace(reply.Text)
	if short == "" || len(short) > limit {
		return truncateAtSentence(text, limit)
	}
	return short
}

// truncateAtSentence cuts s to at most limit bytes, preferring the last
// sentence boundary in the allowed range and falling back to a hard cut.
func truncateAtSentence(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	const ellipsis = " …"
	cut := s[:limit-len(ellipsis)]
	best := -1
	for _, sep := range []string{". ", "! ", "? ", "\n"} {
		if i := strings.LastIndex(cut, sep); i > best {
			best = i + len(sep) - 1
		}
	}
	// Only honor a boundary that keeps a useful amount of text.
	if best > limit/2 {
		return strings.TrimSpace(cut[:best+1])
	}
	return cut + ellipsis
}

// geminiRequest is the generateContent payload.
type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// geminiResponse covers both response shapes seen in the wild: the
// candidates tree and a bare top-level text field.
type geminiResponse struct {
	Text       string `json:"text"`
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// generate performs one generateContent call and normalizes the response.
// A failed call is final for this attempt: no retry, no backoff.
func (c *Client) generate(ctx context.Context, key, model string, turns []Turn) (Reply, error) {
	reqBody := geminiRequest{
		GenerationConfig: geminiGenConfig{
			Temperature:     c.cfg.Temperature,
			TopP:            c.cfg.TopP,
			TopK:            c.cfg.TopK,
			MaxOutputTokens: c.cfg.MaxOutputTokens,
		},
	}
	for _, t := range turns {
		if t.Role == RoleSystem {
			reqBody.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: t.Text}}}
			continue
		}
		reqBody.Contents = append(reqBody.Contents, geminiContent{
			Role:  t.Role,
			Parts: []geminiPart{{Text: t.Text}},
		})
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return Reply{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.apiBase(), model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return Reply{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Reply{}, fmt.Errorf("call model API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Reply{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Reply{}, fmt.Errorf("decode response: %w", err)
	}
	return normalize(result)
}

// normalize collapses the provider response variants into Reply.
func normalize(r geminiResponse) (Reply, error) {
	if r.Text != "" {
		return Reply{Text: r.Text}, nil
	}
	if len(r.Candidates) == 0 {
		if r.PromptFeedback.BlockReason != "" {
			return Reply{}, fmt.Errorf("prompt blocked by safety filter: %s", r.PromptFeedback.BlockReason)
		}
		return Reply{}, fmt.Errorf("no candidates in response")
	}
	cand := r.Candidates[0]
	if cand.FinishReason == "SAFETY" {
		return Reply{}, fmt.Errorf("response blocked by safety filter")
	}
	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		sb.WriteString(p.Text)
	}
	return Reply{Text: sb.String()}, nil
}
