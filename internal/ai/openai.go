package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dhruvparmar372/ossgard-sub002/internal/config"
)

const (
	defaultOpenAIBase       = "https://api.openai.com/v1"
	defaultOpenAIModel      = "gpt-4o"
	defaultOpenAIEmbedModel = "text-embedding-3-small"
	openAIEmbedDims         = 1536
)

// OpenAIProvider implements ChatProvider and EmbeddingProvider using
// the OpenAI REST API.
type OpenAIProvider struct {
	apiKey     string
	model      string
	embedModel string
	baseURL    string
	client     *http.Client
}

// NewOpenAI creates an OpenAIProvider from cfg.
func NewOpenAI(cfg config.AIConfig) (*OpenAIProvider, error) {
	base := cfg.BaseURL
	if base == "" {
		base = defaultOpenAIBase
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid OpenAI base URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("invalid OpenAI base URL scheme %q", u.Scheme)
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	embedModel := cfg.EmbedModel
	if embedModel == "" {
		embedModel = defaultOpenAIEmbedModel
	}
	return &OpenAIProvider{
		apiKey:     cfg.OpenAIKey,
		model:      model,
		embedModel: embedModel,
		baseURL:    strings.TrimRight(base, "/"),
		client:     &http.Client{Timeout: 120 * time.Second},
	}, nil
}

func (o *OpenAIProvider) Name() string { return "openai" }

func (o *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	// Probe the models endpoint.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (o *OpenAIProvider) Dimensions() int { return openAIEmbedDims }

// --- Chat ---

type openAIRequest struct {
	Model               string      `json:"model"`
	Messages            []openAIMsg `json:"messages"`
	MaxTokens           int         `json:"max_tokens,omitempty"`
	MaxCompletionTokens int         `json:"max_completion_tokens,omitempty"`
}

type openAIMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Chat sends a completion request, retrying on 429 with the delay the
// API asks for.
func (o *OpenAIProvider) Chat(ctx context.Context, system, user string, maxTokens int) (*ChatResponse, error) {
	payload := openAIRequest{
		Model: o.model,
		Messages: []openAIMsg{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	if usesMaxCompletionTokensParam(o.model) {
		payload.MaxCompletionTokens = maxTokens
	} else {
		payload.MaxTokens = maxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}

	respBody, err := o.post(ctx, "/chat/completions", body)
	if err != nil {
		return nil, err
	}

	var apiResp openAIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("parsing API response: %w", err)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("OpenAI error: %s", apiResp.Error.Message)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("OpenAI returned no choices")
	}

	return &ChatResponse{
		Text:         strings.TrimSpace(apiResp.Choices[0].Message.Content),
		InputTokens:  apiResp.Usage.PromptTokens,
		OutputTokens: apiResp.Usage.CompletionTokens,
	}, nil
}

// --- Embeddings ---

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed returns one vector per input text. The embeddings endpoint
// accepts the whole batch in one call.
func (o *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(openAIEmbedRequest{Model: o.embedModel, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshalling embed request: %w", err)
	}

	respBody, err := o.post(ctx, "/embeddings", body)
	if err != nil {
		return nil, err
	}

	var apiResp openAIEmbedResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("parsing embed response: %w", err)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("OpenAI error: %s", apiResp.Error.Message)
	}
	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("OpenAI returned %d embeddings for %d inputs", len(apiResp.Data), len(texts))
	}

	// The API documents input order but indexes defensively anyway.
	out := make([][]float32, len(texts))
	for _, d := range apiResp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("OpenAI returned embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// post issues one API call with 429 retry handling shared between chat
// and embeddings.
func (o *OpenAIProvider) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	const maxAttempts = 6
	var respBody []byte
	var respStatus int
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := o.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("calling OpenAI API: %w", err)
		}
		respStatus = resp.StatusCode
		respBody, err = io.ReadAll(resp.Body)
		closeErr := resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading response body: %w", err)
		}
		if closeErr != nil {
			slog.Debug("closing OpenAI response body", "error", closeErr)
		}

		if resp.StatusCode == http.StatusOK {
			break
		}
		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxAttempts {
			wait := openAIRetryDelay(resp.Header.Get("Retry-After"), string(respBody), attempt)
			slog.Warn("OpenAI rate limited; retrying",
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"wait", wait.String(),
				"model", o.model,
			)
			if err := sleepWithContext(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}
		break
	}

	if respStatus != http.StatusOK {
		return nil, fmt.Errorf("OpenAI API error %d: %s", respStatus, string(respBody))
	}
	return respBody, nil
}

func usesMaxCompletionTokensParam(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.Contains(m, "gpt-5"):
		return true
	case strings.Contains(m, "codex"):
		return true
	case strings.HasPrefix(m, "o1"),
		strings.HasPrefix(m, "o3"),
		strings.HasPrefix(m, "o4"):
		return true
	default:
		return false
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func openAIRetryDelay(retryAfterHeader, body string, attempt int) time.Duration {
	if ra := strings.TrimSpace(retryAfterHeader); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	bl := strings.ToLower(body)
	if idx := strings.Index(bl, "please try again in "); idx >= 0 {
		rest := bl[idx+len("please try again in "):]
		fields := strings.Fields(rest)
		if len(fields) > 0 {
			token := strings.Trim(fields[0], ".,")
			if strings.HasSuffix(token, "ms") {
				if n, err := strconv.ParseFloat(strings.TrimSuffix(token, "ms"), 64); err == nil && n > 0 {
					return time.Duration(n * float64(time.Millisecond))
				}
			}
			if strings.HasSuffix(token, "s") {
				if n, err := strconv.ParseFloat(strings.TrimSuffix(token, "s"), 64); err == nil && n > 0 {
					return time.Duration(n * float64(time.Second))
				}
			}
		}
	}
	// Exponential-ish fallback with a cap.
	d := time.Duration(attempt*attempt) * 500 * time.Millisecond
	if d > 8*time.Second {
		d = 8 * time.Second
	}
	return d
}
