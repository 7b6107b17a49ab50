package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "gemma3:4b"
)

type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
	meter   usageMeter
}

func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
	}
}

func (p *OllamaProvider) Name() string {
	return p.model
}

func (p *OllamaProvider) GetUsage() *Usage {
	return p.meter.snapshot()
}

func (p *OllamaProvider) ResetUsage() {
	p.meter.reset()
}

// ollamaRequest represents a request to the Ollama chat API.
type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // base64 encoded images
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

// ollamaResponse represents a response from the Ollama chat API.
type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

// AnalyzeBatch attaches all images to a single chat message and decodes the
// returned JSON array into per-image results.
func (p *OllamaProvider) AnalyzeBatch(ctx context.Context, reqs []ImageRequest) ([]ImageResult, error) {
	if len(reqs) == 0 {
		return nil, NewCallError(FailurePermanent, errors.New("no images in batch"))
	}

	images := make([]string, len(reqs))
	for i, req := range reqs {
		images[i] = base64.StdEncoding.EncodeToString(req.Payload)
	}

	messages := []ollamaMessage{
		{
			Role:    "user",
			Content: buildBatchPrompt(reqs),
			Images:  images,
		},
	}

	resp, err := p.sendRequest(ctx, messages, len(reqs))
	if err != nil {
		return nil, err
	}

	// Ollama is free, but we track tokens for stats.
	p.meter.add(resp.PromptEvalCount, resp.EvalCount)

	results, err := parseBatchContent(resp.Message.Content, reqs)
	if err != nil {
		return nil, NewCallError(FailureServer, err)
	}
	return results, nil
}

func (p *OllamaProvider) sendRequest(ctx context.Context, messages []ollamaMessage, imageCount int) (*ollamaResponse, error) {
	reqBody := ollamaRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   false,
		Format:   "json",
		Options: ollamaOptions{
			NumPredict: 500 * imageCount,
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, NewCallError(FailurePermanent, fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, NewCallError(FailurePermanent, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, Classify(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Classify(fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, FromHTTPStatus(resp.StatusCode, string(body))
	}

	var ollamaResp ollamaResponse
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		return nil, NewCallError(FailureServer, fmt.Errorf("failed to parse response: %w", err))
	}

	return &ollamaResp, nil
}
