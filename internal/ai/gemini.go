package ai

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash"

type GeminiProvider struct {
	client *genai.Client
	meter  usageMeter
}

func NewGeminiProvider(ctx context.Context, apiKey string, pricing RequestPricing) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		meter:  usageMeter{pricing: pricing},
	}, nil
}

func (p *GeminiProvider) Name() string {
	return geminiModel
}

func (p *GeminiProvider) GetUsage() *Usage {
	return p.meter.snapshot()
}

func (p *GeminiProvider) ResetUsage() {
	p.meter.reset()
}

// AnalyzeBatch sends all images in a single generate call and decodes the
// returned JSON array into per-image results.
func (p *GeminiProvider) AnalyzeBatch(ctx context.Context, reqs []ImageRequest) ([]ImageResult, error) {
	if len(reqs) == 0 {
		return nil, NewCallError(FailurePermanent, errors.New("no images in batch"))
	}

	parts := []*genai.Part{
		{Text: buildBatchPrompt(reqs)},
	}
	for _, req := range reqs {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{Data: req.Payload, MIMEType: "image/jpeg"},
		})
	}

	contents := []*genai.Content{
		{Role: "user", Parts: parts},
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	result, err := p.client.Models.GenerateContent(ctx, geminiModel, contents, config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, FromHTTPStatus(apiErr.Code, apiErr.Message)
		}
		return nil, Classify(fmt.Errorf("gemini API error: %w", err))
	}

	if result.UsageMetadata != nil {
		p.meter.add(int(result.UsageMetadata.PromptTokenCount), int(result.UsageMetadata.CandidatesTokenCount))
	}

	content := result.Text()
	if content == "" {
		return nil, NewCallError(FailureServer, errors.New("no response from Gemini"))
	}

	results, err := parseBatchContent(content, reqs)
	if err != nil {
		return nil, NewCallError(FailureServer, err)
	}
	return results, nil
}
