package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	chatModel        = openai.ChatModelGPT4_1Mini
	defaultLlamaURL  = "https://api.llama.com/v1"
	defaultLlamaName = "Llama-4-Maverick-17B-128E-Instruct-FP8"
)

// OpenAIProvider implements Provider using an OpenAI-compatible chat
// completions API. The Llama API speaks the same protocol, so NewLlamaProvider
// returns the same type pointed at a different base URL and model.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	meter  usageMeter
}

func NewOpenAIProvider(apiKey string, pricing RequestPricing) *OpenAIProvider {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{
		client: &client,
		model:  chatModel,
		meter:  usageMeter{pricing: pricing},
	}
}

// NewLlamaProvider creates a provider for the Llama API, which exposes an
// OpenAI-compatible chat completions endpoint.
func NewLlamaProvider(apiKey, baseURL, model string, pricing RequestPricing) *OpenAIProvider {
	if baseURL == "" {
		baseURL = defaultLlamaURL
	}
	if model == "" {
		model = defaultLlamaName
	}
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(strings.TrimSuffix(baseURL, "/")),
	)
	return &OpenAIProvider{
		client: &client,
		model:  model,
		meter:  usageMeter{pricing: pricing},
	}
}

func (p *OpenAIProvider) Name() string {
	return p.model
}

func (p *OpenAIProvider) GetUsage() *Usage {
	return p.meter.snapshot()
}

func (p *OpenAIProvider) ResetUsage() {
	p.meter.reset()
}

// AnalyzeBatch sends all images as content parts of a single user message and
// decodes the returned JSON array into per-image results.
func (p *OpenAIProvider) AnalyzeBatch(ctx context.Context, reqs []ImageRequest) ([]ImageResult, error) {
	if len(reqs) == 0 {
		return nil, NewCallError(FailurePermanent, errors.New("no images in batch"))
	}

	contentParts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(reqs)+1)
	contentParts = append(contentParts, openai.TextContentPart(buildBatchPrompt(reqs)))
	for _, req := range reqs {
		imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(req.Payload)
		contentParts = append(contentParts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL:    imageURL,
			Detail: "low",
		}))
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfArrayOfContentParts: contentParts,
				},
			},
		},
	}

	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: messages,
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, FromHTTPStatus(apiErr.StatusCode, apiErr.Message)
		}
		return nil, Classify(fmt.Errorf("chat API error: %w", err))
	}

	p.meter.add(int(completion.Usage.PromptTokens), int(completion.Usage.CompletionTokens))

	if len(completion.Choices) == 0 {
		return nil, NewCallError(FailureServer, errors.New("no choices in response"))
	}

	content := completion.Choices[0].Message.Content
	if content == "" {
		return nil, NewCallError(FailureServer, errors.New("empty response content"))
	}

	results, err := parseBatchContent(content, reqs)
	if err != nil {
		return nil, NewCallError(FailureServer, err)
	}
	return results, nil
}
