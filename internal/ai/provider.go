package ai

import "context"

// ImageAnalysis contains the AI's curation analysis of a single photo.
// Scores are on a 0-10 scale.
type ImageAnalysis struct {
	TechnicalScore  float64  `json:"technical_score"`
	VisualAppeal    float64  `json:"visual_appeal"`
	EngagementScore float64  `json:"engagement_score"`
	Uniqueness      float64  `json:"uniqueness"`
	StoryPotential  float64  `json:"story_potential"`
	Category        string   `json:"category"`
	Mood            string   `json:"mood"`
	Description     string   `json:"description"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	HashtagFocus    string   `json:"hashtag_focus"`
}

// ImageRequest is one prepared image in an outbound batch.
type ImageRequest struct {
	Key     string // identity key of the photo (stable across runs)
	Name    string // base filename, included in the prompt for context
	Payload []byte // resized JPEG bytes
}

// ImageResult is the per-image outcome of a batch call. Err is a *CallError
// when the provider returned something unusable for this image even though
// the call as a whole succeeded.
type ImageResult struct {
	Key      string
	Analysis *ImageAnalysis
	Err      error
}

// Provider defines the interface for vision AI backends. AnalyzeBatch sends
// all images in one outbound request and returns per-image results in request
// order, or a typed *CallError when the whole call failed.
type Provider interface {
	Name() string
	AnalyzeBatch(ctx context.Context, reqs []ImageRequest) ([]ImageResult, error)

	// Usage tracking.
	GetUsage() *Usage
	ResetUsage()
}

// Usage tracks token usage and calculates cost.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalCost    float64 // in USD
}

// RequestPricing holds input/output prices per 1M tokens.
type RequestPricing struct {
	Input  float64
	Output float64
}
