// Package organizer ranks analyzed photos, assembles post groups and
// produces the run report.
package organizer

import (
	"time"

	"photo-curator/internal/ai"
)

// Tier buckets a composite score for reporting and selection.
type Tier string

const (
	TierPremium   Tier = "premium"
	TierExcellent Tier = "excellent"
	TierGood      Tier = "good"
	TierAverage   Tier = "average"
	TierPoor      Tier = "poor"
)

// Weights of the five analysis axes in the composite score. Engagement and
// visual appeal dominate since the output feeds a social media queue.
const (
	weightTechnical  = 0.15
	weightVisual     = 0.25
	weightEngagement = 0.30
	weightUniqueness = 0.20
	weightStory      = 0.10
)

// worthyScore is the composite floor below which only tier membership can
// qualify a photo for posting.
const worthyScore = 7.0

// ScoredPhoto pairs a photo with its analysis and derived ranking.
type ScoredPhoto struct {
	Path     string
	Name     string
	TakenAt  time.Time
	Analysis *ai.ImageAnalysis
	Score    float64
	Tier     Tier
	Cached   bool
}

// CompositeScore collapses the five 0-10 analysis axes into one weighted
// score.
func CompositeScore(a *ai.ImageAnalysis) float64 {
	return a.TechnicalScore*weightTechnical +
		a.VisualAppeal*weightVisual +
		a.EngagementScore*weightEngagement +
		a.Uniqueness*weightUniqueness +
		a.StoryPotential*weightStory
}

// TierFor buckets a composite score.
func TierFor(score float64) Tier {
	switch {
	case score >= 8.5:
		return TierPremium
	case score >= 7.5:
		return TierExcellent
	case score >= 6.0:
		return TierGood
	case score >= 4.0:
		return TierAverage
	default:
		return TierPoor
	}
}

// InstagramWorthy reports whether a photo qualifies for post assembly.
func InstagramWorthy(score float64) bool {
	tier := TierFor(score)
	return tier == TierPremium || tier == TierExcellent || score >= worthyScore
}

// NewScoredPhoto derives the ranking fields from an analysis.
func NewScoredPhoto(path, name string, takenAt time.Time, a *ai.ImageAnalysis, cached bool) ScoredPhoto {
	score := CompositeScore(a)
	return ScoredPhoto{
		Path:     path,
		Name:     name,
		TakenAt:  takenAt,
		Analysis: a,
		Score:    score,
		Tier:     TierFor(score),
		Cached:   cached,
	}
}
