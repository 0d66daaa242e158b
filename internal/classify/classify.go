// Package classify maps a prediction's confidence and label membership to a
// user-facing quality tier.
package classify

import (
	"fmt"
	"strings"

	"visionctl/internal/model"
)

// Tier is the quality tier assigned to a prediction.
type Tier string

const (
	TierUnknownLabel   Tier = "unknown_label"
	TierPerfectMatch   Tier = "perfect_match"
	TierHighConfidence Tier = "high_confidence"
	TierLowConfidence  Tier = "low_confidence"
)

const (
	PerfectMatchThreshold   = 0.95
	HighConfidenceThreshold = 0.60
)

// Classify assigns a tier. The checks run in a fixed order and the first
// match wins: an unknown label outranks any confidence.
func Classify(confidence float64, predictedLabel string, known model.LabelSet) Tier {
	switch {
	case !known.Has(strings.TrimSpace(predictedLabel)):
		return TierUnknownLabel
	case confidence >= PerfectMatchThreshold:
		return TierPerfectMatch
	case confidence >= HighConfidenceThreshold:
		return TierHighConfidence
	default:
		// NaN lands here too.
		return TierLowConfidence
	}
}

// Verdict is a classified prediction with its display payload.
type Verdict struct {
	Tier        Tier                 `json:"tier" yaml:"tier"`
	Label       string               `json:"label" yaml:"label"`
	Confidence  float64              `json:"confidence" yaml:"confidence"`
	Headline    string               `json:"headline" yaml:"headline"`
	Explanation string               `json:"explanation" yaml:"explanation"`
	Matches     []model.MatchedImage `json:"matches,omitempty" yaml:"matches,omitempty"`
}

// Interpret classifies result and attaches the headline, explanation and the
// matched training images to compare against. Unknown labels carry no matches.
func Interpret(result model.PredictionResult, known model.LabelSet) Verdict {
	tier := Classify(result.Confidence, result.PredictedLabel, known)
	v := Verdict{
		Tier:       tier,
		Label:      result.PredictedLabel,
		Confidence: result.Confidence,
	}

	switch tier {
	case TierUnknownLabel:
		v.Headline = "Unknown label - not in training data"
		v.Explanation = fmt.Sprintf("%q was not found in the training data. Consider adding labeled examples for this category.", result.PredictedLabel)
		return v
	case TierPerfectMatch:
		v.Headline = "Perfect match - excellent confidence"
		v.Explanation = fmt.Sprintf("The model is extremely confident this is %q. Features match the training data closely.", result.PredictedLabel)
	case TierHighConfidence:
		v.Headline = "High confidence match with training data"
		v.Explanation = fmt.Sprintf("Strong recognition of %q characteristics. The model is confident in this classification.", result.PredictedLabel)
	default:
		v.Headline = "Low confidence - uncertain match"
		v.Explanation = fmt.Sprintf("The model suggests %q but with low confidence. More training data is needed for this category.", result.PredictedLabel)
	}

	if len(result.MatchedImages) > 0 {
		v.Matches = make([]model.MatchedImage, len(result.MatchedImages))
		copy(v.Matches, result.MatchedImages)
	}
	return v
}

// Percent renders the confidence as a percentage with one decimal.
func (v Verdict) Percent() string {
	return fmt.Sprintf("%.1f%%", v.Confidence*100)
}

// String returns a short human label for the tier.
func (t Tier) String() string {
	switch t {
	case TierUnknownLabel:
		return "Unknown label"
	case TierPerfectMatch:
		return "Perfect match"
	case TierHighConfidence:
		return "High confidence"
	case TierLowConfidence:
		return "Low confidence"
	default:
		return string(t)
	}
}
