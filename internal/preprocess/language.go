package preprocess

import (
	"github.com/abadojack/whatlanggo"
)

// LanguageDetector decides whether a tweet is written in English.
type LanguageDetector interface {
	IsEnglish(text string) bool
}

// WhatlangDetector identifies languages with trigram statistics.
type WhatlangDetector struct {
	// MinConfidence rejects detections below this confidence (0 accepts any).
	MinConfidence float64
}

func (d WhatlangDetector) IsEnglish(text string) bool {
	info := whatlanggo.Detect(text)
	if info.Lang != whatlanggo.Eng {
		return false
	}
	return info.Confidence >= d.MinConfidence
}
