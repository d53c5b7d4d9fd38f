package ai

// Qualitative similarity buckets. The Japanese phrases are the ones the
// judgement prompt instructs the model to answer with, so the extractor
// matches against the exact same strings.
const (
	CategoryExact    = "完全一致"
	CategoryVeryHigh = "非常に類似"
	CategoryHigh     = "類似"
	CategoryModerate = "やや類似"
	CategoryLow      = "低い類似度"
)

// CategoryScores maps each category phrase to its fixed score.
var CategoryScores = map[string]float64{
	CategoryExact:    1.0,
	CategoryVeryHigh: 0.8,
	CategoryHigh:     0.6,
	CategoryModerate: 0.4,
	CategoryLow:      0.2,
}

// CategoryForScore maps a score to its bucket. The mapping is monotonic:
// a higher score never yields a lower bucket.
func CategoryForScore(score float64) string {
	switch {
	case score >= 0.99:
		return CategoryExact
	case score >= 0.8:
		return CategoryVeryHigh
	case score >= 0.6:
		return CategoryHigh
	case score >= 0.4:
		return CategoryModerate
	default:
		return CategoryLow
	}
}
