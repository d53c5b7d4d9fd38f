// Package score extracts a numeric similarity judgement from free-form
// generative model replies.
package score

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/knakano/jsonsim/internal/ai"
)

var (
	scorePattern      = regexp.MustCompile(`\*{0,2}スコア\*{0,2}[：:]\s*(-?[0-9]+(?:\.[0-9]+)?)`)
	percentagePattern = regexp.MustCompile(`(-?[0-9]+(?:\.[0-9]+)?)\s*%`)
	numberPattern     = regexp.MustCompile(`-?[0-9]+(?:\.[0-9]+)?`)
	categoryPattern   = regexp.MustCompile(`\*{0,2}カテゴリ\*{0,2}[：:]\s*([^\n]+)`)
	reasonPattern     = regexp.MustCompile(`\*{0,2}理由\*{0,2}[：:]\s*([^\n]+)`)
)

// Extraction is the structured form of one parsed reply.
type Extraction struct {
	Score        float64
	Category     string
	Reason       string
	Confidence   float64
	RangeClamped bool
}

// Extract parses a model reply. It first looks for a numeric score, then for
// one of the five category phrases. When neither is present it returns
// ai.ErrParseFailed; it never invents a default score. Values outside [0,1]
// are clamped and flagged, not dropped.
func Extract(reply string) (*Extraction, error) {
	// NFKC folds full-width digits, decimal points and colons into their
	// ASCII forms so localized replies parse with the same patterns.
	normalized := norm.NFKC.String(reply)

	out := &Extraction{}

	score, clamped, found := extractNumber(normalized)
	if found {
		out.Score = score
		out.RangeClamped = clamped
	} else {
		category := extractCategory(normalized)
		if category == "" {
			return nil, ai.ErrParseFailed
		}
		out.Score = ai.CategoryScores[category]
		out.Category = category
	}

	if out.Category == "" {
		if category := extractCategory(normalized); category != "" {
			out.Category = category
		} else {
			out.Category = ai.CategoryForScore(out.Score)
		}
	}

	out.Reason = extractReason(normalized)
	out.Confidence = confidence(normalized, found, out.Reason != "")

	return out, nil
}

// extractNumber tries the labeled score first, then a percentage, then the
// last bare number in the reply.
func extractNumber(text string) (score float64, clamped, found bool) {
	if m := scorePattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			score, clamped = clampScore(v)
			return score, clamped, true
		}
	}

	if m := percentagePattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			score, clamped = clampScore(v / 100.0)
			return score, clamped, true
		}
	}

	matches := numberPattern.FindAllString(text, -1)
	if len(matches) > 0 {
		if v, err := strconv.ParseFloat(matches[len(matches)-1], 64); err == nil {
			// Bare values above 1 usually mean the model answered in
			// percent despite the instructions.
			if v > 1 && v <= 100 {
				v /= 100.0
			}
			score, clamped = clampScore(v)
			return score, clamped, true
		}
	}

	return 0, false, false
}

func extractCategory(text string) string {
	if m := categoryPattern.FindStringSubmatch(text); m != nil {
		if phrase := longestCategoryIn(strings.TrimSpace(m[1])); phrase != "" {
			return phrase
		}
	}

	return longestCategoryIn(text)
}

// longestCategoryIn scans for category phrases; the longest match wins so
// 非常に類似 is not mistaken for its substring 類似.
func longestCategoryIn(text string) string {
	best := ""
	for phrase := range ai.CategoryScores {
		if strings.Contains(text, phrase) && len(phrase) > len(best) {
			best = phrase
		}
	}
	return best
}

func extractReason(text string) string {
	if m := reasonPattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// confidence estimates how well-structured the reply was. Purely advisory,
// carried into the judgement metadata.
func confidence(text string, hasScore, hasReason bool) float64 {
	hasCategory := categoryPattern.MatchString(text)

	c := 0.2
	switch {
	case hasScore && hasCategory && hasReason:
		c = 0.85
	case hasScore && (hasCategory || hasReason):
		c = 0.6
	case hasScore:
		c = 0.4
	}

	if len([]rune(text)) > 50 {
		c += 0.1
	}
	if strings.Contains(text, "類似") {
		c += 0.05
	}

	if c > 1.0 {
		c = 1.0
	}
	return c
}

func clampScore(v float64) (float64, bool) {
	if v < 0 {
		return 0, true
	}
	if v > 1 {
		return 1, true
	}
	return v, false
}
