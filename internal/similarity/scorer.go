// Package similarity implements the recursive structural comparison of two
// JSON-like values. Key overlap and per-field value resemblance are scored
// separately and multiplied into the final score.
package similarity

import (
	"context"
	"fmt"
	"strconv"

	"github.com/knakano/jsonsim/internal/ai"
)

// numericMismatchScore keeps differing numbers distinguishable from a total
// mismatch instead of collapsing them to zero.
const numericMismatchScore = 0.1

// TextComparer scores two text values. The active backend satisfies this
// through the strategy router.
type TextComparer interface {
	Compare(ctx context.Context, textA, textB string) (float64, error)
}

// Result holds the two factors and their product for one record pair.
type Result struct {
	FieldMatchRatio float64 `json:"field_match_ratio"`
	ValueSimilarity float64 `json:"value_similarity"`
	FinalScore      float64 `json:"final_score"`
}

// Scorer walks two decoded JSON values recursively. Text leaves are
// delegated to the configured TextComparer.
type Scorer struct {
	texts TextComparer
}

func NewScorer(texts TextComparer) *Scorer {
	return &Scorer{texts: texts}
}

// Score compares two decoded JSON values and returns both factors.
// For non-object roots the field match ratio is 1.0 since there are no
// field names to disagree on.
func (s *Scorer) Score(ctx context.Context, a, b any) (*Result, error) {
	objA, okA := a.(map[string]any)
	objB, okB := b.(map[string]any)

	if okA && okB {
		ratio := fieldMatchRatio(objA, objB)
		valueSim, err := s.commonFieldSimilarity(ctx, objA, objB)
		if err != nil {
			return nil, err
		}
		return newResult(ratio, valueSim), nil
	}

	valueSim, err := s.compareValues(ctx, a, b)
	if err != nil {
		return nil, err
	}
	return newResult(1.0, valueSim), nil
}

func newResult(ratio, valueSim float64) *Result {
	return &Result{
		FieldMatchRatio: clamp01(ratio),
		ValueSimilarity: clamp01(valueSim),
		FinalScore:      clamp01(ratio * valueSim),
	}
}

// fieldMatchRatio is |common keys| / max(|keysA|, |keysB|). Two empty
// objects agree on everything, so the ratio is 1.0.
func fieldMatchRatio(a, b map[string]any) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}

	common := 0
	for key := range a {
		if _, ok := b[key]; ok {
			common++
		}
	}

	max := len(a)
	if len(b) > max {
		max = len(b)
	}

	return float64(common) / float64(max)
}

// commonFieldSimilarity is the mean recursive similarity over common keys
// only. Missing and extra keys are already penalized by the ratio and are
// not counted again here.
func (s *Scorer) commonFieldSimilarity(ctx context.Context, a, b map[string]any) (float64, error) {
	if len(a) == 0 && len(b) == 0 {
		return 1.0, nil
	}

	total := 0.0
	common := 0
	for key, valA := range a {
		valB, ok := b[key]
		if !ok {
			continue
		}
		sim, err := s.compareValues(ctx, valA, valB)
		if err != nil {
			return 0, fmt.Errorf("field %q: %w", key, err)
		}
		total += sim
		common++
	}

	if common == 0 {
		return 0.0, nil
	}
	return total / float64(common), nil
}

func (s *Scorer) compareValues(ctx context.Context, a, b any) (float64, error) {
	if a == nil && b == nil {
		return 1.0, nil
	}
	if a == nil || b == nil {
		return 0.0, nil
	}

	if listA, ok := a.([]any); ok {
		if listB, ok := b.([]any); ok {
			return s.compareLists(ctx, listA, listB)
		}
	}

	if objA, ok := a.(map[string]any); ok {
		if objB, ok := b.(map[string]any); ok {
			ratio := fieldMatchRatio(objA, objB)
			valueSim, err := s.commonFieldSimilarity(ctx, objA, objB)
			if err != nil {
				return 0, err
			}
			return clamp01(ratio * valueSim), nil
		}
	}

	numA, isNumA := toNumeric(a)
	numB, isNumB := toNumeric(b)
	if isNumA && isNumB {
		if numA == numB {
			return 1.0, nil
		}
		return numericMismatchScore, nil
	}

	textA, okA := stringify(a)
	textB, okB := stringify(b)
	if !okA || !okB {
		return 0, &ai.ValidationError{
			Reason: fmt.Sprintf("unsupported value types %T and %T", a, b),
		}
	}

	if textA == textB {
		return 1.0, nil
	}

	return s.texts.Compare(ctx, textA, textB)
}

// compareLists pairs elements by index up to the shorter length and averages
// the recursive similarity. Excess elements in the longer list are ignored;
// the shortfall already shows up as a lower mean upstream and this keeps the
// comparison cheap on large arrays.
func (s *Scorer) compareLists(ctx context.Context, a, b []any) (float64, error) {
	if len(a) == 0 && len(b) == 0 {
		return 1.0, nil
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0, nil
	}

	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	total := 0.0
	for i := 0; i < n; i++ {
		sim, err := s.compareValues(ctx, a[i], b[i])
		if err != nil {
			return 0, fmt.Errorf("index %d: %w", i, err)
		}
		total += sim
	}

	return total / float64(n), nil
}

// toNumeric accepts JSON numbers and numeric strings, matching how loosely
// typed inference outputs often quote their numbers.
func toNumeric(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func stringify(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case bool:
		return strconv.FormatBool(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	default:
		return "", false
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
