package batch

import (
	"fmt"

	"github.com/knakano/jsonsim/internal/ai"
	"github.com/knakano/jsonsim/internal/similarity"
)

// Output shape selectors.
const (
	OutputScore = "score"
	OutputFile  = "file"
)

// Aggregate is the single-object summary of a batch run.
type Aggregate struct {
	File       string            `json:"file"`
	Method     ai.Method         `json:"method"`
	TotalLines int               `json:"total_lines"`
	Scored     int               `json:"scored"`
	Errors     int               `json:"errors"`
	Score      float64           `json:"score"`
	Meaning    string            `json:"meaning"`
	JSON       similarity.Result `json:"json"`
}

// Detail is the per-record output array.
type Detail struct {
	File    string         `json:"file"`
	Method  ai.Method      `json:"method"`
	Results []RecordResult `json:"results"`
}

// Shape renders a report in the requested output form. "score" averages
// the scored records into one object with a qualitative meaning label,
// "file" returns every record's detail.
func Shape(report *Report, outputType string) (any, error) {
	switch outputType {
	case OutputScore:
		return summarize(report), nil
	case OutputFile:
		return &Detail{
			File:    report.File,
			Method:  report.Method,
			Results: report.Results,
		}, nil
	default:
		return nil, fmt.Errorf("unknown output type %q, want %q or %q",
			outputType, OutputScore, OutputFile)
	}
}

func summarize(report *Report) *Aggregate {
	agg := &Aggregate{
		File:       report.File,
		Method:     report.Method,
		TotalLines: len(report.Results),
	}

	var sums similarity.Result
	for _, rr := range report.Results {
		if rr.Result == nil {
			agg.Errors++
			continue
		}
		agg.Scored++
		sums.FieldMatchRatio += rr.Result.FieldMatchRatio
		sums.ValueSimilarity += rr.Result.ValueSimilarity
		sums.FinalScore += rr.Result.FinalScore
	}

	if agg.Scored > 0 {
		n := float64(agg.Scored)
		agg.JSON = similarity.Result{
			FieldMatchRatio: sums.FieldMatchRatio / n,
			ValueSimilarity: sums.ValueSimilarity / n,
			FinalScore:      sums.FinalScore / n,
		}
		agg.Score = agg.JSON.FinalScore
		agg.Meaning = ai.CategoryForScore(agg.Score)
	}
	return agg
}
