package batch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/knakano/jsonsim/internal/ai"
	"github.com/knakano/jsonsim/internal/progress"
	"github.com/knakano/jsonsim/internal/similarity"
)

// scriptedComparer returns a fixed score except for texts it is told to
// fail on.
type scriptedComparer struct {
	score    float64
	failWith map[string]error
}

func (s *scriptedComparer) Compare(_ context.Context, textA, _ string) (float64, error) {
	if err, ok := s.failWith[textA]; ok {
		return 0, err
	}
	return s.score, nil
}

func TestReadRecords(t *testing.T) {
	input := strings.Join([]string{
		`{"id": "r1", "inference1": {"name": "A"}, "inference2": {"name": "B"}}`,
		``,
		`not json at all`,
		`{"id": "r2", "inference1": "{\"name\": \"A\"}", "inference2": "{\"name\": \"A\"}"}`,
		`{"id": "r3", "inference1": "平文のテキスト", "inference2": "別のテキスト"}`,
		`{"id": "r4", "inference1": {"name": "A"}}`,
	}, "\n")

	records, err := ReadRecords(strings.NewReader(input), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records: got %d, want 3", len(records))
	}

	if _, ok := records[0].Left.(map[string]any); !ok {
		t.Errorf("r1 left: got %T, want object", records[0].Left)
	}
	if _, ok := records[1].Left.(map[string]any); !ok {
		t.Errorf("r2 left: got %T, want object decoded from string", records[1].Left)
	}
	if s, ok := records[2].Left.(string); !ok || s != "平文のテキスト" {
		t.Errorf("r3 left: got %#v", records[2].Left)
	}
	for i, want := range []string{"r1", "r2", "r3"} {
		if records[i].ID != want {
			t.Errorf("record %d id: got %q, want %q", i, records[i].ID, want)
		}
	}
}

func TestRunScoresAllRecords(t *testing.T) {
	scorer := similarity.NewScorer(&scriptedComparer{score: 1.0})
	tracker := progress.NewTracker()
	runner := NewRunner(scorer, ai.MethodEmbedding, tracker, nil)

	records := []ComparisonRecord{
		{Index: 0, Left: map[string]any{"a": "x"}, Right: map[string]any{"a": "x"}},
		{Index: 1, Left: map[string]any{"a": "x", "b": 1.0}, Right: map[string]any{"a": "x", "b": 2.0}},
	}

	report, err := runner.Run(context.Background(), "in.jsonl", records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Results) != 2 {
		t.Fatalf("results: got %d, want 2", len(report.Results))
	}
	if report.Results[0].Result.FinalScore != 1.0 {
		t.Errorf("record 0 score: got %v", report.Results[0].Result.FinalScore)
	}
	if got := report.Results[1].Result.FinalScore; got != 0.55 {
		t.Errorf("record 1 score: got %v, want 0.55", got)
	}

	snap, err := tracker.Get(report.TaskID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Status != progress.StatusCompleted || snap.Current != 2 {
		t.Errorf("task: status %q current %d", snap.Status, snap.Current)
	}
}

func TestRunContinuesPastRecoverableErrors(t *testing.T) {
	comparer := &scriptedComparer{
		score:    0.8,
		failWith: map[string]error{"壊れた行": ai.ErrParseFailed},
	}
	scorer := similarity.NewScorer(comparer)
	tracker := progress.NewTracker()
	runner := NewRunner(scorer, ai.MethodGenerative, tracker, nil)

	records := []ComparisonRecord{
		{Index: 0, Left: "正常な行", Right: "正常な行です"},
		{Index: 1, Left: "壊れた行", Right: "何か"},
		{Index: 2, Left: "最後の行", Right: "最後の行かも"},
	}

	report, err := runner.Run(context.Background(), "in.jsonl", records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Results) != 3 {
		t.Fatalf("results: got %d, want 3", len(report.Results))
	}
	if report.Results[1].Error == "" || report.Results[1].Result != nil {
		t.Errorf("record 1 should carry an error: %+v", report.Results[1])
	}
	if report.Results[2].Result == nil {
		t.Error("record after the failure was not scored")
	}

	snap, err := tracker.Get(report.TaskID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Status != progress.StatusCompleted {
		t.Errorf("status: got %q", snap.Status)
	}
}

func TestRunAbortsOnBackendFailure(t *testing.T) {
	comparer := &scriptedComparer{
		score: 0.8,
		failWith: map[string]error{
			"二行目": ai.NewBackendError(ai.KindUnavailable, errors.New("retries exhausted")),
		},
	}
	scorer := similarity.NewScorer(comparer)
	tracker := progress.NewTracker()
	runner := NewRunner(scorer, ai.MethodGenerative, tracker, nil)

	records := []ComparisonRecord{
		{Index: 0, Left: "一行目", Right: "一行目のテキスト"},
		{Index: 1, Left: "二行目", Right: "二行目のテキスト"},
		{Index: 2, Left: "三行目", Right: "三行目のテキスト"},
	}

	_, err := runner.Run(context.Background(), "in.jsonl", records)
	var berr *ai.BackendError
	if !errors.As(err, &berr) {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestShapeScoreAggregates(t *testing.T) {
	report := &Report{
		File:   "in.jsonl",
		Method: ai.MethodEmbedding,
		Results: []RecordResult{
			{Index: 0, Result: &similarity.Result{FieldMatchRatio: 1.0, ValueSimilarity: 1.0, FinalScore: 1.0}},
			{Index: 1, Result: &similarity.Result{FieldMatchRatio: 1.0, ValueSimilarity: 0.6, FinalScore: 0.6}},
			{Index: 2, Error: "no score found in model reply"},
		},
	}

	out, err := Shape(report, OutputScore)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	agg, ok := out.(*Aggregate)
	if !ok {
		t.Fatalf("got %T", out)
	}
	if agg.TotalLines != 3 || agg.Scored != 2 || agg.Errors != 1 {
		t.Errorf("counts: %+v", agg)
	}
	if agg.Score != 0.8 {
		t.Errorf("score: got %v, want 0.8", agg.Score)
	}
	if agg.Meaning != ai.CategoryVeryHigh {
		t.Errorf("meaning: got %q, want %q", agg.Meaning, ai.CategoryVeryHigh)
	}
	if agg.JSON.ValueSimilarity != 0.8 {
		t.Errorf("value similarity: got %v, want 0.8", agg.JSON.ValueSimilarity)
	}
}

func TestShapeFileReturnsDetails(t *testing.T) {
	report := &Report{
		File:   "in.jsonl",
		Method: ai.MethodGenerative,
		Results: []RecordResult{
			{Index: 0, ID: "r1", Result: &similarity.Result{FinalScore: 0.5}},
		},
	}

	out, err := Shape(report, OutputFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	detail, ok := out.(*Detail)
	if !ok {
		t.Fatalf("got %T", out)
	}
	if len(detail.Results) != 1 || detail.Results[0].ID != "r1" {
		t.Errorf("details: %+v", detail)
	}

	if _, err := Shape(report, "xml"); err == nil {
		t.Error("expected error for unknown output type")
	}
}
