package batch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// ComparisonRecord is one input pair with its source position.
type ComparisonRecord struct {
	Index int
	ID    string
	Left  any
	Right any
}

type inputLine struct {
	ID         string          `json:"id"`
	Inference1 json.RawMessage `json:"inference1"`
	Inference2 json.RawMessage `json:"inference2"`
}

const maxLineBytes = 4 << 20

// ReadRecords parses JSONL input where every line carries inference1 and
// inference2. Blank lines are skipped. Malformed lines are logged and
// skipped so one bad row does not sink the whole file.
func ReadRecords(r io.Reader, logger *zap.Logger) ([]ComparisonRecord, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var records []ComparisonRecord
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 || allWhitespace(line) {
			continue
		}

		var parsed inputLine
		if err := json.Unmarshal(line, &parsed); err != nil {
			logger.Warn("skipping malformed input line",
				zap.Int("line", lineNo),
				zap.Error(err),
			)
			continue
		}
		if len(parsed.Inference1) == 0 || len(parsed.Inference2) == 0 {
			logger.Warn("skipping line without both inference fields",
				zap.Int("line", lineNo),
			)
			continue
		}

		records = append(records, ComparisonRecord{
			Index: len(records),
			ID:    parsed.ID,
			Left:  decodeValue(parsed.Inference1),
			Right: decodeValue(parsed.Inference2),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return records, nil
}

// decodeValue unwraps an inference field. A string field that itself holds
// JSON is decoded one level deeper, which is the common shape when model
// output was stored as a string column.
func decodeValue(raw json.RawMessage) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	if s, ok := v.(string); ok {
		var nested any
		if err := json.Unmarshal([]byte(s), &nested); err == nil {
			switch nested.(type) {
			case map[string]any, []any:
				return nested
			}
		}
	}
	return v
}

func allWhitespace(line []byte) bool {
	for _, c := range line {
		if c != ' ' && c != '\t' && c != '\r' {
			return false
		}
	}
	return true
}
