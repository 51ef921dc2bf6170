package metrics

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestRecordAppendsJSONLWithComputedCost(t *testing.T) {
	dir := t.TempDir()
	tr := NewTracker(dir)

	tr.Record(TokenEvent{SessionKey: "terminal:local", Model: "claude-sonnet-4-5-20250929", InputTokens: 1000, OutputTokens: 500})
	tr.Record(TokenEvent{SessionKey: "terminal:local", Model: "unknown-model", InputTokens: 1000, OutputTokens: 500})

	f, err := os.Open(filepath.Join(dir, "metrics", "tokens.jsonl"))
	if err != nil {
		t.Fatalf("open tokens.jsonl: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []TokenEvent
	for scanner.Scan() {
		var ev TokenEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		lines = append(lines, ev)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 recorded events, got %d", len(lines))
	}
	if lines[0].CostUSD <= 0 {
		t.Error("expected a positive computed cost for a known model")
	}
	if lines[1].CostUSD <= 0 {
		t.Error("expected unknown models to fall back to default pricing rather than zero cost")
	}
	if lines[0].Timestamp == "" {
		t.Error("expected Record to stamp a timestamp when one isn't supplied")
	}
}
