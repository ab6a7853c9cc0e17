package results

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"descbench/internal/domain"
)

func TestPath(t *testing.T) {
	got := Path("results", domain.ConditionShort)
	want := filepath.Join("results", "classified_short.csv")
	if got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}
}

func TestAppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "classified_both.csv")

	first := []domain.ClassificationResult{
		{RecordID: "a", Label: "ai-native", Confidence: 5},
		{RecordID: "b", Label: "not-ai-native", Confidence: 2},
	}
	if err := Append(path, first); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := Append(path, []domain.ClassificationResult{{RecordID: "c", Label: "ai-native", Confidence: 3}}); err != nil {
		t.Fatalf("second Append failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading file: %v", err)
	}
	if strings.Count(string(data), "record_id,label,confidence") != 1 {
		t.Errorf("header written more than once:\n%s", data)
	}

	rows, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows["a"].Confidence != 5 || rows["c"].Label != "ai-native" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestAppendEmptyIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.csv")
	if err := Append(path, nil); err != nil {
		t.Fatalf("Append(nil) failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("empty append created the file")
	}
}

func TestLoadMissingFile(t *testing.T) {
	rows, err := Load(filepath.Join(t.TempDir(), "absent.csv"))
	if err != nil {
		t.Fatalf("Load of missing file failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("rows = %+v, want empty", rows)
	}
}

func TestLoadFirstOccurrenceWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.csv")
	content := "record_id,label,confidence\na,ai-native,5\na,not-ai-native,1\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	rows, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if rows["a"].Label != "ai-native" || rows["a"].Confidence != 5 {
		t.Errorf("duplicate id did not keep first row: %+v", rows["a"])
	}
}

func TestLoadRejectsMalformedRows(t *testing.T) {
	dir := t.TempDir()

	short := filepath.Join(dir, "short.csv")
	os.WriteFile(short, []byte("record_id,label,confidence\na,ai-native\n"), 0644)
	if _, err := Load(short); err == nil {
		t.Errorf("expected error for row with missing fields")
	}

	bad := filepath.Join(dir, "bad.csv")
	os.WriteFile(bad, []byte("record_id,label,confidence\na,ai-native,high\n"), 0644)
	if _, err := Load(bad); err == nil {
		t.Errorf("expected error for non-numeric confidence")
	}
}
