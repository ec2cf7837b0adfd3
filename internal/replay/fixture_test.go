package replay

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// #region fixture-tests

// TestFixture_NavigationSearch loads the random search fixture and checks
// that two replays under identical seeds agree.
func TestFixture_NavigationSearch(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "navigation_search.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}

	report, err := Replay(context.Background(), f, nil)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if !report.Passed {
		t.Fatalf("replay failed: %s", report.Reason)
	}
	if len(report.First.Actions) != f.Epochs {
		t.Fatalf("expected %d actions, got %d", f.Epochs, len(report.First.Actions))
	}
}

// TestFixture_NavigationEvaluate checks the per-epoch actions recorded in the
// evaluate fixture.
func TestFixture_NavigationEvaluate(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "navigation_evaluate.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}

	report, err := Replay(context.Background(), f, nil)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if !report.Passed {
		t.Fatalf("replay failed: %s", report.Reason)
	}
	if !report.ActionsMatch {
		t.Fatalf("expected actions to match, got %v", report.First.Actions)
	}
}

// TestLoadFixture_NotFound verifies error on missing file.
func TestLoadFixture_NotFound(t *testing.T) {
	if _, err := LoadFixture("testdata/nonexistent.json"); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

// TestLoadFixture_Malformed verifies error on invalid JSON.
func TestLoadFixture_Malformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{not valid json}"), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if _, err := LoadFixture(path); err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
}

// TestWriteFixture_RoundTrip verifies a written fixture loads back identically.
func TestWriteFixture_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.json")
	want := DefaultFixture()
	if err := WriteFixture(path, &want); err != nil {
		t.Fatalf("WriteFixture: %v", err)
	}
	got, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if got.Planner != want.Planner || got.Navigation != want.Navigation || got.Epochs != want.Epochs {
		t.Fatalf("fixture changed across round trip: %+v", got)
	}
}

// #endregion fixture-tests
