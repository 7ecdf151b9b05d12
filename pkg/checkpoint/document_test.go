package checkpoint

import (
	"testing"
)

func TestMarkCompletedIdempotent(t *testing.T) {
	doc := NewDocument(SourceKey("visualcrossing"))

	if !doc.MarkCompleted("Hangzhou", 2020) {
		t.Error("Expected first completion to report a transition")
	}
	if doc.MarkCompleted("Hangzhou", 2020) {
		t.Error("Expected repeated completion to be a no-op")
	}

	if doc.Stats.CompletedTasks != 1 {
		t.Errorf("Expected 1 completed task, got %d", doc.Stats.CompletedTasks)
	}
	if !doc.IsCompleted("Hangzhou", 2020) {
		t.Error("Expected task to be completed")
	}
	if doc.IsCompleted("Hangzhou", 2021) {
		t.Error("Did not expect other years to be completed")
	}
}

func TestMarkCompletedKeepsYearsSorted(t *testing.T) {
	doc := NewDocument(SourceKey("visualcrossing"))
	for _, year := range []int{2021, 2018, 2020, 2018} {
		doc.MarkCompleted("Ningbo", year)
	}

	years := doc.Completed["Ningbo"]
	want := []int{2018, 2020, 2021}
	if len(years) != len(want) {
		t.Fatalf("Expected %d years, got %v", len(want), years)
	}
	for i, y := range want {
		if years[i] != y {
			t.Errorf("Expected years %v, got %v", want, years)
			break
		}
	}
	if doc.Stats.CompletedTasks != 3 {
		t.Errorf("Expected 3 completed tasks, got %d", doc.Stats.CompletedTasks)
	}
}

func TestMarkCompletedKeepsFailureForAudit(t *testing.T) {
	doc := NewDocument(SourceKey("visualcrossing"))

	doc.MarkFailed("Nanjing", 2019, "all providers exhausted")
	if doc.Stats.FailedTasks != 1 {
		t.Fatalf("Expected 1 failed task, got %d", doc.Stats.FailedTasks)
	}

	doc.MarkCompleted("Nanjing", 2019)
	if got := doc.Failed["Nanjing"]["2019"].Reason; got != "all providers exhausted" {
		t.Errorf("Expected failure record to survive completion, got %q", got)
	}
	if doc.Stats.FailedTasks != 1 {
		t.Errorf("Expected failed count to stay at 1, got %d", doc.Stats.FailedTasks)
	}
	if doc.Stats.CompletedTasks != 1 {
		t.Errorf("Expected 1 completed task, got %d", doc.Stats.CompletedTasks)
	}
	if !doc.IsCompleted("Nanjing", 2019) {
		t.Error("Expected task to report completed despite the old failure")
	}
}

func TestMarkFailed(t *testing.T) {
	doc := NewDocument(SourceKey("visualcrossing"))

	if !doc.MarkFailed("Chengdu", 2020, "timeout") {
		t.Error("Expected first failure to create a record")
	}
	if doc.MarkFailed("Chengdu", 2020, "rate limited") {
		t.Error("Expected re-failure to refresh, not create")
	}
	if doc.Stats.FailedTasks != 1 {
		t.Errorf("Expected 1 failed task, got %d", doc.Stats.FailedTasks)
	}
	if got := doc.Failed["Chengdu"]["2020"].Reason; got != "rate limited" {
		t.Errorf("Expected latest reason to win, got %q", got)
	}
}

func TestMarkFailedNeverDemotesCompleted(t *testing.T) {
	doc := NewDocument(SourceKey("visualcrossing"))
	doc.MarkCompleted("Wuhan", 2020)

	if !doc.MarkFailed("Wuhan", 2020, "late failure") {
		t.Error("Expected a failure record even for a completed task")
	}
	if !doc.IsCompleted("Wuhan", 2020) {
		t.Error("Expected task to stay completed")
	}
	if got := doc.Failed["Wuhan"]["2020"].Reason; got != "late failure" {
		t.Errorf("Expected the late failure to be recorded, got %q", got)
	}
	if doc.Stats.FailedTasks != 1 {
		t.Errorf("Expected 1 failed task, got %d", doc.Stats.FailedTasks)
	}
}

func TestMergeCompletedFrom(t *testing.T) {
	target := NewDocument(SourceKey("visualcrossing"))
	target.MarkCompleted("Hangzhou", 2019)
	target.MarkFailed("Ningbo", 2020, "timeout")
	target.MarkFailed("Hefei", 2021, "timeout")

	donor := NewDocument(SourceKey("openweather"))
	donor.MarkCompleted("Hangzhou", 2019) // overlap, no double count
	donor.MarkCompleted("Ningbo", 2020)   // target failure stays for audit
	donor.MarkCompleted("Xiamen", 2018)   // brand new
	donor.MarkFailed("Kunming", 2020, "donor failure") // must not cross over

	added := target.MergeCompletedFrom(donor)
	if added != 2 {
		t.Errorf("Expected 2 newly merged tasks, got %d", added)
	}
	if target.Stats.CompletedTasks != 3 {
		t.Errorf("Expected 3 completed tasks, got %d", target.Stats.CompletedTasks)
	}
	if !target.IsCompleted("Ningbo", 2020) || !target.IsCompleted("Xiamen", 2018) {
		t.Error("Expected donor completions to be present")
	}
	if _, ok := target.Failed["Ningbo"]; !ok {
		t.Error("Expected the Ningbo failure record to survive the merge")
	}
	if _, ok := target.Failed["Kunming"]; ok {
		t.Error("Donor failures must never cross over")
	}
	if target.Stats.FailedTasks != 2 {
		t.Errorf("Expected 2 failure records, got %d", target.Stats.FailedTasks)
	}

	// Donor untouched
	if donor.Stats.CompletedTasks != 3 || len(donor.Failed) != 1 {
		t.Error("Expected donor document to be unchanged")
	}
}

func TestInsertYear(t *testing.T) {
	years := insertYear(nil, 2020)
	years = insertYear(years, 2018)
	years = insertYear(years, 2022)
	years = insertYear(years, 2020) // duplicate

	want := []int{2018, 2020, 2022}
	if len(years) != len(want) {
		t.Fatalf("Expected %v, got %v", want, years)
	}
	for i := range want {
		if years[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, years)
		}
	}
}

func TestKeyFilename(t *testing.T) {
	tests := []struct {
		key  Key
		want string
	}{
		{SourceKey("visualcrossing"), "visualcrossing_checkpoint.json"},
		{ProvinceKey("visualcrossing", "Zhejiang"), "visualcrossing_Zhejiang_checkpoint.json"},
		{YearKey("visualcrossing", "Zhejiang", 2020), "visualcrossing_Zhejiang_2020_checkpoint.json"},
		{ProvinceKey("openweather", "Inner Mongolia"), "openweather_Inner-Mongolia_checkpoint.json"},
	}
	for _, tt := range tests {
		if got := tt.key.Filename(); got != tt.want {
			t.Errorf("Filename(%v) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
