package checkpoint

import (
	"sync"
	"testing"
)

func newTestManager(t *testing.T, source string) *Manager {
	t.Helper()
	mgr, err := NewManager(t.TempDir(), source)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	return mgr
}

func TestManagerMarkCompletedUpdatesAllLevels(t *testing.T) {
	mgr := newTestManager(t, "visualcrossing")

	if err := mgr.MarkCompleted("Zhejiang", "Hangzhou", 2020); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	keys := []Key{
		SourceKey("visualcrossing"),
		ProvinceKey("visualcrossing", "Zhejiang"),
		YearKey("visualcrossing", "Zhejiang", 2020),
	}
	for _, key := range keys {
		if !mgr.store.Exists(key) {
			t.Errorf("Expected checkpoint file for %v", key)
		}
		err := mgr.store.View(key, func(doc *Document) error {
			if !doc.IsCompleted("Hangzhou", 2020) {
				t.Errorf("Expected completion in %v document", key)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("View failed: %v", err)
		}
	}
}

func TestManagerIsCompleted(t *testing.T) {
	mgr := newTestManager(t, "visualcrossing")

	done, err := mgr.IsCompleted("Hangzhou", 2020)
	if err != nil {
		t.Fatalf("IsCompleted failed: %v", err)
	}
	if done {
		t.Error("Expected fresh task to be incomplete")
	}

	if err := mgr.MarkCompleted("Zhejiang", "Hangzhou", 2020); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	done, err = mgr.IsCompleted("Hangzhou", 2020)
	if err != nil {
		t.Fatalf("IsCompleted failed: %v", err)
	}
	if !done {
		t.Error("Expected task to be completed")
	}
}

func TestManagerFailureThenCompletion(t *testing.T) {
	mgr := newTestManager(t, "visualcrossing")

	if err := mgr.MarkFailed("Zhejiang", "Ningbo", 2019, "all providers exhausted"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	if err := mgr.MarkCompleted("Zhejiang", "Ningbo", 2019); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	stats, err := mgr.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.CompletedTasks != 1 || stats.FailedTasks != 1 {
		t.Errorf("Expected 1 completed / 1 failed, got %d / %d", stats.CompletedTasks, stats.FailedTasks)
	}

	// The original failure record stays for audit
	failed, err := mgr.Failed()
	if err != nil {
		t.Fatalf("Failed() failed: %v", err)
	}
	if got := failed["Ningbo"]["2019"].Reason; got != "all providers exhausted" {
		t.Errorf("Expected failure record to survive completion, got %q", got)
	}

	// A failure after completion is recorded but must not demote the task
	if err := mgr.MarkFailed("Zhejiang", "Ningbo", 2019, "stale failure"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	done, _ := mgr.IsCompleted("Ningbo", 2019)
	if !done {
		t.Error("Expected task to stay completed")
	}
	failed, err = mgr.Failed()
	if err != nil {
		t.Fatalf("Failed() failed: %v", err)
	}
	if got := failed["Ningbo"]["2019"].Reason; got != "stale failure" {
		t.Errorf("Expected the late failure to be recorded, got %q", got)
	}
}

func TestManagerRegisterTasks(t *testing.T) {
	mgr := newTestManager(t, "visualcrossing")

	tasks := []TaskRef{
		{Province: "Zhejiang", City: "Hangzhou", Year: 2019},
		{Province: "Zhejiang", City: "Hangzhou", Year: 2020},
		{Province: "Zhejiang", City: "Ningbo", Year: 2019},
		{Province: "Jiangsu", City: "Nanjing", Year: 2019},
	}
	if err := mgr.RegisterTasks(tasks); err != nil {
		t.Fatalf("RegisterTasks failed: %v", err)
	}

	stats, err := mgr.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalTasks != 4 {
		t.Errorf("Expected source total 4, got %d", stats.TotalTasks)
	}

	err = mgr.store.View(ProvinceKey("visualcrossing", "Zhejiang"), func(doc *Document) error {
		if doc.Stats.TotalTasks != 3 {
			t.Errorf("Expected province total 3, got %d", doc.Stats.TotalTasks)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}

	err = mgr.store.View(YearKey("visualcrossing", "Zhejiang", 2019), func(doc *Document) error {
		if doc.Stats.TotalTasks != 2 {
			t.Errorf("Expected year total 2, got %d", doc.Stats.TotalTasks)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
}

func TestManagerRegisterTasksNeverShrinksBelowRecorded(t *testing.T) {
	mgr := newTestManager(t, "visualcrossing")

	if err := mgr.MarkCompleted("Zhejiang", "Hangzhou", 2019); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	if err := mgr.MarkFailed("Zhejiang", "Ningbo", 2019, "timeout"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	// A narrowed run plans only one task, but two are already recorded
	err := mgr.RegisterTasks([]TaskRef{{Province: "Zhejiang", City: "Hangzhou", Year: 2019}})
	if err != nil {
		t.Fatalf("RegisterTasks failed: %v", err)
	}

	stats, err := mgr.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalTasks < stats.CompletedTasks+stats.FailedTasks {
		t.Errorf("Invariant violated: total %d < completed %d + failed %d",
			stats.TotalTasks, stats.CompletedTasks, stats.FailedTasks)
	}
}

func TestManagerMerge(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	target := NewManagerWithStore(store, "visualcrossing")
	donor := NewManagerWithStore(store, "openweather")

	if err := target.MarkCompleted("Zhejiang", "Hangzhou", 2019); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	if err := target.MarkFailed("Zhejiang", "Ningbo", 2020, "timeout"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	if err := donor.MarkCompleted("Zhejiang", "Ningbo", 2020); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	if err := donor.MarkCompleted("Fujian", "Xiamen", 2018); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	if err := donor.MarkFailed("Yunnan", "Kunming", 2020, "donor failure"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	added, err := target.Merge("openweather")
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if added != 2 {
		t.Errorf("Expected 2 merged tasks, got %d", added)
	}

	for _, task := range []struct {
		city string
		year int
	}{{"Hangzhou", 2019}, {"Ningbo", 2020}, {"Xiamen", 2018}} {
		done, err := target.IsCompleted(task.city, task.year)
		if err != nil {
			t.Fatalf("IsCompleted failed: %v", err)
		}
		if !done {
			t.Errorf("Expected %s/%d to be completed after merge", task.city, task.year)
		}
	}

	failed, err := target.Failed()
	if err != nil {
		t.Fatalf("Failed() failed: %v", err)
	}
	if _, ok := failed["Ningbo"]["2020"]; !ok {
		t.Error("Expected the Ningbo failure record to survive the merge")
	}
	if _, ok := failed["Kunming"]; ok {
		t.Error("Donor failures must never cross over")
	}

	// Merge is one-directional: the donor is untouched
	donorStats, err := donor.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if donorStats.CompletedTasks != 2 || donorStats.FailedTasks != 1 {
		t.Errorf("Expected donor stats unchanged, got %+v", donorStats)
	}
	donorDone, _ := donor.IsCompleted("Hangzhou", 2019)
	if donorDone {
		t.Error("Expected target completions to stay out of the donor")
	}
}

func TestManagerMergeIdempotent(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	target := NewManagerWithStore(store, "visualcrossing")
	donor := NewManagerWithStore(store, "openweather")

	if err := donor.MarkCompleted("Zhejiang", "Hangzhou", 2020); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	if _, err := target.Merge("openweather"); err != nil {
		t.Fatalf("First merge failed: %v", err)
	}
	added, err := target.Merge("openweather")
	if err != nil {
		t.Fatalf("Second merge failed: %v", err)
	}
	if added != 0 {
		t.Errorf("Expected repeated merge to add nothing, got %d", added)
	}

	stats, _ := target.Stats()
	if stats.CompletedTasks != 1 {
		t.Errorf("Expected 1 completed task after double merge, got %d", stats.CompletedTasks)
	}
}

func TestManagerConcurrentMarkCompleted(t *testing.T) {
	mgr := newTestManager(t, "visualcrossing")

	cities := []string{"Hangzhou", "Ningbo", "Wenzhou", "Shaoxing", "Jiaxing"}
	years := []int{2018, 2019, 2020, 2021}

	var wg sync.WaitGroup
	for _, city := range cities {
		for _, year := range years {
			wg.Add(1)
			go func(city string, year int) {
				defer wg.Done()
				if err := mgr.MarkCompleted("Zhejiang", city, year); err != nil {
					t.Errorf("MarkCompleted failed: %v", err)
				}
			}(city, year)
		}
	}
	wg.Wait()

	stats, err := mgr.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	want := len(cities) * len(years)
	if stats.CompletedTasks != want {
		t.Errorf("Expected %d completed tasks, got %d", want, stats.CompletedTasks)
	}
}

func TestManagerSurvivesReload(t *testing.T) {
	dir := t.TempDir()

	mgr, err := NewManager(dir, "visualcrossing")
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	if err := mgr.MarkCompleted("Zhejiang", "Hangzhou", 2020); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	if err := mgr.MarkFailed("Zhejiang", "Ningbo", 2020, "timeout"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	// A new manager over the same directory sees the same state
	reloaded, err := NewManager(dir, "visualcrossing")
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	done, err := reloaded.IsCompleted("Hangzhou", 2020)
	if err != nil {
		t.Fatalf("IsCompleted failed: %v", err)
	}
	if !done {
		t.Error("Expected completion to survive reload")
	}

	failed, err := reloaded.Failed()
	if err != nil {
		t.Fatalf("Failed() failed: %v", err)
	}
	if _, ok := failed["Ningbo"]["2020"]; !ok {
		t.Error("Expected failure record to survive reload")
	}
}

func TestManagerProvinceScopedQueries(t *testing.T) {
	mgr, err := NewManager(t.TempDir(), "visualcrossing")
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	if err := mgr.MarkCompleted("Zhejiang", "Hangzhou", 2020); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	if err := mgr.MarkCompleted("Jiangsu", "Nanjing", 2020); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	if err := mgr.MarkFailed("Jiangsu", "Suzhou", 2020, "timeout"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	stats, err := mgr.ProvinceStats("Zhejiang")
	if err != nil {
		t.Fatalf("ProvinceStats failed: %v", err)
	}
	if stats.CompletedTasks != 1 || stats.FailedTasks != 0 {
		t.Errorf("Unexpected Zhejiang stats: %+v", stats)
	}

	completed, err := mgr.CompletedInProvince("Zhejiang")
	if err != nil {
		t.Fatalf("CompletedInProvince failed: %v", err)
	}
	if _, ok := completed["Hangzhou"]; !ok {
		t.Error("Expected Hangzhou in Zhejiang's completed set")
	}
	if _, ok := completed["Nanjing"]; ok {
		t.Error("Nanjing must not appear in Zhejiang's completed set")
	}

	failed, err := mgr.FailedInProvince("Jiangsu")
	if err != nil {
		t.Fatalf("FailedInProvince failed: %v", err)
	}
	if _, ok := failed["Suzhou"]["2020"]; !ok {
		t.Error("Expected Suzhou failure in Jiangsu's records")
	}

	// Source-level aggregates across provinces
	all, err := mgr.Completed()
	if err != nil {
		t.Fatalf("Completed failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 completed cities at source level, got %d", len(all))
	}
}
