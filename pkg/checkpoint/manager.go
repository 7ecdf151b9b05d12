package checkpoint

import (
	"weathercollect/pkg/logger"
)

// TaskRef names one planned (province, city, year) task.
type TaskRef struct {
	Province string
	City     string
	Year     int
}

// Manager tracks progress for a single data source. Every completion and
// failure is recorded at three levels at once: the source document, the
// province document, and the province/year document. The source-level
// document is the authoritative record consulted by IsCompleted and Merge.
type Manager struct {
	store  *Store
	source string
	logger logger.Logger
}

// NewManager creates a manager for the given source, storing documents
// under dir.
func NewManager(dir, source string) (*Manager, error) {
	store, err := NewStore(dir)
	if err != nil {
		return nil, err
	}
	return NewManagerWithStore(store, source), nil
}

// NewManagerWithStore creates a manager over an existing store, letting
// several sources share one directory and lock table.
func NewManagerWithStore(store *Store, source string) *Manager {
	return &Manager{
		store:  store,
		source: source,
		logger: logger.GetLogger(),
	}
}

// Source returns the data source this manager tracks.
func (m *Manager) Source() string {
	return m.source
}

// keys returns the three document keys a task update touches.
func (m *Manager) keys(province string, year int) []Key {
	return []Key{
		SourceKey(m.source),
		ProvinceKey(m.source, province),
		YearKey(m.source, province, year),
	}
}

// MarkCompleted records the task as done at every checkpoint level. It is
// idempotent: repeated calls for the same task change nothing.
func (m *Manager) MarkCompleted(province, city string, year int) error {
	for _, key := range m.keys(province, year) {
		err := m.store.Update(key, func(doc *Document) (bool, error) {
			return doc.MarkCompleted(city, year), nil
		})
		if err != nil {
			return err
		}
	}
	m.logger.DebugWithFields("Task marked completed", map[string]interface{}{
		"source":   m.source,
		"province": province,
		"city":     city,
		"year":     year,
	})
	return nil
}

// MarkFailed records the latest failure for the task at every checkpoint
// level. The failure is upserted even for a completed task; IsCompleted
// still reports true for it.
func (m *Manager) MarkFailed(province, city string, year int, reason string) error {
	for _, key := range m.keys(province, year) {
		err := m.store.Update(key, func(doc *Document) (bool, error) {
			doc.MarkFailed(city, year, reason)
			return true, nil
		})
		if err != nil {
			return err
		}
	}
	m.logger.DebugWithFields("Task marked failed", map[string]interface{}{
		"source":   m.source,
		"province": province,
		"city":     city,
		"year":     year,
		"reason":   reason,
	})
	return nil
}

// IsCompleted reports whether the (city, year) task already completed,
// consulting the source-level document.
func (m *Manager) IsCompleted(city string, year int) (bool, error) {
	var done bool
	err := m.store.View(SourceKey(m.source), func(doc *Document) error {
		done = doc.IsCompleted(city, year)
		return nil
	})
	return done, err
}

// RegisterTasks records the planned task totals at every checkpoint level
// for this run. Totals never drop below what a document already accounts
// for, so completed_tasks + failed_tasks <= total_tasks holds even when a
// later run narrows its scope.
func (m *Manager) RegisterTasks(tasks []TaskRef) error {
	counts := make(map[Key]int)
	for _, task := range tasks {
		for _, key := range m.keys(task.Province, task.Year) {
			counts[key]++
		}
	}
	for key, count := range counts {
		err := m.store.Update(key, func(doc *Document) (bool, error) {
			total := count
			if floor := doc.Stats.CompletedTasks + doc.Stats.FailedTasks; total < floor {
				total = floor
			}
			if doc.Stats.TotalTasks == total {
				return false, nil
			}
			doc.Stats.TotalTasks = total
			return true, nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Stats returns the source-level progress counters.
func (m *Manager) Stats() (Stats, error) {
	return m.statsAt(SourceKey(m.source))
}

// ProvinceStats returns the progress counters scoped to one province.
func (m *Manager) ProvinceStats(province string) (Stats, error) {
	return m.statsAt(ProvinceKey(m.source, province))
}

func (m *Manager) statsAt(key Key) (Stats, error) {
	var stats Stats
	err := m.store.View(key, func(doc *Document) error {
		stats = doc.Stats
		return nil
	})
	return stats, err
}

// Completed returns a copy of the source-level completed map.
func (m *Manager) Completed() (map[string][]int, error) {
	return m.completedAt(SourceKey(m.source))
}

// CompletedInProvince returns the completed map scoped to one province.
func (m *Manager) CompletedInProvince(province string) (map[string][]int, error) {
	return m.completedAt(ProvinceKey(m.source, province))
}

func (m *Manager) completedAt(key Key) (map[string][]int, error) {
	out := make(map[string][]int)
	err := m.store.View(key, func(doc *Document) error {
		for city, years := range doc.Completed {
			out[city] = append([]int(nil), years...)
		}
		return nil
	})
	return out, err
}

// Failed returns a copy of the source-level failure records.
func (m *Manager) Failed() (map[string]map[string]FailureRecord, error) {
	return m.failedAt(SourceKey(m.source))
}

// FailedInProvince returns the failure records scoped to one province.
func (m *Manager) FailedInProvince(province string) (map[string]map[string]FailureRecord, error) {
	return m.failedAt(ProvinceKey(m.source, province))
}

func (m *Manager) failedAt(key Key) (map[string]map[string]FailureRecord, error) {
	out := make(map[string]map[string]FailureRecord)
	err := m.store.View(key, func(doc *Document) error {
		for city, byYear := range doc.Failed {
			records := make(map[string]FailureRecord, len(byYear))
			for year, record := range byYear {
				records[year] = record
			}
			out[city] = records
		}
		return nil
	})
	return out, err
}

// Merge copies completions from another source's checkpoint into this
// one. Only the donor's completed entries cross over; its failures are
// ignored, and this source's own failure records are kept as audit
// history. The donor document is left untouched. Merge returns the
// number of tasks newly marked complete.
//
// Merge operates on the source-level documents. Province and year level
// documents are not back-filled because the source-level document does
// not record which province a city belongs to.
func (m *Manager) Merge(donorSource string) (int, error) {
	donor, err := m.snapshotSource(donorSource)
	if err != nil {
		return 0, err
	}

	added := 0
	err = m.store.Update(SourceKey(m.source), func(doc *Document) (bool, error) {
		added = doc.MergeCompletedFrom(donor)
		if floor := doc.Stats.CompletedTasks + doc.Stats.FailedTasks; doc.Stats.TotalTasks < floor {
			doc.Stats.TotalTasks = floor
		}
		return added > 0, nil
	})
	if err != nil {
		return 0, err
	}

	m.logger.InfoWithFields("Checkpoint merge finished", map[string]interface{}{
		"source": m.source,
		"donor":  donorSource,
		"added":  added,
	})
	return added, nil
}

// snapshotSource returns a deep copy of another source's document so the
// merge never mutates the donor.
func (m *Manager) snapshotSource(source string) (*Document, error) {
	snapshot := NewDocument(SourceKey(source))
	err := m.store.View(SourceKey(source), func(doc *Document) error {
		for city, years := range doc.Completed {
			snapshot.Completed[city] = append([]int(nil), years...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// ClearCache drops the store's in-memory documents.
func (m *Manager) ClearCache() {
	m.store.ClearCache()
}
