package checkpoint

import (
	"sort"
	"strconv"
	"time"
)

// FailureRecord captures the most recent failure of one (city, year) task.
type FailureRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
}

// Stats summarizes progress within one document.
type Stats struct {
	TotalTasks     int `json:"total_tasks"`
	CompletedTasks int `json:"completed_tasks"`
	FailedTasks    int `json:"failed_tasks"`
}

// Document is the persisted form of one checkpoint. Completed maps city
// names to sorted year lists; Failed maps city names to per-year failure
// records, keyed by the year's decimal string.
type Document struct {
	DataSource  string                              `json:"data_source"`
	Province    string                              `json:"province,omitempty"`
	Year        int                                 `json:"year,omitempty"`
	CreatedAt   time.Time                           `json:"created_at"`
	LastUpdated time.Time                           `json:"last_updated"`
	Completed   map[string][]int                    `json:"completed"`
	Failed      map[string]map[string]FailureRecord `json:"failed"`
	Stats       Stats                               `json:"stats"`
}

// NewDocument returns an empty document for the given key.
func NewDocument(key Key) *Document {
	now := time.Now().UTC()
	return &Document{
		DataSource:  key.Source,
		Province:    key.Province,
		Year:        key.Year,
		CreatedAt:   now,
		LastUpdated: now,
		Completed:   make(map[string][]int),
		Failed:      make(map[string]map[string]FailureRecord),
	}
}

// normalize repairs nil maps after JSON decoding of sparse documents.
func (d *Document) normalize() {
	if d.Completed == nil {
		d.Completed = make(map[string][]int)
	}
	if d.Failed == nil {
		d.Failed = make(map[string]map[string]FailureRecord)
	}
}

// IsCompleted reports whether the (city, year) task is recorded as done.
func (d *Document) IsCompleted(city string, year int) bool {
	for _, y := range d.Completed[city] {
		if y == year {
			return true
		}
	}
	return false
}

// MarkCompleted records the task as done. It returns true only on the
// first transition; repeated calls leave the document unchanged. A prior
// failure record for the same task is retained for audit; IsCompleted is
// the only place where completion takes precedence.
func (d *Document) MarkCompleted(city string, year int) bool {
	if d.IsCompleted(city, year) {
		return false
	}
	d.Completed[city] = insertYear(d.Completed[city], year)
	d.Stats.CompletedTasks++
	d.LastUpdated = time.Now().UTC()
	return true
}

// MarkFailed records the latest failure for the task. Completed entries
// are left alone. Re-failing an already failed task refreshes the record
// without touching the counters; the return value reports whether a new
// failure entry was created.
func (d *Document) MarkFailed(city string, year int, reason string) bool {
	yearKey := strconv.Itoa(year)
	byYear, ok := d.Failed[city]
	if !ok {
		byYear = make(map[string]FailureRecord)
		d.Failed[city] = byYear
	}
	_, existed := byYear[yearKey]
	byYear[yearKey] = FailureRecord{Timestamp: time.Now().UTC(), Reason: reason}
	if !existed {
		d.Stats.FailedTasks++
	}
	d.LastUpdated = time.Now().UTC()
	return !existed
}

// MergeCompletedFrom copies the donor's completed entries into this
// document. Only completions cross over; the donor's failures are ignored,
// and failure records here survive as audit history. It returns the
// number of tasks newly marked complete.
func (d *Document) MergeCompletedFrom(donor *Document) int {
	added := 0
	cities := make([]string, 0, len(donor.Completed))
	for city := range donor.Completed {
		cities = append(cities, city)
	}
	sort.Strings(cities)
	for _, city := range cities {
		for _, year := range donor.Completed[city] {
			if d.MarkCompleted(city, year) {
				added++
			}
		}
	}
	return added
}

// CompletedCount returns the number of completed (city, year) entries.
func (d *Document) CompletedCount() int {
	n := 0
	for _, years := range d.Completed {
		n += len(years)
	}
	return n
}

// insertYear inserts year into a sorted slice, keeping it sorted and
// duplicate free.
func insertYear(years []int, year int) []int {
	i := sort.SearchInts(years, year)
	if i < len(years) && years[i] == year {
		return years
	}
	years = append(years, 0)
	copy(years[i+1:], years[i:])
	years[i] = year
	return years
}
