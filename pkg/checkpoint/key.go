package checkpoint

import (
	"fmt"
	"strings"
)

// Key identifies one checkpoint document. Province and Year narrow the
// scope: a zero Province means the source-level document, a zero Year the
// province-level one.
type Key struct {
	Source   string
	Province string
	Year     int
}

// SourceKey returns the key for a source-level document.
func SourceKey(source string) Key {
	return Key{Source: source}
}

// ProvinceKey returns the key for a province-level document.
func ProvinceKey(source, province string) Key {
	return Key{Source: source, Province: province}
}

// YearKey returns the key for a province/year-level document.
func YearKey(source, province string, year int) Key {
	return Key{Source: source, Province: province, Year: year}
}

// Filename returns the checkpoint file name for this key.
func (k Key) Filename() string {
	parts := []string{sanitize(k.Source)}
	if k.Province != "" {
		parts = append(parts, sanitize(k.Province))
		if k.Year != 0 {
			parts = append(parts, fmt.Sprintf("%d", k.Year))
		}
	}
	return strings.Join(parts, "_") + "_checkpoint.json"
}

func (k Key) String() string {
	if k.Province == "" {
		return k.Source
	}
	if k.Year == 0 {
		return k.Source + "/" + k.Province
	}
	return fmt.Sprintf("%s/%s/%d", k.Source, k.Province, k.Year)
}

// sanitize makes a name safe to embed in a file name.
func sanitize(name string) string {
	replacer := strings.NewReplacer(" ", "-", "/", "-", "\\", "-")
	return replacer.Replace(strings.TrimSpace(name))
}
