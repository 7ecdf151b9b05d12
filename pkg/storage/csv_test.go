package storage

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"weathercollect/pkg/weather"
)

func sampleRecords() []weather.Record {
	return []weather.Record{
		{Date: "2020-01-01", Temp: 10, SolarEnergy: 4},
		{Date: "2020-01-02", Temp: 20, SolarEnergy: 8},
	}
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open output file: %v", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse output file: %v", err)
	}
	return rows
}

func findFile(t *testing.T, dir, prefix string) string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), prefix) {
			return filepath.Join(dir, entry.Name())
		}
	}
	t.Fatalf("No file with prefix %q in %s", prefix, dir)
	return ""
}

func TestCSVWriterWritesHeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewCSVWriter(dir)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}

	city := weather.City{Name: "Hangzhou", Province: "Zhejiang"}
	if err := writer.Write(city, 2020, sampleRecords()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	path := findFile(t, dir, "Zhejiang_weather_data_2020_")
	rows := readRows(t, path)

	if len(rows) != 2 {
		t.Fatalf("Expected header plus 1 row, got %d rows", len(rows))
	}
	wantHeader := []string{"province", "city", "year", "avg_temperature", "avg_solar_energy"}
	for i, col := range wantHeader {
		if rows[0][i] != col {
			t.Errorf("Expected header %v, got %v", wantHeader, rows[0])
			break
		}
	}

	row := rows[1]
	if row[0] != "Zhejiang" || row[1] != "Hangzhou" || row[2] != "2020" {
		t.Errorf("Unexpected row: %v", row)
	}
	if row[3] != "15.00" {
		t.Errorf("Expected avg temperature 15.00, got %s", row[3])
	}
	if row[4] != "6.00" {
		t.Errorf("Expected avg solar 6.00, got %s", row[4])
	}
}

func TestCSVWriterSplitsByProvinceAndYear(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewCSVWriter(dir)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}

	hangzhou := weather.City{Name: "Hangzhou", Province: "Zhejiang"}
	nanjing := weather.City{Name: "Nanjing", Province: "Jiangsu"}

	if err := writer.Write(hangzhou, 2019, sampleRecords()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := writer.Write(hangzhou, 2020, sampleRecords()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := writer.Write(nanjing, 2019, sampleRecords()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read dir: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("Expected 3 output files, got %d", len(entries))
	}

	findFile(t, dir, "Zhejiang_weather_data_2019_")
	findFile(t, dir, "Zhejiang_weather_data_2020_")
	findFile(t, dir, "Jiangsu_weather_data_2019_")
}

func TestCSVWriterAppendsToSameFile(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewCSVWriter(dir)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}

	cities := []string{"Hangzhou", "Ningbo", "Wenzhou"}
	for _, name := range cities {
		city := weather.City{Name: name, Province: "Zhejiang"}
		if err := writer.Write(city, 2020, sampleRecords()); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	rows := readRows(t, findFile(t, dir, "Zhejiang_weather_data_2020_"))
	if len(rows) != 1+len(cities) {
		t.Errorf("Expected %d rows, got %d", 1+len(cities), len(rows))
	}
}

func TestCSVWriterConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewCSVWriter(dir)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			city := weather.City{Name: "City" + strings.Repeat("x", i%3), Province: "Zhejiang"}
			if err := writer.Write(city, 2020, sampleRecords()); err != nil {
				t.Errorf("Write failed: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	rows := readRows(t, findFile(t, dir, "Zhejiang_weather_data_2020_"))
	if len(rows) != n+1 {
		t.Errorf("Expected %d rows, got %d", n+1, len(rows))
	}
}
