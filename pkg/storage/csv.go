// Package storage persists collected weather data as CSV files, one file
// per (province, year) pair.
package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"weathercollect/pkg/logger"
	"weathercollect/pkg/weather"
)

var csvHeader = []string{"province", "city", "year", "avg_temperature", "avg_solar_energy"}

// CSVWriter appends one summary row per completed (city, year) task to a
// per-province, per-year CSV file. File names carry the run timestamp, so
// separate runs never clobber each other's output.
type CSVWriter struct {
	dir       string
	timestamp string
	logger    logger.Logger

	mu    sync.Mutex
	files map[string]*os.File
	csvs  map[string]*csv.Writer
}

// NewCSVWriter creates a writer rooted at dir, creating the directory if
// needed.
func NewCSVWriter(dir string) (*CSVWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &CSVWriter{
		dir:       dir,
		timestamp: time.Now().Format("20060102_150405"),
		logger:    logger.GetLogger(),
		files:     make(map[string]*os.File),
		csvs:      make(map[string]*csv.Writer),
	}, nil
}

// Write appends the yearly averages for one city.
func (w *CSVWriter) Write(city weather.City, year int, records []weather.Record) error {
	avgTemp, avgSolar := weather.Averages(records)

	w.mu.Lock()
	defer w.mu.Unlock()

	writer, err := w.writerFor(city.Province, year)
	if err != nil {
		return err
	}

	row := []string{
		city.Province,
		city.Name,
		strconv.Itoa(year),
		strconv.FormatFloat(avgTemp, 'f', 2, 64),
		strconv.FormatFloat(avgSolar, 'f', 2, 64),
	}
	if err := writer.Write(row); err != nil {
		return fmt.Errorf("failed to write row for %s/%d: %w", city.Name, year, err)
	}

	// Flush per row so completed work survives an interrupted run
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush output for %s/%d: %w", city.Name, year, err)
	}

	w.logger.DebugWithFields("Row written", map[string]interface{}{
		"province":  city.Province,
		"city":      city.Name,
		"year":      year,
		"avg_temp":  avgTemp,
		"avg_solar": avgSolar,
	})
	return nil
}

// writerFor returns the CSV writer for a (province, year) file, opening
// it and writing the header on first use. Callers must hold w.mu.
func (w *CSVWriter) writerFor(province string, year int) (*csv.Writer, error) {
	key := fmt.Sprintf("%s_%d", province, year)
	if writer, ok := w.csvs[key]; ok {
		return writer, nil
	}

	name := fmt.Sprintf("%s_weather_data_%d_%s.csv", province, year, w.timestamp)
	path := filepath.Join(w.dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file %s: %w", name, err)
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write header to %s: %w", name, err)
	}

	w.files[key] = file
	w.csvs[key] = writer

	w.logger.InfoWithFields("Output file opened", map[string]interface{}{
		"path": path,
	})
	return writer, nil
}

// Close flushes and closes every open output file.
func (w *CSVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	for key, writer := range w.csvs {
		writer.Flush()
		if err := writer.Error(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := w.files[key].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	w.files = make(map[string]*os.File)
	w.csvs = make(map[string]*csv.Writer)
	return firstErr
}
