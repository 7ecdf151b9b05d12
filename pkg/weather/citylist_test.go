package weather

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleCityList = `{
  "city": {
    "Zhejiang": {
      "Hangzhou": {"latitude": 30.25, "longitude": 120.17},
      "Ningbo": {"latitude": 29.87, "longitude": 121.54}
    },
    "Jiangsu": {
      "Nanjing": {"latitude": 32.06, "longitude": 118.80}
    }
  }
}`

func writeCityList(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "city_list.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write city list: %v", err)
	}
	return path
}

func TestLoadCityList(t *testing.T) {
	list, err := LoadCityList(writeCityList(t, sampleCityList))
	if err != nil {
		t.Fatalf("Failed to load city list: %v", err)
	}

	provinces := list.Provinces()
	if len(provinces) != 2 {
		t.Fatalf("Expected 2 provinces, got %d", len(provinces))
	}
	if provinces[0] != "Jiangsu" || provinces[1] != "Zhejiang" {
		t.Errorf("Expected sorted provinces, got %v", provinces)
	}

	cities := list.Cities("Zhejiang")
	if len(cities) != 2 {
		t.Fatalf("Expected 2 cities in Zhejiang, got %d", len(cities))
	}
	if cities[0].Name != "Hangzhou" {
		t.Errorf("Expected Hangzhou first, got %s", cities[0].Name)
	}
	if cities[0].Latitude != 30.25 || cities[0].Longitude != 120.17 {
		t.Errorf("Unexpected coordinates: %+v", cities[0])
	}
	if cities[0].Province != "Zhejiang" {
		t.Errorf("Expected province Zhejiang, got %s", cities[0].Province)
	}
}

func TestLoadCityListKeepsCitiesWithoutCoordinates(t *testing.T) {
	list, err := LoadCityList(writeCityList(t, `{
	  "city": {
	    "Zhejiang": {
	      "Hangzhou": {"latitude": 30.25, "longitude": 120.17},
	      "Quzhou": {}
	    }
	  }
	}`))
	if err != nil {
		t.Fatalf("Failed to load city list: %v", err)
	}

	cities := list.Cities("Zhejiang")
	if len(cities) != 2 {
		t.Fatalf("Expected 2 cities, got %d", len(cities))
	}
	if cities[1].Name != "Quzhou" {
		t.Fatalf("Expected Quzhou to be kept, got %v", cities)
	}
	if cities[1].Latitude != 0 || cities[1].Longitude != 0 {
		t.Errorf("Expected zero coordinates, got %+v", cities[1])
	}
}

func TestLoadCityListErrors(t *testing.T) {
	if _, err := LoadCityList(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
	if _, err := LoadCityList(writeCityList(t, "not json")); err == nil {
		t.Error("Expected error for malformed file")
	}
	if _, err := LoadCityList(writeCityList(t, `{"city": {}}`)); err == nil {
		t.Error("Expected error for empty city list")
	}
}

func TestTasks(t *testing.T) {
	list, err := LoadCityList(writeCityList(t, sampleCityList))
	if err != nil {
		t.Fatalf("Failed to load city list: %v", err)
	}

	years := []int{2018, 2020}

	all := list.Tasks(nil, years)
	if len(all) != 6 { // 3 cities x 2 years
		t.Errorf("Expected 6 tasks, got %d", len(all))
	}

	scoped := list.Tasks([]string{"Zhejiang"}, years)
	if len(scoped) != 4 { // 2 cities x 2 years
		t.Errorf("Expected 4 tasks, got %d", len(scoped))
	}
	for _, task := range scoped {
		if task.City.Province != "Zhejiang" {
			t.Errorf("Unexpected province in scoped tasks: %s", task.City.Province)
		}
	}
}

func TestAverages(t *testing.T) {
	records := []Record{
		{Date: "2020-01-01", Temp: 10, SolarEnergy: 4},
		{Date: "2020-01-02", Temp: 20, SolarEnergy: 8},
		{Temp: 999, SolarEnergy: 999}, // no date, skipped
	}

	avgTemp, avgSolar := Averages(records)
	if avgTemp != 15 {
		t.Errorf("Expected avg temp 15, got %f", avgTemp)
	}
	if avgSolar != 6 {
		t.Errorf("Expected avg solar 6, got %f", avgSolar)
	}

	avgTemp, avgSolar = Averages(nil)
	if avgTemp != 0 || avgSolar != 0 {
		t.Error("Expected zero averages for empty input")
	}
}
