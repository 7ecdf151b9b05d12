package weather

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// cityCoords is the on-disk shape of one city entry in city_list.json
type cityCoords struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// cityListFile mirrors the city_list.json layout:
// {"city": {province: {city: {"latitude": .., "longitude": ..}}}}
type cityListFile struct {
	City map[string]map[string]cityCoords `json:"city"`
}

// CityList holds the collection targets grouped by province
type CityList struct {
	byProvince map[string][]City
}

// LoadCityList reads a city list file and returns the targets it contains.
// Cities without coordinates are kept; providers that require coordinates
// reject those tasks when the fetch is attempted.
func LoadCityList(path string) (*CityList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read city list: %w", err)
	}

	var file cityListFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse city list: %w", err)
	}
	if len(file.City) == 0 {
		return nil, fmt.Errorf("city list %s contains no provinces", path)
	}

	list := &CityList{byProvince: make(map[string][]City, len(file.City))}
	for province, cities := range file.City {
		for name, coords := range cities {
			list.byProvince[province] = append(list.byProvince[province], City{
				Name:      name,
				Province:  province,
				Latitude:  coords.Latitude,
				Longitude: coords.Longitude,
			})
		}
		sort.Slice(list.byProvince[province], func(i, j int) bool {
			return list.byProvince[province][i].Name < list.byProvince[province][j].Name
		})
	}

	return list, nil
}

// Provinces returns the province names in sorted order
func (cl *CityList) Provinces() []string {
	provinces := make([]string, 0, len(cl.byProvince))
	for p := range cl.byProvince {
		provinces = append(provinces, p)
	}
	sort.Strings(provinces)
	return provinces
}

// Cities returns the cities of one province, sorted by name
func (cl *CityList) Cities(province string) []City {
	return cl.byProvince[province]
}

// Tasks builds the cartesian product of target cities and years, optionally
// filtered to the given provinces (all provinces when empty).
func (cl *CityList) Tasks(provinces []string, years []int) []Task {
	if len(provinces) == 0 {
		provinces = cl.Provinces()
	}

	var tasks []Task
	for _, province := range provinces {
		for _, city := range cl.byProvince[province] {
			for _, year := range years {
				tasks = append(tasks, Task{City: city, Year: year})
			}
		}
	}
	return tasks
}
