package weather

import "fmt"

// City identifies one collection target with its coordinates
type City struct {
	Name      string  `json:"name"`
	Province  string  `json:"province"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Task is the unit of work: one (city, year) pair to fetch
type Task struct {
	City City
	Year int
}

func (t Task) String() string {
	return fmt.Sprintf("%s/%s/%d", t.City.Province, t.City.Name, t.Year)
}

// Record is one day of weather observations from a provider
type Record struct {
	Date        string  `json:"date"` // YYYY-MM-DD
	Temp        float64 `json:"temp"`
	TempMax     float64 `json:"temp_max"`
	TempMin     float64 `json:"temp_min"`
	Humidity    float64 `json:"humidity"`
	Precip      float64 `json:"precip"`
	SolarEnergy float64 `json:"solar_energy"` // MJ/m²
}

// Averages computes the mean temperature and mean solar energy across
// records. Records with a zero date are skipped.
func Averages(records []Record) (avgTemp, avgSolar float64) {
	if len(records) == 0 {
		return 0, 0
	}
	var tempSum, solarSum float64
	n := 0
	for _, r := range records {
		if r.Date == "" {
			continue
		}
		tempSum += r.Temp
		solarSum += r.SolarEnergy
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return tempSum / float64(n), solarSum / float64(n)
}
