package ecweather

import (
	"encoding/csv"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
)

const earthRadiusKm = 6371.0

var ErrNoSites = errors.New("ecweather: site list is empty")

// Site is one row of the Environment Canada site list.
type Site struct {
	Code      string
	Name      string
	Province  string
	Latitude  float64
	Longitude float64
}

// StationId is the "PR/s0000###" form used in configuration.
func (s Site) StationId() string {
	return s.Province + "/" + s.Code
}

// ParseSiteList reads the site list CSV. Lines before the
// "Codes,English Names,..." header are ignored, as are rows without
// coordinates.
func ParseSiteList(r io.Reader) ([]Site, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var header map[string]int
	var sites []Site
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if header == nil {
			if len(row) > 0 && strings.TrimSpace(strings.TrimPrefix(row[0], "\ufeff")) == "Codes" {
				header = map[string]int{}
				for i, col := range row {
					header[strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))] = i
				}
			}
			continue
		}
		site, ok := siteFromRow(row, header)
		if ok {
			sites = append(sites, site)
		}
	}
	if len(sites) == 0 {
		return nil, ErrNoSites
	}
	return sites, nil
}

func siteFromRow(row []string, header map[string]int) (Site, bool) {
	col := func(name string) string {
		i, ok := header[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	lat, err := parseCoordinate(col("Latitude"))
	if err != nil {
		return Site{}, false
	}
	lon, err := parseCoordinate(col("Longitude"))
	if err != nil {
		return Site{}, false
	}
	return Site{
		Code:      col("Codes"),
		Name:      col("English Names"),
		Province:  col("Province Codes"),
		Latitude:  lat,
		Longitude: lon,
	}, true
}

// parseCoordinate accepts "45.40N" / "75.70W" style values and plain numbers.
func parseCoordinate(s string) (float64, error) {
	if s == "" {
		return 0, errors.New("empty coordinate")
	}
	sign := 1.0
	switch s[len(s)-1] {
	case 'N', 'E':
		s = s[:len(s)-1]
	case 'S', 'W':
		s = s[:len(s)-1]
		sign = -1
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return sign * v, nil
}

// ClosestSite returns the site nearest to lat/lon by great-circle distance.
func ClosestSite(sites []Site, lat, lon float64) (Site, error) {
	if len(sites) == 0 {
		return Site{}, ErrNoSites
	}
	best := sites[0]
	bestDist := distanceKm(lat, lon, best.Latitude, best.Longitude)
	for _, s := range sites[1:] {
		if d := distanceKm(lat, lon, s.Latitude, s.Longitude); d < bestDist {
			best, bestDist = s, d
		}
	}
	return best, nil
}

func distanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
