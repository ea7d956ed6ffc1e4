package domain

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Sensor is one fixed entry of the monitoring topology.
type Sensor struct {
	ID       string
	Category Category
	Geo      Geo
	Name     string
}

// DefaultTopology returns the coastal network around Sydney used by the
// simulator when no other topology is configured.
func DefaultTopology() []Sensor {
	return []Sensor{
		{ID: "TG001", Category: TideGauge, Geo: Geo{Lat: -33.8688, Lon: 151.2093}, Name: "Sydney Harbour"},
		{ID: "TG002", Category: TideGauge, Geo: Geo{Lat: -33.9249, Lon: 151.2424}, Name: "Botany Bay"},
		{ID: "WS001", Category: WeatherStation, Geo: Geo{Lat: -33.8765, Lon: 151.2052}, Name: "Circular Quay"},
		{ID: "WS002", Category: WeatherStation, Geo: Geo{Lat: -33.8900, Lon: 151.2500}, Name: "Bondi Beach"},
		{ID: "WQ001", Category: WaterQuality, Geo: Geo{Lat: -33.8600, Lon: 151.2000}, Name: "Harbour Bridge"},
		{ID: "WQ002", Category: WaterQuality, Geo: Geo{Lat: -33.9100, Lon: 151.2300}, Name: "Coogee Beach"},
	}
}
