package config

import "github.com/mattpat48/se4iot-se4as/pkg/messages"

// DefaultDensity is the number of sensors per type per location
const DefaultDensity = 2

// thresholdRatio sets default thresholds relative to a type's max_v
const thresholdRatio = 0.8

// LAquilaPresets are well-known places of L'Aquila that can be added as locations
var LAquilaPresets = map[string]messages.Coordinates{
	"Piazza Duomo":              {Lat: 42.3495, Lon: 13.3995},
	"Fontana delle 99 Cannelle": {Lat: 42.3441, Lon: 13.3903},
	"Forte Spagnolo":            {Lat: 42.3563, Lon: 13.4029},
	"Basilica di Collemaggio":   {Lat: 42.3440, Lon: 13.4057},
	"Parco del Castello":        {Lat: 42.3551, Lon: 13.4011},
	"Villa Comunale":            {Lat: 42.3466, Lon: 13.3972},
	"Stazione Ferroviaria":      {Lat: 42.3403, Lon: 13.3886},
	"Università di Coppito":     {Lat: 42.3680, Lon: 13.3520},
}

var defaultLocations = []string{"Piazza Duomo", "Forte Spagnolo", "Villa Comunale"}

var defaultSensorParams = []messages.SensorParam{
	{Type: "temperature", Unit: "°C", MinV: -10, MaxV: 45, Volatility: 0.5},
	{Type: "humidity", Unit: "%", MinV: 0, MaxV: 100, Volatility: 1.0},
	{Type: "co2", Unit: "ppm", MinV: 350, MaxV: 5000, Volatility: 20},
	{Type: "noise_level", Unit: "dB", MinV: 30, MaxV: 120, Volatility: 2.0},
	{Type: "traffic_speed", Unit: "km/h", MinV: 0, MaxV: 90, Volatility: 3.0},
	{Type: "rain_level", Unit: "mm/h", MinV: 0, MaxV: 200, Volatility: 1.0},
	{Type: "seismic", Unit: "Richter", MinV: 0, MaxV: 10, Volatility: 0.1},
}

// DefaultFleetConfig returns the configuration used when nothing is restored
func DefaultFleetConfig() FleetConfig {
	coords := make(map[string]messages.Coordinates, len(defaultLocations))
	for _, loc := range defaultLocations {
		coords[loc] = LAquilaPresets[loc]
	}
	return FleetConfig{
		Locations:      append([]string(nil), defaultLocations...),
		LocationCoords: coords,
		SensorParams:   append([]messages.SensorParam(nil), defaultSensorParams...),
		Density:        DefaultDensity,
	}
}

// DefaultThresholds places every default type's threshold at 80% of its max_v
func DefaultThresholds() map[string]float64 {
	out := make(map[string]float64, len(defaultSensorParams))
	for _, p := range defaultSensorParams {
		out[p.Type] = p.MaxV * thresholdRatio
	}
	return out
}
