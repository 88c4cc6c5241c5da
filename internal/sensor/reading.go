// Package sensor defines the vendor-independent sensor adapter contract and
// the normalized reading emitted by every adapter.
package sensor

import "time"

// Reading is one decoded sample from a physical sensor. Fields a vendor's
// protocol does not expose (or that have not arrived yet) are nil; a reading
// is immutable once emitted.
type Reading struct {
	PM1          *float64  `json:"pm1_ugm3,omitempty"`
	PM25         *float64  `json:"pm25_ugm3,omitempty"`
	PM10         *float64  `json:"pm10_ugm3,omitempty"`
	TemperatureC *float64  `json:"temperature_c,omitempty"`
	HumidityPct  *float64  `json:"humidity_pct,omitempty"`
	PressureHpa  *float64  `json:"pressure_hpa,omitempty"`
	TVOCPpb      *float64  `json:"tvoc_ppb,omitempty"`
	BatteryPct   *int      `json:"battery_pct,omitempty"`
	Charging     bool      `json:"charging"`
	Timestamp    time.Time `json:"timestamp"`
	SourceLabel  string    `json:"source_label"`
}

// DataHandler receives each emitted reading, synchronously from the
// notification handler that produced it.
type DataHandler func(Reading)

// BatteryHandler receives battery/charging updates.
type BatteryHandler func(levelPct int, charging bool)
