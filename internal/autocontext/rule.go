// Package autocontext infers a context label (e.g. "home_night",
// "vehicle_transport") from live motion, GPS, Wi-Fi and time-of-day signals by
// evaluating an ordered list of declarative rules.
package autocontext

// Unknown is the sentinel label returned when no rule matches.
const Unknown = "unknown"

// GPSQuality is a coarse fix-quality tier.
type GPSQuality string

const (
	GPSGood GPSQuality = "good"
	GPSPoor GPSQuality = "poor"
	GPSNone GPSQuality = "none"
)

func validGPSQuality(q GPSQuality) bool {
	switch q {
	case GPSGood, GPSPoor, GPSNone:
		return true
	}
	return false
}

// Conditions is a conjunction of optional predicates. A nil field means
// "don't care". Speeds are in km/h. An hour range is circular: start=22,
// end=6 covers 22:00–23:59 and 00:00–05:59; both bounds must be present for
// the range to be evaluable.
type Conditions struct {
	SpeedMinKmh *float64    `json:"speed_min_kmh,omitempty"`
	SpeedMaxKmh *float64    `json:"speed_max_kmh,omitempty"`
	GPSQuality  *GPSQuality `json:"gps_quality,omitempty"`
	KnownWifi   *bool       `json:"known_wifi,omitempty"`
	HourStart   *int        `json:"hour_start,omitempty"`
	HourEnd     *int        `json:"hour_end,omitempty"`
}

// Rule is a declarative context matcher. Higher Priority wins; ties go to the
// rule loaded earlier (built-ins before custom, declaration/creation order
// within each source).
type Rule struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Priority    int        `json:"priority"`
	Conditions  Conditions `json:"conditions"`
	Result      string     `json:"result"`
}

// Snapshot is the live signal input to one evaluation. SpeedKmh is nil when
// no motion signal is available; rules with speed bounds then do not match.
type Snapshot struct {
	SpeedKmh   *float64
	GPSQuality GPSQuality
	KnownWifi  bool
	Hour       int // 0–23
}

// TemplateCategory groups rule templates in pickers.
type TemplateCategory string

const (
	CategoryLocation  TemplateCategory = "location"
	CategoryActivity  TemplateCategory = "activity"
	CategoryTransport TemplateCategory = "transport"
	CategoryTime      TemplateCategory = "time"
	CategoryCustom    TemplateCategory = "custom"
)

// Template is a pre-filled rule skeleton. Instantiation assigns a fresh id
// and applies caller overrides on top of Defaults.
type Template struct {
	ID       string
	Name     string
	Category TemplateCategory
	Defaults Rule
}
