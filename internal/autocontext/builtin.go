package autocontext

// Built-in rules ship with the application and are immutable. Their order
// here is their load order, which fixes the tie-break at equal priority.

func ptr[T any](v T) *T { return &v }

// BuiltinRules returns a fresh copy of the built-in rule set so callers can
// never mutate the originals.
func BuiltinRules() []Rule {
	return []Rule{
		{
			ID:          "builtin-rail-transport",
			Name:        "Rail transport",
			Description: "Sustained speed with no GPS fix, typical of metro or train travel",
			Priority:    75,
			Conditions: Conditions{
				SpeedMinKmh: ptr(20.0),
				GPSQuality:  ptr(GPSNone),
			},
			Result: "rail_transport",
		},
		{
			ID:          "builtin-vehicle-transport",
			Name:        "Vehicle transport",
			Description: "Road-vehicle speeds with a good GPS fix",
			Priority:    70,
			Conditions: Conditions{
				SpeedMinKmh: ptr(28.0),
				GPSQuality:  ptr(GPSGood),
			},
			Result: "vehicle_transport",
		},
		{
			ID:          "builtin-home-night",
			Name:        "Home at night",
			Description: "On a known Wi-Fi network during night hours",
			Priority:    65,
			Conditions: Conditions{
				KnownWifi: ptr(true),
				HourStart: ptr(22),
				HourEnd:   ptr(6),
			},
			Result: "home_night",
		},
		{
			ID:          "builtin-cycling",
			Name:        "Cycling",
			Description: "Cycling-range speed outdoors",
			Priority:    60,
			Conditions: Conditions{
				SpeedMinKmh: ptr(13.0),
				SpeedMaxKmh: ptr(28.0),
				GPSQuality:  ptr(GPSGood),
			},
			Result: "cycling_outdoor",
		},
		{
			ID:          "builtin-running",
			Name:        "Running",
			Description: "Running-range speed outdoors",
			Priority:    60,
			Conditions: Conditions{
				SpeedMinKmh: ptr(7.0),
				SpeedMaxKmh: ptr(13.0),
				GPSQuality:  ptr(GPSGood),
			},
			Result: "running_outdoor",
		},
		{
			ID:          "builtin-walking",
			Name:        "Walking",
			Description: "Walking-range speed outdoors",
			Priority:    55,
			Conditions: Conditions{
				SpeedMinKmh: ptr(3.0),
				SpeedMaxKmh: ptr(7.0),
				GPSQuality:  ptr(GPSGood),
			},
			Result: "walking_outdoor",
		},
		{
			ID:          "builtin-indoor-known-place",
			Name:        "Indoor at known place",
			Description: "Stationary on a known Wi-Fi network",
			Priority:    50,
			Conditions: Conditions{
				SpeedMaxKmh: ptr(1.0),
				KnownWifi:   ptr(true),
			},
			Result: "indoor_known_place",
		},
		{
			ID:          "builtin-indoor-generic",
			Name:        "Indoor",
			Description: "Stationary with no GPS fix",
			Priority:    40,
			Conditions: Conditions{
				SpeedMaxKmh: ptr(1.0),
				GPSQuality:  ptr(GPSNone),
			},
			Result: "indoor_generic",
		},
	}
}
