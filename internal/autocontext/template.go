package autocontext

// Templates returns the compile-time rule templates, one or more per category.
func Templates() []Template {
	return []Template{
		{
			ID:       "tpl-known-place",
			Name:     "Known place",
			Category: CategoryLocation,
			Defaults: Rule{
				Name:        "My place",
				Description: "Stationary on a known Wi-Fi network",
				Priority:    55,
				Conditions: Conditions{
					SpeedMaxKmh: ptr(1.0),
					KnownWifi:   ptr(true),
				},
				Result: "indoor_custom_place",
			},
		},
		{
			ID:       "tpl-outdoor-workout",
			Name:     "Outdoor workout",
			Category: CategoryActivity,
			Defaults: Rule{
				Name:        "Workout",
				Description: "Moving outdoors at workout pace",
				Priority:    58,
				Conditions: Conditions{
					SpeedMinKmh: ptr(3.0),
					SpeedMaxKmh: ptr(13.0),
					GPSQuality:  ptr(GPSGood),
				},
				Result: "workout_outdoor",
			},
		},
		{
			ID:       "tpl-commute",
			Name:     "Commute",
			Category: CategoryTransport,
			Defaults: Rule{
				Name:        "Commute",
				Description: "Motorized transport",
				Priority:    68,
				Conditions: Conditions{
					SpeedMinKmh: ptr(25.0),
				},
				Result: "commute_transport",
			},
		},
		{
			ID:       "tpl-time-window",
			Name:     "Time window",
			Category: CategoryTime,
			Defaults: Rule{
				Name:        "Work hours",
				Description: "Fixed daily time window",
				Priority:    45,
				Conditions: Conditions{
					HourStart: ptr(9),
					HourEnd:   ptr(17),
				},
				Result: "work_hours",
			},
		},
		{
			ID:       "tpl-blank",
			Name:     "Blank rule",
			Category: CategoryCustom,
			Defaults: Rule{
				Name:     "Custom rule",
				Priority: 50,
				Result:   "custom_context",
			},
		},
	}
}

func templateByID(id string) (Template, bool) {
	for _, t := range Templates() {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}
