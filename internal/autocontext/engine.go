package autocontext

// Evaluate returns the result of the highest-priority matching rule, or
// Unknown when nothing matches. At equal priority the rule earliest in the
// list wins, so the caller's load order (built-ins first, then custom in
// creation order) is the tie-break contract.
//
// Evaluation never fails: a condition that cannot be checked against the
// snapshot (e.g. a speed bound with no speed signal) simply does not match.
func Evaluate(rules []Rule, s Snapshot) string {
	best := -1
	result := Unknown
	for _, r := range rules {
		if !matches(r.Conditions, s) {
			continue
		}
		if r.Priority > best {
			best = r.Priority
			result = r.Result
		}
	}
	return result
}

func matches(c Conditions, s Snapshot) bool {
	if c.SpeedMinKmh != nil || c.SpeedMaxKmh != nil {
		if s.SpeedKmh == nil {
			return false
		}
		if c.SpeedMinKmh != nil && *s.SpeedKmh < *c.SpeedMinKmh {
			return false
		}
		if c.SpeedMaxKmh != nil && *s.SpeedKmh > *c.SpeedMaxKmh {
			return false
		}
	}

	if c.GPSQuality != nil && s.GPSQuality != *c.GPSQuality {
		return false
	}

	if c.KnownWifi != nil && s.KnownWifi != *c.KnownWifi {
		return false
	}

	if c.HourStart != nil || c.HourEnd != nil {
		// Both bounds are required; a half-specified range is unevaluable.
		if c.HourStart == nil || c.HourEnd == nil {
			return false
		}
		if !hourInRange(s.Hour, *c.HourStart, *c.HourEnd) {
			return false
		}
	}

	return true
}

// hourInRange checks membership in a circular hour interval.
func hourInRange(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour <= end
	}
	return hour >= start || hour <= end
}
