package enums

// TimeOfDay buckets an hour of the day for ordering-pattern analysis.
type TimeOfDay string

const (
	TimeOfDayMorning   TimeOfDay = "morning"
	TimeOfDayAfternoon TimeOfDay = "afternoon"
	TimeOfDayEvening   TimeOfDay = "evening"
	TimeOfDayNight     TimeOfDay = "night"
)

// TimeOfDayOrder is the canonical bucket order, also used to break ties.
var TimeOfDayOrder = []TimeOfDay{
	TimeOfDayMorning,
	TimeOfDayAfternoon,
	TimeOfDayEvening,
	TimeOfDayNight,
}

// String implements fmt.Stringer.
func (t TimeOfDay) String() string {
	return string(t)
}

// TimeOfDayForHour maps a 0-23 hour onto its bucket: morning 6-11, afternoon 12-17,
// evening 18-21, night 22-5.
func TimeOfDayForHour(hour int) TimeOfDay {
	switch {
	case hour >= 6 && hour <= 11:
		return TimeOfDayMorning
	case hour >= 12 && hour <= 17:
		return TimeOfDayAfternoon
	case hour >= 18 && hour <= 21:
		return TimeOfDayEvening
	default:
		return TimeOfDayNight
	}
}
