package departures

import (
	"time"

	"timetable2parquet/pkg/types"
)

const (
	// dbTimeLayout is the compact YYMMDDHHMM form used by the timetables API.
	dbTimeLayout = "0601021504"

	displayLayout = "2006-01-02 15:04:05"
)

// FormatDBTime renders a YYMMDDHHMM timestamp as "YYYY-MM-DD HH:MM:SS".
// Anything that is not a 10 character parseable timestamp is returned as is.
func FormatDBTime(raw string) string {
	if len(raw) != len(dbTimeLayout) {
		return raw
	}
	t, err := time.Parse(dbTimeLayout, raw)
	if err != nil {
		return raw
	}
	return t.Format(displayLayout)
}

// DelayMinutes is actual minus planned in whole minutes. It is 0 unless both
// timestamps are present and parse.
func DelayMinutes(planned, actual *string) int32 {
	if planned == nil || actual == nil {
		return 0
	}
	p, err := time.Parse(dbTimeLayout, *planned)
	if err != nil {
		return 0
	}
	a, err := time.Parse(dbTimeLayout, *actual)
	if err != nil {
		return 0
	}
	return int32(a.Sub(p) / time.Minute)
}

// scheduledTime prefers the live time over the planned one.
func scheduledTime(ev *types.TrainEvent) string {
	if ev.ActualTime != nil {
		return FormatDBTime(*ev.ActualTime)
	}
	return FormatDBTime(types.Value(ev.PlannedTime))
}
