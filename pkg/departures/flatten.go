package departures

import (
	"timetable2parquet/pkg/naming"
	"timetable2parquet/pkg/types"
)

// NoPlatform is written when the departure carries no platform.
const NoPlatform = "--"

// Flatten turns every stop with a departure event into a Departure. Stops
// without a departure are skipped. Missing optional fields fall back to
// defaults, so this never fails.
func Flatten(stops []types.Stop, identities map[string]string, origin string) []types.Departure {
	var out []types.Departure
	for _, stop := range stops {
		if stop.Departure == nil {
			continue
		}
		out = append(out, flattenStop(stop, identities, origin))
	}
	return out
}

func flattenStop(stop types.Stop, identities map[string]string, origin string) types.Departure {
	dp := stop.Departure

	arrivalPath := EffectivePath(stop.Arrival)
	departurePath := EffectivePath(dp)

	platform := NoPlatform
	if dp.Platform != nil {
		platform = *dp.Platform
	}

	return types.Departure{
		TripID:        stop.ID,
		Train:         ResolveTrainName(stop, identities),
		Destination:   Destination(departurePath, origin),
		Path:          BuildRoute(arrivalPath, departurePath, origin),
		ScheduledTime: scheduledTime(dp),
		Platform:      platform,
		Delay:         DelayMinutes(dp.PlannedTime, dp.ActualTime),
		Disturbances:  Disturbances(stop.Messages, dp.Messages),
	}
}

// ResolveTrainName names the train departing from stop. Live identity fields
// on the departure win over the plan lookup, which wins over the static
// train line.
func ResolveTrainName(stop types.Stop, identities map[string]string) string {
	return naming.FirstOr(naming.Unknown,
		naming.LineLabel(stop.Departure),
		naming.EventCategoryNumber(stop.Departure),
		naming.Lookup(identities, stop.ID),
		naming.TrainLineName(stop.TrainLine),
	)
}
