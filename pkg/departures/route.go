package departures

import (
	"sort"
	"strings"

	"timetable2parquet/pkg/types"
)

const pathSeparator = "|"

// EffectivePath is the event's changed-or-planned path, "" for a nil event.
func EffectivePath(ev *types.TrainEvent) string {
	return types.Value(ev.Path())
}

// BuildRoute places the origin station between the arrival and departure
// path fragments, leaving out whichever fragment is empty.
func BuildRoute(arrivalPath, departurePath, origin string) string {
	switch {
	case arrivalPath == "" && departurePath == "":
		return origin
	case arrivalPath == "":
		return origin + pathSeparator + departurePath
	case departurePath == "":
		return arrivalPath + pathSeparator + origin
	default:
		return arrivalPath + pathSeparator + origin + pathSeparator + departurePath
	}
}

// Destination is the last station on the departure path, or the origin when
// the path has no usable last segment.
func Destination(departurePath, origin string) string {
	segments := strings.Split(departurePath, pathSeparator)
	if last := segments[len(segments)-1]; last != "" {
		return last
	}
	return origin
}

// Disturbances joins the distinct message categories of the given message
// lists, sorted ascending.
func Disturbances(lists ...[]types.Message) string {
	seen := make(map[string]struct{})
	var categories []string
	for _, messages := range lists {
		for _, m := range messages {
			if m.Category == nil || *m.Category == "" {
				continue
			}
			if _, ok := seen[*m.Category]; ok {
				continue
			}
			seen[*m.Category] = struct{}{}
			categories = append(categories, *m.Category)
		}
	}
	sort.Strings(categories)
	return strings.Join(categories, pathSeparator)
}
