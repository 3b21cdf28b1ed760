// Package naming resolves display names for trains from the optional fields of
// a timetable stop. Resolution is an ordered list of candidates; the first one
// that produces a value wins.
package naming

import (
	"fmt"

	"timetable2parquet/pkg/types"
)

// Unknown is the name used when no candidate produces a value.
const Unknown = "Unknown"

// Candidate yields a name, or false when it has nothing to offer.
type Candidate func() (string, bool)

// First evaluates candidates in order and returns the first value produced.
func First(candidates ...Candidate) (string, bool) {
	for _, c := range candidates {
		if name, ok := c(); ok {
			return name, true
		}
	}
	return "", false
}

// FirstOr is First with a fallback value.
func FirstOr(fallback string, candidates ...Candidate) string {
	if name, ok := First(candidates...); ok {
		return name
	}
	return fallback
}

// LineLabel offers the event's line label when it is present and non-empty.
func LineLabel(ev *types.TrainEvent) Candidate {
	return func() (string, bool) {
		if ev == nil || ev.Line == nil || *ev.Line == "" {
			return "", false
		}
		return *ev.Line, true
	}
}

// EventCategoryNumber offers "{category} {number}" when the event carries both.
func EventCategoryNumber(ev *types.TrainEvent) Candidate {
	return func() (string, bool) {
		if ev == nil || ev.Category == nil || ev.Number == nil {
			return "", false
		}
		return fmt.Sprintf("%s %s", *ev.Category, *ev.Number), true
	}
}

// TrainLineName offers "{category} {number}", or the category alone when the
// number is missing.
func TrainLineName(tl *types.TrainLine) Candidate {
	return func() (string, bool) {
		if tl == nil || tl.Category == nil {
			return "", false
		}
		if tl.Number == nil {
			return *tl.Category, true
		}
		return fmt.Sprintf("%s %s", *tl.Category, *tl.Number), true
	}
}

// Lookup offers the entry stored for id.
func Lookup(names map[string]string, id string) Candidate {
	return func() (string, bool) {
		name, ok := names[id]
		return name, ok
	}
}

// SyntheticID builds "ID:" plus the first eight characters of the stop id.
func SyntheticID(id string) string {
	runes := []rune(id)
	if len(runes) > 8 {
		runes = runes[:8]
	}
	return "ID:" + string(runes)
}
