package types

// Timetable is one decoded plan or changes payload for a station.
type Timetable struct {
	Station string `json:"station,omitempty"`
	EVA     string `json:"eva,omitempty"`
	Stops   []Stop `json:"stops"`
}

// Stop is a single visit of a train to the station. Arrival, Departure and
// TrainLine are nil when the corresponding element was absent from the payload.
type Stop struct {
	ID        string      `json:"id"`
	Messages  []Message   `json:"messages,omitempty"`
	Arrival   *TrainEvent `json:"arrival,omitempty"`
	Departure *TrainEvent `json:"departure,omitempty"`
	TrainLine *TrainLine  `json:"train_line,omitempty"`
}

// TrainEvent is an arrival or departure. A nil field means the attribute was
// not sent, which is distinct from an attribute sent with an empty value.
type TrainEvent struct {
	ActualTime  *string   `json:"ct,omitempty"`
	PlannedTime *string   `json:"pt,omitempty"`
	PlannedPath *string   `json:"ppth,omitempty"`
	ChangedPath *string   `json:"cpth,omitempty"`
	Platform    *string   `json:"pp,omitempty"`
	Line        *string   `json:"l,omitempty"`
	Category    *string   `json:"c,omitempty"`
	Number      *string   `json:"n,omitempty"`
	Messages    []Message `json:"messages,omitempty"`
}

// Path returns the changed path when the event was rerouted, otherwise the
// planned path.
func (e *TrainEvent) Path() *string {
	if e == nil {
		return nil
	}
	if e.ChangedPath != nil {
		return e.ChangedPath
	}
	return e.PlannedPath
}

// TrainLine is the static trip label (category "ICE", number "147").
type TrainLine struct {
	Category *string `json:"c,omitempty"`
	Number   *string `json:"n,omitempty"`
	Filter   *string `json:"f,omitempty"`
	Type     *string `json:"t,omitempty"`
	Owner    *string `json:"o,omitempty"`
}

// Message is a service notice attached to a stop or an event.
type Message struct {
	ID           *string `json:"id,omitempty"`
	Type         *string `json:"t,omitempty"`
	Code         *string `json:"c,omitempty"`
	Category     *string `json:"cat,omitempty"`
	ValidFrom    *string `json:"from,omitempty"`
	ValidTo      *string `json:"to,omitempty"`
	Timestamp    *string `json:"ts,omitempty"`
	TimestampTTS *string `json:"ts_tts,omitempty"`
}

// String returns a pointer to s. Handy for building fixtures.
func String(s string) *string {
	return &s
}

// Value dereferences p, returning "" for nil.
func Value(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
