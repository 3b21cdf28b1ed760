package types

import "time"

// Departure is one flattened output row. Column names match the bronze
// parquet schema consumed downstream.
type Departure struct {
	TripID        string `json:"trip_id" csv:"trip_id"`
	Train         string `json:"train" csv:"train"`
	Destination   string `json:"destination" csv:"destination"`
	Path          string `json:"path" csv:"path"`
	ScheduledTime string `json:"scheduled_time" csv:"scheduled_time"`
	Platform      string `json:"platform" csv:"platform"`
	Delay         int32  `json:"delay" csv:"delay"`
	Disturbances  string `json:"service_notices" csv:"service_notices"`
}

// Batch is the set of departures fetched by one run.
type Batch struct {
	RunID      string
	StationID  string
	Station    string
	FetchedAt  time.Time
	Departures []Departure
}
