package parser

import (
	"context"
	"errors"
	"testing"

	"timetable2parquet/pkg/types"
)

const changesXML = `<?xml version='1.0' encoding='UTF-8'?>
<timetable station="Berlin Hbf" eva="8011160">
  <s id="-5745923616633450137-2602101658-9" eva="8011160">
    <m id="r2247845" t="h" from="2602101600" to="2602102359" cat="Information" ts="2602101601" ts-tts="26-02-10 16:01:02.812" pr="2"/>
    <ar ct="2602101705" cpth="Hamburg Hbf|Spandau">
      <m id="r1" t="d" c="43" cat="Verspätung" ts="2602101650"/>
    </ar>
    <dp ct="2602101712" pt="2602101700" ppth="Südkreuz|Leipzig Hbf" pp="14" l="ICE">
      <m id="r2" t="d" c="43" cat="Verspätung" ts="2602101650"/>
      <m id="r3" t="f" cat="Bauarbeiten"/>
    </dp>
  </s>
  <s id="8211837094627381045-2602101710-1">
    <tl f="F" t="p" o="80" c="RE" n="3809"/>
    <dp pt="2602101715" ppth="Spandau|Potsdam"/>
  </s>
  <s id="42-2602101720-3">
    <ar/>
  </s>
</timetable>`

func TestParseTimetable_Stops(t *testing.T) {
	p := NewXMLParser()

	tt, err := p.ParseTimetable(context.Background(), []byte(changesXML))
	if err != nil {
		t.Fatalf("ParseTimetable failed: %v", err)
	}

	if tt.Station != "Berlin Hbf" {
		t.Errorf("Station = %q, want %q", tt.Station, "Berlin Hbf")
	}
	if tt.EVA != "8011160" {
		t.Errorf("EVA = %q, want %q", tt.EVA, "8011160")
	}
	if len(tt.Stops) != 3 {
		t.Fatalf("Expected 3 stops, got %d", len(tt.Stops))
	}

	first := tt.Stops[0]
	if first.ID != "-5745923616633450137-2602101658-9" {
		t.Errorf("ID = %q", first.ID)
	}
	if len(first.Messages) != 1 {
		t.Fatalf("Expected 1 stop message, got %d", len(first.Messages))
	}
	msg := first.Messages[0]
	if types.Value(msg.Category) != "Information" {
		t.Errorf("message category = %q, want %q", types.Value(msg.Category), "Information")
	}
	if types.Value(msg.TimestampTTS) != "26-02-10 16:01:02.812" {
		t.Errorf("message ts-tts = %q", types.Value(msg.TimestampTTS))
	}
	if types.Value(msg.ValidFrom) != "2602101600" || types.Value(msg.ValidTo) != "2602102359" {
		t.Errorf("message window = %q..%q", types.Value(msg.ValidFrom), types.Value(msg.ValidTo))
	}

	if first.Arrival == nil {
		t.Fatal("Expected arrival event")
	}
	if first.Arrival.PlannedPath != nil {
		t.Errorf("arrival planned path should be absent, got %q", *first.Arrival.PlannedPath)
	}
	if types.Value(first.Arrival.ChangedPath) != "Hamburg Hbf|Spandau" {
		t.Errorf("arrival changed path = %q", types.Value(first.Arrival.ChangedPath))
	}
	if len(first.Arrival.Messages) != 1 {
		t.Errorf("Expected 1 arrival message, got %d", len(first.Arrival.Messages))
	}

	dp := first.Departure
	if dp == nil {
		t.Fatal("Expected departure event")
	}
	checks := map[string]struct {
		got  *string
		want string
	}{
		"ct":   {dp.ActualTime, "2602101712"},
		"pt":   {dp.PlannedTime, "2602101700"},
		"ppth": {dp.PlannedPath, "Südkreuz|Leipzig Hbf"},
		"pp":   {dp.Platform, "14"},
		"l":    {dp.Line, "ICE"},
	}
	for name, c := range checks {
		if c.got == nil {
			t.Errorf("%s should be present", name)
			continue
		}
		if *c.got != c.want {
			t.Errorf("%s = %q, want %q", name, *c.got, c.want)
		}
	}
	if dp.Category != nil || dp.Number != nil || dp.ChangedPath != nil {
		t.Error("c, n and cpth should be absent on the departure")
	}
	if len(dp.Messages) != 2 {
		t.Errorf("Expected 2 departure messages, got %d", len(dp.Messages))
	}
	if first.TrainLine != nil {
		t.Error("TrainLine should be nil when tl is absent")
	}

	second := tt.Stops[1]
	if second.Arrival != nil {
		t.Error("Arrival should be nil when ar is absent")
	}
	if second.TrainLine == nil {
		t.Fatal("Expected train line")
	}
	if types.Value(second.TrainLine.Category) != "RE" || types.Value(second.TrainLine.Number) != "3809" {
		t.Errorf("train line = %q %q", types.Value(second.TrainLine.Category), types.Value(second.TrainLine.Number))
	}
	if types.Value(second.TrainLine.Owner) != "80" {
		t.Errorf("train line owner = %q", types.Value(second.TrainLine.Owner))
	}

	third := tt.Stops[2]
	if third.Arrival == nil {
		t.Fatal("An empty ar element should still produce an arrival event")
	}
	if third.Arrival.PlannedTime != nil || third.Arrival.Line != nil {
		t.Error("Empty ar element should carry no attributes")
	}
	if third.Departure != nil {
		t.Error("Departure should be nil when dp is absent")
	}
}

func TestParseTimetable_SingleStop(t *testing.T) {
	p := NewXMLParser()
	xml := `<timetable station="Berlin Hbf"><s id="abc"><dp l=""/></s></timetable>`

	tt, err := p.ParseTimetable(context.Background(), []byte(xml))
	if err != nil {
		t.Fatalf("ParseTimetable failed: %v", err)
	}
	if len(tt.Stops) != 1 {
		t.Fatalf("Expected 1 stop, got %d", len(tt.Stops))
	}
	line := tt.Stops[0].Departure.Line
	if line == nil {
		t.Fatal("An empty l attribute should be present, not absent")
	}
	if *line != "" {
		t.Errorf("line = %q, want empty", *line)
	}
}

func TestParseTimetable_EmptyResults(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"blank payload", ""},
		{"whitespace payload", "  \n\t "},
		{"empty timetable", `<timetable station="Berlin Hbf"/>`},
		{"empty timetable no attrs", `<timetable></timetable>`},
		{"other root element", `<error><message>unknown station</message></error>`},
	}

	p := NewXMLParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.ParseTimetable(context.Background(), []byte(tt.input))
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(got.Stops) != 0 {
				t.Errorf("Expected no stops, got %d", len(got.Stops))
			}
		})
	}
}

func TestParseTimetable_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"mismatched nesting", `<timetable><s id="1"><dp></s></dp></timetable>`},
		{"unclosed root", `<timetable><s id="1">`},
		{"garbage", `this is not xml <<<`},
		{"stop without id", `<timetable><s><dp pt="2602101700"/></s></timetable>`},
	}

	p := NewXMLParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ParseTimetable(context.Background(), []byte(tt.input))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Errorf("Expected *ParseError, got %T", err)
			}
		})
	}
}
