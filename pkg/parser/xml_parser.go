package parser

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"timetable2parquet/pkg/metrics"
	tpotel "timetable2parquet/pkg/otel"
	"timetable2parquet/pkg/types"

	"github.com/clbanning/mxj/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// mxj stores XML attributes under their name with this prefix.
const attrPrefix = "-"

// ParseError reports a payload that is not a well-formed timetable document.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse timetable XML: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type XMLParser struct {
	tracer trace.Tracer
}

func NewXMLParser() *XMLParser {
	return &XMLParser{
		tracer: otel.Tracer("xml-parser"),
	}
}

// ParseTimetable decodes a plan or changes payload. A blank payload or a
// document without a timetable root yields an empty timetable.
func (p *XMLParser) ParseTimetable(ctx context.Context, data []byte) (*types.Timetable, error) {
	_, span := p.tracer.Start(ctx, "xml_parser.parse_timetable",
		trace.WithAttributes(
			attribute.Int("xml_size_bytes", len(data)),
		),
	)
	defer span.End()

	start := time.Now()
	timetable := &types.Timetable{}

	if len(bytes.TrimSpace(data)) == 0 {
		return timetable, nil
	}

	xmlMap, err := mxj.NewMapXml(data)
	if err != nil {
		parseErr := &ParseError{Err: err}
		tpotel.RecordError(span, parseErr, tpotel.ErrorTypeParse, false)
		return nil, parseErr
	}

	root, ok := xmlMap["timetable"]
	if !ok {
		span.SetAttributes(attribute.Bool("root_missing", true))
		return timetable, nil
	}

	rootMap := asMap(root)
	timetable.Station = types.Value(attr(rootMap, "station"))
	timetable.EVA = types.Value(attr(rootMap, "eva"))

	for i, s := range children(rootMap, "s") {
		stop, err := parseStop(s)
		if err != nil {
			parseErr := &ParseError{Err: fmt.Errorf("stop %d: %w", i, err)}
			tpotel.RecordError(span, parseErr, tpotel.ErrorTypeParse, false)
			return nil, parseErr
		}
		timetable.Stops = append(timetable.Stops, stop)
	}

	metrics.RecordParse(ctx, len(data), len(timetable.Stops), time.Since(start))
	span.SetAttributes(attribute.Int("stops_count", len(timetable.Stops)))
	tpotel.SetSpanOk(span)

	return timetable, nil
}

func parseStop(s map[string]interface{}) (types.Stop, error) {
	id := attr(s, "id")
	if id == nil || *id == "" {
		return types.Stop{}, fmt.Errorf("missing id attribute")
	}

	stop := types.Stop{
		ID:       *id,
		Messages: parseMessages(s),
	}

	if ar, ok := s["ar"]; ok {
		stop.Arrival = parseEvent(asMap(ar))
	}
	if dp, ok := s["dp"]; ok {
		stop.Departure = parseEvent(asMap(dp))
	}
	if tl, ok := s["tl"]; ok {
		m := asMap(tl)
		stop.TrainLine = &types.TrainLine{
			Category: attr(m, "c"),
			Number:   attr(m, "n"),
			Filter:   attr(m, "f"),
			Type:     attr(m, "t"),
			Owner:    attr(m, "o"),
		}
	}

	return stop, nil
}

func parseEvent(m map[string]interface{}) *types.TrainEvent {
	return &types.TrainEvent{
		ActualTime:  attr(m, "ct"),
		PlannedTime: attr(m, "pt"),
		PlannedPath: attr(m, "ppth"),
		ChangedPath: attr(m, "cpth"),
		Platform:    attr(m, "pp"),
		Line:        attr(m, "l"),
		Category:    attr(m, "c"),
		Number:      attr(m, "n"),
		Messages:    parseMessages(m),
	}
}

func parseMessages(parent map[string]interface{}) []types.Message {
	var messages []types.Message
	for _, m := range children(parent, "m") {
		messages = append(messages, types.Message{
			ID:           attr(m, "id"),
			Type:         attr(m, "t"),
			Code:         attr(m, "c"),
			Category:     attr(m, "cat"),
			ValidFrom:    attr(m, "from"),
			ValidTo:      attr(m, "to"),
			Timestamp:    attr(m, "ts"),
			TimestampTTS: attr(m, "ts-tts"),
		})
	}
	return messages
}

// children returns the named child elements, which mxj decodes as a single
// map for one occurrence and a slice for several.
func children(parent map[string]interface{}, name string) []map[string]interface{} {
	var out []map[string]interface{}
	switch v := parent[name].(type) {
	case nil:
	case []interface{}:
		for _, item := range v {
			out = append(out, asMap(item))
		}
	default:
		out = append(out, asMap(v))
	}
	return out
}

// asMap treats anything that is not an element map (an empty element decodes
// to "") as an element without attributes.
func asMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

func attr(m map[string]interface{}, name string) *string {
	s, ok := m[attrPrefix+name].(string)
	if !ok {
		return nil
	}
	return &s
}
