package ingest

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Ireoluwatomide/swift-track-relay/internal/domain"
)

// Driver frame types on the ingest socket.
const (
	FrameTypePosition  = "position"
	FrameTypeHeartbeat = "heartbeat"
)

// ReportFrame is one decoded driver frame.
type ReportFrame struct {
	Type      string   `json:"type"`
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	Timestamp string   `json:"timestamp,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
}

const reportSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["type"],
	"properties": {
		"type": {"enum": ["position", "heartbeat"]},
		"lat": {"type": "number"},
		"lng": {"type": "number"},
		"timestamp": {"type": "string"},
		"accuracy": {"type": "number"},
		"speed": {"type": "number"}
	},
	"if": {"properties": {"type": {"const": "position"}}},
	"then": {"required": ["type", "lat", "lng"]},
	"additionalProperties": false
}`

var compiledReportSchema = jsonschema.MustCompileString("report.json", reportSchema)

// DecodeReport parses and validates one driver frame. Malformed frames
// return a ValidationError; the connection itself stays usable.
func DecodeReport(data []byte) (ReportFrame, error) {
	var generic any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return ReportFrame{}, domain.NewValidationError("frame", "malformed JSON")
	}
	if err := compiledReportSchema.Validate(generic); err != nil {
		return ReportFrame{}, domain.NewValidationError("frame", err.Error())
	}

	var frame ReportFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return ReportFrame{}, domain.NewValidationError("frame", "malformed JSON")
	}
	return frame, nil
}

// RawSample converts a position frame to a raw sample. The timestamp is
// parsed leniently; an unparseable or missing value becomes zero and is
// clamped to the receive time at append.
func (f ReportFrame) RawSample() domain.RawSample {
	var ts time.Time
	if f.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, f.Timestamp); err == nil {
			ts = parsed
		}
	}
	return domain.RawSample{
		Lat:       f.Lat,
		Lng:       f.Lng,
		Timestamp: ts,
		Accuracy:  f.Accuracy,
		Speed:     f.Speed,
	}
}
