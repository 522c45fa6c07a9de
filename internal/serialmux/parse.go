package serialmux

import "strings"

const (
	EventTypeSampleRow = "sample_row"
	EventTypeStatus    = "status"
	EventTypeHeader    = "header"
	EventTypeUnknown   = "unknown"
)

// ClassifyPayload inspects a line from the pressure board and returns a
// simple event type token. Sample rows are comma-separated numerics starting
// with a timestamp; status responses are JSON objects; the board also emits
// one CSV header line when a stream starts.
func ClassifyPayload(payload string) string {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return EventTypeUnknown
	}
	if strings.HasPrefix(trimmed, "{") {
		return EventTypeStatus
	}
	if strings.HasPrefix(trimmed, "time,") {
		return EventTypeHeader
	}
	if c := trimmed[0]; (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.' {
		if strings.Count(trimmed, ",") >= 3 {
			return EventTypeSampleRow
		}
	}
	return EventTypeUnknown
}
