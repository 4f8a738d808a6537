package handlers

import (
	"github.com/skyvault/skyvault/pkg/models"
)

// CallHandler covers call lifecycle events (Event/Call). The body carries
// a partlist fragment whose type attribute distinguishes started, ended,
// and missed calls, and whose parts report the per-participant durations.
type CallHandler struct{}

func (h *CallHandler) Name() string { return "call" }

func (h *CallHandler) CanHandle(messageType string) bool {
	return messageType == "Event/Call"
}

func (h *CallHandler) Extract(msg *models.RawMessage) (map[string]any, error) {
	call := map[string]any{}

	callType := "unknown"
	if attrs, ok := elementAttrs(msg.Content, "partlist"); ok {
		if t := attrMap(attrs)["type"]; t != "" {
			callType = t
		}
	}
	call["call_type"] = callType

	participants := make([]map[string]any, 0)
	var duration float64
	for _, part := range elements(msg.Content, "part") {
		attrs := attrMap(part[0])
		p := map[string]any{}
		if id := attrs["identity"]; id != "" {
			p["id"] = id
			p["name"] = models.StripMRIPrefix(id)
		}
		if name, ok := elementText(part[1], "name"); ok && name != "" {
			p["name"] = name
		}
		if d, ok := elementText(part[1], "duration"); ok {
			if secs, ok := parseFloat(d); ok && secs > duration {
				// Participants join at different times; the call lasted as
				// long as its longest-connected participant.
				duration = secs
			}
		}
		if len(p) > 0 {
			participants = append(participants, p)
		}
	}
	call["participants"] = participants
	if duration > 0 {
		call["duration"] = duration
	}

	if v := propString(msg.Properties, "callStartTime"); v != "" {
		call["start_time"] = v
	} else if callType == "started" {
		call["start_time"] = msg.OriginalArrivalTime
	}
	if v := propString(msg.Properties, "callEndTime"); v != "" {
		call["end_time"] = v
	} else if callType == "ended" {
		call["end_time"] = msg.OriginalArrivalTime
	}

	return map[string]any{"call_data": call}, nil
}
