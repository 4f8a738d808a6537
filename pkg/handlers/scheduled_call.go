package handlers

import (
	"regexp"
	"time"

	"github.com/skyvault/skyvault/pkg/models"
)

// ScheduledCallHandler covers scheduled call invites. Invites embed a
// meeting link from one of several providers plus title and timing fields
// in the body markup or the properties bag.
type ScheduledCallHandler struct{}

func (h *ScheduledCallHandler) Name() string { return "scheduled_call" }

func (h *ScheduledCallHandler) CanHandle(messageType string) bool {
	return messageType == "RichText/ScheduledCallInvite"
}

// meetingLinkPatterns recognize the call providers seen in real exports.
var meetingLinkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`https://teams\.microsoft\.com/l/meetup-join/[^\s"'<>]+`),
	regexp.MustCompile(`https://join\.skype\.com/[^\s"'<>]+`),
	regexp.MustCompile(`https://[\w.-]*zoom\.us/j/[^\s"'<>]+`),
	regexp.MustCompile(`https://meet\.google\.com/[^\s"'<>]+`),
	regexp.MustCompile(`https://[\w.-]+\.webex\.com/[^\s"'<>]+`),
}

func (h *ScheduledCallHandler) Extract(msg *models.RawMessage) (map[string]any, error) {
	call := map[string]any{}

	title, _ := elementText(msg.Content, "title")
	if title == "" {
		title = propString(msg.Properties, "callTitle")
	}
	if title == "" {
		title = "Scheduled call"
	}
	call["title"] = title

	attrs, _ := elementAttrs(msg.Content, "scheduledcallinvite")
	meta := attrMap(attrs)

	start := firstNonEmpty(meta["starttime"],
		propString(msg.Properties, "startTime"), propString(msg.Properties, "scheduledStartTime"))
	end := firstNonEmpty(meta["endtime"],
		propString(msg.Properties, "endTime"), propString(msg.Properties, "scheduledEndTime"))

	startT := parseInviteTime(start)
	endT := parseInviteTime(end)
	if !startT.IsZero() {
		call["start_time"] = startT.Format(time.RFC3339)
	} else if start != "" {
		call["start_time"] = start
	}
	if !endT.IsZero() {
		call["end_time"] = endT.Format(time.RFC3339)
	} else if end != "" {
		call["end_time"] = end
	}
	if !startT.IsZero() && !endT.IsZero() && endT.After(startT) {
		call["duration_minutes"] = int64(endT.Sub(startT) / time.Minute)
	}

	if organizer := firstNonEmpty(meta["organizer"], propString(msg.Properties, "organizer"), msg.From); organizer != "" {
		call["organizer"] = organizer
	}
	participants := make([]string, 0)
	for _, at := range selfClosing(msg.Content, "at") {
		if id := attrMap(at)["id"]; id != "" {
			participants = append(participants, id)
		}
	}
	call["participants"] = participants

	if desc, ok := elementText(msg.Content, "description"); ok && desc != "" {
		call["description"] = desc
	}
	if id := firstNonEmpty(meta["callid"], propString(msg.Properties, "callId")); id != "" {
		call["call_id"] = id
	}
	for _, re := range meetingLinkPatterns {
		if link := re.FindString(msg.Content); link != "" {
			call["meeting_link"] = link
			break
		}
	}

	return map[string]any{"scheduled_call": call}, nil
}

// parseInviteTime accepts the timestamp spellings invites use: RFC3339 and
// epoch seconds or milliseconds.
func parseInviteTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t := models.ParseTimestamp(s); !t.IsZero() {
		return t
	}
	if n, ok := parseInt64(s); ok && n > 0 {
		if n > 1_000_000_000_000 {
			return time.UnixMilli(n).UTC()
		}
		return time.Unix(n, 0).UTC()
	}
	return time.Time{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
