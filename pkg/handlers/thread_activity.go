package handlers

import (
	"strings"

	"github.com/skyvault/skyvault/pkg/models"
)

// ThreadActivityHandler covers thread lifecycle events (members added or
// removed, topic and picture updates, role changes). The activity kind is
// the tag suffix after "ThreadActivity/".
type ThreadActivityHandler struct{}

func (h *ThreadActivityHandler) Name() string { return "thread_activity" }

func (h *ThreadActivityHandler) CanHandle(messageType string) bool {
	return strings.HasPrefix(messageType, "ThreadActivity/")
}

func (h *ThreadActivityHandler) Extract(msg *models.RawMessage) (map[string]any, error) {
	out := map[string]any{
		"activity_type": strings.TrimPrefix(msg.MessageType, "ThreadActivity/"),
	}

	members := make([]map[string]any, 0)
	for _, member := range elements(msg.Content, "member") {
		entry := map[string]any{}
		if id, ok := elementText(member[1], "id"); ok && id != "" {
			entry["id"] = id
			entry["name"] = models.StripMRIPrefix(id)
		}
		if name, ok := elementText(member[1], "name"); ok && name != "" {
			entry["name"] = name
		}
		if len(entry) > 0 {
			members = append(members, entry)
		}
	}
	// Target elements appear in add/delete events without full member blocks.
	if len(members) == 0 {
		for _, target := range elements(msg.Content, "target") {
			if id := plainText(target[1]); id != "" {
				members = append(members, map[string]any{
					"id":   id,
					"name": models.StripMRIPrefix(id),
				})
			}
		}
	}
	out["activity_members"] = members

	if value, ok := elementText(msg.Content, "value"); ok && value != "" {
		out["activity_value"] = value
	}
	if initiator, ok := elementText(msg.Content, "initiator"); ok && initiator != "" {
		out["activity_initiator"] = initiator
	} else if msg.From != "" {
		out["activity_initiator"] = msg.From
	}
	return out, nil
}
