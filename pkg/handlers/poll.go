package handlers

import (
	"github.com/skyvault/skyvault/pkg/models"
)

// PollHandler covers poll messages. The question and options live in the
// body markup; vote details and poll metadata, when the export includes
// them, live in the properties bag.
type PollHandler struct{}

func (h *PollHandler) Name() string { return "poll" }

func (h *PollHandler) CanHandle(messageType string) bool {
	return messageType == "Poll"
}

func (h *PollHandler) Extract(msg *models.RawMessage) (map[string]any, error) {
	question, _ := elementText(msg.Content, "pollquestion")
	if question == "" {
		question = propString(msg.Properties, "pollQuestion")
	}
	if question == "" {
		// Reduced-but-valid result: a poll with no recoverable question.
		question = "Poll"
	}

	options := make([]map[string]any, 0)
	for _, opt := range elements(msg.Content, "polloption") {
		attrs := attrMap(opt[0])
		entry := map[string]any{
			"text": plainText(opt[1]),
		}
		if votes, ok := parseInt64(attrs["votecount"]); ok {
			entry["vote_count"] = votes
		} else {
			entry["vote_count"] = int64(0)
		}
		entry["is_selected"] = attrs["selected"] == "true" || attrs["selected"] == "1"
		options = append(options, entry)
	}

	out := map[string]any{
		"poll_question": question,
		"poll_options":  options,
	}

	metadata := map[string]any{}
	var total int64
	for _, opt := range options {
		if v, ok := opt["vote_count"].(int64); ok {
			total += v
		}
	}
	metadata["total_votes"] = total
	if v := propString(msg.Properties, "pollStatus"); v != "" {
		metadata["status"] = v
	}
	if v := propString(msg.Properties, "voteVisibility"); v != "" {
		metadata["vote_visibility"] = v
	}
	if v := propString(msg.Properties, "pollCreator"); v != "" {
		metadata["creator"] = v
	}
	if v := propString(msg.Properties, "pollCreatedAt"); v != "" {
		metadata["created_at"] = v
	}
	out["poll_metadata"] = metadata
	return out, nil
}
