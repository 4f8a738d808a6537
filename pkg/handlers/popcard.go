package handlers

import (
	"encoding/json"
	"strings"

	"github.com/skyvault/skyvault/pkg/models"
)

// PopCardHandler covers system pop cards (one-off interactive prompts).
type PopCardHandler struct{}

func (h *PopCardHandler) Name() string { return "popcard" }

func (h *PopCardHandler) CanHandle(messageType string) bool {
	return messageType == "PopCard"
}

func (h *PopCardHandler) Extract(msg *models.RawMessage) (map[string]any, error) {
	out := map[string]any{}

	if start := strings.Index(msg.Content, "{"); start >= 0 {
		if end := strings.LastIndex(msg.Content, "}"); end > start {
			var card map[string]any
			if err := json.Unmarshal([]byte(msg.Content[start:end+1]), &card); err == nil {
				assignCardString(out, "popcard_title", card, "title")
				assignCardString(out, "popcard_type", card, "type", "cardType")
				assignCardString(out, "popcard_action", card, "action")
				assignCardString(out, "popcard_content", card, "content", "text")
			}
		}
	}

	if _, ok := out["popcard_title"]; !ok {
		if title, ok := elementText(msg.Content, "title"); ok && title != "" {
			out["popcard_title"] = title
		}
	}
	if _, ok := out["popcard_content"]; !ok {
		if text := plainText(msg.Content); text != "" {
			out["popcard_content"] = text
		}
	}
	if _, ok := out["popcard_type"]; !ok {
		if v := propString(msg.Properties, "cardType"); v != "" {
			out["popcard_type"] = v
		}
	}
	if _, ok := out["popcard_action"]; !ok {
		if v := propString(msg.Properties, "action"); v != "" {
			out["popcard_action"] = v
		}
	}
	return out, nil
}
