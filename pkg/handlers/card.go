package handlers

import (
	"encoding/json"
	"strings"

	"github.com/skyvault/skyvault/pkg/models"
)

// MediaCardHandler covers rich link-preview cards. Card details are a JSON
// blob inside the URIObject body in newer exports, or bare elements in
// older ones.
type MediaCardHandler struct{}

func (h *MediaCardHandler) Name() string { return "media_card" }

func (h *MediaCardHandler) CanHandle(messageType string) bool {
	return messageType == "RichText/Media_Card"
}

func (h *MediaCardHandler) Extract(msg *models.RawMessage) (map[string]any, error) {
	out := map[string]any{}

	// JSON payload path: <URIObject …><Swift b64=…/>{"title": …}</URIObject>
	if start := strings.Index(msg.Content, "{"); start >= 0 {
		if end := strings.LastIndex(msg.Content, "}"); end > start {
			var card map[string]any
			if err := json.Unmarshal([]byte(msg.Content[start:end+1]), &card); err == nil {
				assignCardString(out, "card_title", card, "title")
				assignCardString(out, "card_description", card, "text", "subtitle", "description")
				assignCardString(out, "card_url", card, "url", "contentUrl")
				assignCardString(out, "card_thumbnail_url", card, "thumbnailUrl", "thumbnail")
				assignCardString(out, "card_provider", card, "provider", "providerName")
			}
		}
	}

	if _, ok := out["card_title"]; !ok {
		if title, ok := elementText(msg.Content, "Title"); ok && title != "" {
			out["card_title"] = title
		}
	}
	if _, ok := out["card_description"]; !ok {
		if desc, ok := elementText(msg.Content, "Description"); ok && desc != "" {
			out["card_description"] = desc
		}
	}
	if _, ok := out["card_url"]; !ok {
		if attrs, ok := elementAttrs(msg.Content, "URIObject"); ok {
			if uri := attrMap(attrs)["uri"]; uri != "" {
				out["card_url"] = uri
			}
		}
	}
	if _, ok := out["card_thumbnail_url"]; !ok {
		if attrs, ok := elementAttrs(msg.Content, "URIObject"); ok {
			if thumb := attrMap(attrs)["url_thumbnail"]; thumb != "" {
				out["card_thumbnail_url"] = thumb
			}
		}
	}
	return out, nil
}

func assignCardString(out map[string]any, field string, card map[string]any, keys ...string) {
	for _, key := range keys {
		if v, ok := card[key].(string); ok && v != "" {
			out[field] = v
			return
		}
	}
}
