package handlers

import (
	"regexp"
	"strings"

	"github.com/skyvault/skyvault/pkg/content"
	"github.com/skyvault/skyvault/pkg/models"
)

// TextHandler covers plain and rich text messages. Beyond the base fields
// it contributes the structured content index (mentions, links, quotes,
// formatting) plus mention/emoticon presence flags.
type TextHandler struct {
	extractor *content.Extractor
}

var textTypes = map[string]bool{
	"RichText":      true,
	"RichText/HTML": true,
	"Text":          true,
}

// Skype emoticons appear as <ss type="smile">:)</ss> spans.
var reEmoticon = regexp.MustCompile(`(?is)<ss\b[^>]*>.*?</ss\s*>`)

func (h *TextHandler) Name() string { return "text" }

func (h *TextHandler) CanHandle(messageType string) bool {
	return textTypes[messageType]
}

func (h *TextHandler) Extract(msg *models.RawMessage) (map[string]any, error) {
	out := map[string]any{
		"has_mentions": strings.Contains(msg.Content, "<at"),
		"has_emotions": reEmoticon.MatchString(msg.Content),
	}
	if h.extractor != nil {
		for k, v := range h.extractor.ExtractStructured(msg.Content).AsMap() {
			out[k] = v
		}
	}
	return out, nil
}
