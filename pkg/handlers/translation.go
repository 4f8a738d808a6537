package handlers

import (
	"github.com/skyvault/skyvault/pkg/models"
)

// TranslationHandler covers auto-translated messages. The translation pair
// and texts live in the properties bag; the body holds the translated text.
type TranslationHandler struct{}

func (h *TranslationHandler) Name() string { return "translation" }

func (h *TranslationHandler) CanHandle(messageType string) bool {
	return messageType == "Translation"
}

func (h *TranslationHandler) Extract(msg *models.RawMessage) (map[string]any, error) {
	out := map[string]any{}

	if v := propString(msg.Properties, "fromLanguage"); v != "" {
		out["translation_from_language"] = v
	}
	if v := propString(msg.Properties, "toLanguage"); v != "" {
		out["translation_to_language"] = v
	}
	if v := propString(msg.Properties, "originalText"); v != "" {
		out["translation_original_text"] = v
	}

	text := propString(msg.Properties, "translatedText")
	if text == "" {
		text = plainText(msg.Content)
	}
	if text != "" {
		out["translation_text"] = text
	}
	return out, nil
}
