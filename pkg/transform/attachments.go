package transform

import (
	"github.com/skyvault/skyvault/pkg/models"
)

// attachmentsFor derives a message's attachments. Precedence: an explicit
// attachments list in the structured payload, then one in the raw
// properties bag, then attachments synthesized from media fields.
func attachmentsFor(data map[string]any, props map[string]any) []models.Attachment {
	if list, ok := attachmentList(data["attachments"]); ok {
		return list
	}
	if props != nil {
		if list, ok := attachmentList(props["attachments"]); ok {
			return list
		}
	}
	return mediaAttachments(data)
}

// attachmentList decodes a generic attachments value ([]any of objects).
func attachmentList(v any) ([]models.Attachment, bool) {
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		return nil, false
	}
	out := make([]models.Attachment, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		att := models.Attachment{
			Type:        stringField(m, "type"),
			Name:        stringField(m, "name"),
			URL:         stringField(m, "url"),
			ContentType: stringField(m, "content_type", "contentType"),
			Size:        intField(m, "size"),
		}
		if att.Name == "" {
			att.Name = stringField(m, "originalName", "filename")
		}
		if att.URL == "" {
			att.URL = stringField(m, "uri")
		}
		if att.Name != "" || att.URL != "" || att.Type != "" {
			out = append(out, att)
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// mediaAttachments synthesizes attachments from the media handler's
// structured fields, including album items. The primary media_url usually
// reappears as the first album item; that item only contributes its
// thumbnail, not a second attachment.
func mediaAttachments(data map[string]any) []models.Attachment {
	var out []models.Attachment

	primary := stringField(data, "media_url")
	if primary != "" {
		att := models.Attachment{
			Type: stringField(data, "media_filetype"),
			Name: stringField(data, "media_filename"),
			URL:  primary,
			Size: intField(data, "media_filesize"),
		}
		if att.Type == "" {
			att.Type = "media"
		}
		if thumb := stringField(data, "media_thumbnail_url"); thumb != "" {
			att.Metadata = map[string]any{"thumbnail_url": thumb}
		}
		out = append(out, att)
	}

	if items, ok := data["media_album_items"].([]map[string]any); ok {
		for _, item := range items {
			url := stringField(item, "url")
			if url == "" {
				continue
			}
			if url == primary {
				if thumb := stringField(item, "thumbnail"); thumb != "" && out[0].Metadata == nil {
					out[0].Metadata = map[string]any{"thumbnail_url": thumb}
				}
				continue
			}
			att := models.Attachment{
				Type: "image",
				URL:  url,
			}
			if thumb := stringField(item, "thumbnail"); thumb != "" {
				att.Metadata = map[string]any{"thumbnail_url": thumb}
			}
			out = append(out, att)
		}
	}
	return out
}

// stringField returns the first non-empty string value among keys.
func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// intField reads an integer-ish value (JSON decodes numbers as float64).
func intField(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
