package handlers

import (
	"fmt"
	"strings"

	"github.com/skyvault/skyvault/pkg/models"
)

// MediaHandler covers file and media share messages, whose bodies carry a
// URIObject fragment describing the shared object. Album shares carry one
// URIObject per item.
type MediaHandler struct{}

func (h *MediaHandler) Name() string { return "media" }

func (h *MediaHandler) CanHandle(messageType string) bool {
	return strings.HasPrefix(messageType, "RichText/Media_") ||
		messageType == "RichText/UriObject"
}

func (h *MediaHandler) Extract(msg *models.RawMessage) (map[string]any, error) {
	objects := elements(msg.Content, "URIObject")
	if len(objects) == 0 {
		// Truncated exports sometimes leave a bare attribute fragment.
		if attrs, ok := elementAttrs(msg.Content, "URIObject"); ok {
			objects = [][2]string{{attrs, ""}}
		}
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("no URIObject in %s body", msg.MessageType)
	}

	out := h.extractObject(objects[0][0], objects[0][1], msg)

	if msg.MessageType == "RichText/Media_Album" {
		items := make([]map[string]any, 0, len(objects))
		for _, obj := range objects {
			items = append(items, h.albumItem(obj[0], obj[1]))
		}
		out["media_album_count"] = len(items)
		out["media_album_items"] = items
	}
	return out, nil
}

// extractObject mines one URIObject into the media_* field set.
func (h *MediaHandler) extractObject(attrBlob, body string, msg *models.RawMessage) map[string]any {
	attrs := attrMap(attrBlob)
	out := map[string]any{}

	name := ""
	if v, ok := elementAttrs(body, "OriginalName"); ok {
		name = attrMap(v)["v"]
	}
	if name == "" {
		name = propString(msg.Properties, "filename")
	}
	if name != "" {
		out["media_filename"] = name
		if ft := fileTypeFromName(name); ft != "" {
			out["media_filetype"] = ft
		}
	}

	if v, ok := elementAttrs(body, "FileSize"); ok {
		if size, ok := parseInt64(attrMap(v)["v"]); ok {
			out["media_filesize"] = size
			out["media_filesize_formatted"] = formatFileSize(size)
		}
	}

	url := attrs["uri"]
	if url == "" {
		if link, ok := elementAttrs(body, "a"); ok {
			url = attrMap(link)["href"]
		}
	}
	if url != "" {
		out["media_url"] = url
	}
	if thumb := attrs["url_thumbnail"]; thumb != "" {
		out["media_thumbnail_url"] = thumb
	}
	if _, hasType := out["media_filetype"]; !hasType && attrs["type"] != "" {
		out["media_filetype"] = attrs["type"]
	}

	if meta, ok := elementAttrs(body, "meta"); ok {
		m := attrMap(meta)
		if name == "" && m["originalname"] != "" {
			out["media_filename"] = m["originalname"]
		}
	}
	if w, ok := parseInt64(attrs["width"]); ok {
		out["media_width"] = w
	}
	if hh, ok := parseInt64(attrs["height"]); ok {
		out["media_height"] = hh
	}
	if d, ok := parseInt64(attrs["duration_ms"]); ok {
		out["media_duration"] = float64(d) / 1000.0
	} else if d, ok := parseFloat(attrs["duration"]); ok {
		out["media_duration"] = d
	}
	if desc, ok := elementText(body, "Title"); ok && desc != "" {
		out["media_description"] = desc
	} else if desc, ok := elementText(body, "Description"); ok && desc != "" {
		out["media_description"] = desc
	}
	return out
}

// albumItem mines the reduced field set album entries carry.
func (h *MediaHandler) albumItem(attrBlob, body string) map[string]any {
	attrs := attrMap(attrBlob)
	item := map[string]any{}
	if attrs["uri"] != "" {
		item["url"] = attrs["uri"]
	}
	if attrs["url_thumbnail"] != "" {
		item["thumbnail"] = attrs["url_thumbnail"]
	}
	if w, ok := parseInt64(attrs["width"]); ok {
		item["width"] = w
	}
	if hh, ok := parseInt64(attrs["height"]); ok {
		item["height"] = hh
	}
	return item
}
