package handlers

import (
	"fmt"

	"github.com/skyvault/skyvault/pkg/models"
)

// LocationHandler covers shared locations. Coordinates arrive in
// microdegrees (integer degrees × 1e6) in older exports and plain degrees
// in newer ones.
type LocationHandler struct{}

func (h *LocationHandler) Name() string { return "location" }

func (h *LocationHandler) CanHandle(messageType string) bool {
	return messageType == "Location" || messageType == "RichText/Location"
}

func (h *LocationHandler) Extract(msg *models.RawMessage) (map[string]any, error) {
	attrs, ok := elementAttrs(msg.Content, "location")
	if !ok {
		return nil, fmt.Errorf("no location element in body")
	}
	m := attrMap(attrs)

	loc := map[string]any{}
	if lat, ok := parseFloat(m["latitude"]); ok {
		loc["latitude"] = fromMicrodegrees(lat)
	}
	if lon, ok := parseFloat(m["longitude"]); ok {
		loc["longitude"] = fromMicrodegrees(lon)
	}
	if addr := m["address"]; addr != "" {
		loc["address"] = addr
	}
	name := m["locationname"]
	if name == "" {
		name = m["alt"]
	}
	if name == "" {
		if text, ok := elementText(msg.Content, "a"); ok {
			name = text
		}
	}
	if name != "" {
		loc["name"] = name
	}
	return map[string]any{"location_data": loc}, nil
}

// fromMicrodegrees converts microdegree coordinates to degrees. Values
// inside the valid degree range are passed through unchanged.
func fromMicrodegrees(v float64) float64 {
	if v > 180 || v < -180 {
		return v / 1e6
	}
	return v
}
