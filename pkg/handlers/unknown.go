package handlers

import (
	"github.com/skyvault/skyvault/pkg/models"
)

// UnknownHandler terminates the handler chain. It accepts every message
// type and passes the raw properties through so nothing is lost.
type UnknownHandler struct{}

func (h *UnknownHandler) Name() string { return "unknown" }

func (h *UnknownHandler) CanHandle(string) bool { return true }

func (h *UnknownHandler) Extract(msg *models.RawMessage) (map[string]any, error) {
	out := map[string]any{}
	if len(msg.Properties) > 0 {
		out["properties"] = msg.Properties
	}
	return out, nil
}
