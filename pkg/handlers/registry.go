// Package handlers implements per-variant structured data extraction for
// Skype message types. A registry holds an ordered list of handlers; the
// first handler claiming a message type wins, and the unknown handler at
// the end of the chain accepts everything, so dispatch is total.
package handlers

import (
	"fmt"

	"github.com/skyvault/skyvault/pkg/content"
	"github.com/skyvault/skyvault/pkg/models"
)

// Handler extracts the structured payload of one message variant.
// Implementations are stateless and safe for concurrent use.
type Handler interface {
	// Name identifies the handler in logs and extraction errors.
	Name() string
	// CanHandle reports whether the handler claims the message type tag.
	CanHandle(messageType string) bool
	// Extract produces the variant-specific fields for the message. The
	// returned map is merged over the common base fields. A non-nil error
	// marks the payload as reduced; it never aborts the message.
	Extract(msg *models.RawMessage) (map[string]any, error)
}

// Registry dispatches message types to handlers in registration order.
type Registry struct {
	handlers []Handler
}

// NewRegistry returns a registry with the default handler chain. The
// unknown handler is always appended last.
func NewRegistry(extractor *content.Extractor) *Registry {
	return &Registry{handlers: []Handler{
		&TextHandler{extractor: extractor},
		&PollHandler{},
		&CallHandler{},
		&ScheduledCallHandler{},
		&LocationHandler{},
		&ContactsHandler{},
		&MediaCardHandler{},
		&MediaHandler{},
		&PopCardHandler{},
		&TranslationHandler{},
		&ThreadActivityHandler{},
		&UnknownHandler{},
	}}
}

// Register appends a handler just before the unknown fallback, keeping
// dispatch total.
func (r *Registry) Register(h Handler) {
	if len(r.handlers) == 0 {
		r.handlers = []Handler{h, &UnknownHandler{}}
		return
	}
	last := r.handlers[len(r.handlers)-1]
	r.handlers = append(r.handlers[:len(r.handlers)-1], h, last)
}

// HandlerFor returns the first handler claiming messageType. It never
// returns nil: the unknown handler claims everything.
func (r *Registry) HandlerFor(messageType string) Handler {
	for _, h := range r.handlers {
		if h.CanHandle(messageType) {
			return h
		}
	}
	// Unreachable with a default chain, but keep dispatch total even if a
	// caller built an empty registry by hand.
	return &UnknownHandler{}
}

// Extract runs dispatch for one message and merges the handler payload over
// the common base fields. Handler failures degrade to a reduced payload
// carrying the raw properties and an extraction_error field; err reports
// the failure for the caller's error log.
func (r *Registry) Extract(msg *models.RawMessage) (map[string]any, error) {
	h := r.HandlerFor(msg.MessageType)
	data := BaseFields(msg)

	payload, err := h.Extract(msg)
	if err != nil {
		if len(msg.Properties) > 0 {
			data["properties"] = msg.Properties
		}
		data["extraction_error"] = fmt.Sprintf("%s: %v", h.Name(), err)
		// Keep whatever partial payload the handler managed to build.
		for k, v := range payload {
			data[k] = v
		}
		return data, fmt.Errorf("handler %s on message %s: %w", h.Name(), msg.ID, err)
	}
	for k, v := range payload {
		data[k] = v
	}
	return data, nil
}

// BaseFields builds the six common fields every structured payload carries.
func BaseFields(msg *models.RawMessage) map[string]any {
	return map[string]any{
		"id":           msg.ID,
		"timestamp":    msg.OriginalArrivalTime,
		"sender_id":    msg.From,
		"sender_name":  msg.SenderName(),
		"message_type": msg.MessageType,
		"is_edited":    msg.Edited(),
	}
}
