package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyvault/skyvault/pkg/content"
	"github.com/skyvault/skyvault/pkg/models"
)

func newTestRegistry() *Registry {
	return NewRegistry(content.New())
}

func TestRegistryDispatch(t *testing.T) {
	r := newTestRegistry()

	tests := []struct {
		messageType string
		handler     string
	}{
		{"RichText", "text"},
		{"RichText/HTML", "text"},
		{"Text", "text"},
		{"Poll", "poll"},
		{"Event/Call", "call"},
		{"RichText/ScheduledCallInvite", "scheduled_call"},
		{"Location", "location"},
		{"RichText/Location", "location"},
		{"RichText/Contacts", "contacts"},
		{"RichText/Media_Card", "media_card"},
		{"RichText/Media_GenericFile", "media"},
		{"RichText/Media_Video", "media"},
		{"RichText/Media_Album", "media"},
		{"RichText/UriObject", "media"},
		{"PopCard", "popcard"},
		{"Translation", "translation"},
		{"ThreadActivity/AddMember", "thread_activity"},
		{"ThreadActivity/TopicUpdate", "thread_activity"},
		{"SomethingNew/Entirely", "unknown"},
		{"", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.messageType, func(t *testing.T) {
			assert.Equal(t, tt.handler, r.HandlerFor(tt.messageType).Name())
		})
	}
}

func TestRegistryDispatchIsTotal(t *testing.T) {
	r := newTestRegistry()
	for _, messageType := range []string{"", "garbage", "RichText/Media_", "ThreadActivity/"} {
		h := r.HandlerFor(messageType)
		require.NotNil(t, h)
	}
	// Even a hand-built empty registry dispatches.
	empty := &Registry{}
	assert.Equal(t, "unknown", empty.HandlerFor("anything").Name())
}

func TestRegistryRegisterKeepsFallbackLast(t *testing.T) {
	r := newTestRegistry()
	r.Register(&stubHandler{name: "custom", match: "Custom/Type"})

	assert.Equal(t, "custom", r.HandlerFor("Custom/Type").Name())
	assert.Equal(t, "unknown", r.HandlerFor("Unmatched").Name())
}

func TestRegistryExtractBaseFields(t *testing.T) {
	r := newTestRegistry()
	msg := &models.RawMessage{
		ID:                  "msg-1",
		OriginalArrivalTime: "2023-05-01T12:00:00Z",
		From:                "8:alice",
		Content:             "hello",
		MessageType:         "RichText",
		EditTime:            "2023-05-01T12:05:00Z",
	}

	data, err := r.Extract(msg)
	require.NoError(t, err)

	assert.Equal(t, "msg-1", data["id"])
	assert.Equal(t, "2023-05-01T12:00:00Z", data["timestamp"])
	assert.Equal(t, "8:alice", data["sender_id"])
	assert.Equal(t, "alice", data["sender_name"])
	assert.Equal(t, "RichText", data["message_type"])
	assert.Equal(t, true, data["is_edited"])
}

func TestRegistryExtractDegradesOnHandlerError(t *testing.T) {
	r := newTestRegistry()
	msg := &models.RawMessage{
		ID:          "msg-2",
		From:        "8:bob",
		Content:     "no uriobject here",
		MessageType: "RichText/UriObject",
		Properties:  map[string]any{"something": "kept"},
	}

	data, err := r.Extract(msg)
	require.Error(t, err)

	// The reduced payload still carries the base fields, the raw
	// properties, and the failure marker.
	assert.Equal(t, "msg-2", data["id"])
	assert.Contains(t, data, "extraction_error")
	assert.Equal(t, msg.Properties, data["properties"])
}

type stubHandler struct {
	name  string
	match string
}

func (h *stubHandler) Name() string                 { return h.name }
func (h *stubHandler) CanHandle(messageType string) bool { return messageType == h.match }
func (h *stubHandler) Extract(*models.RawMessage) (map[string]any, error) {
	return map[string]any{"stub": true}, nil
}
