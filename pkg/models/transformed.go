package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Attachment is one media attachment derived from a message's structured
// data or its raw properties bag.
type Attachment struct {
	Type        string `json:"type,omitempty"`
	Name        string `json:"name,omitempty"`
	URL         string `json:"url,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
	// LocalPath is filled in by the attachment download collaborator when
	// media was fetched; empty means only the remote URL is known.
	LocalPath string         `json:"local_path,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TransformedMessage is the normalized projection of one raw message.
type TransformedMessage struct {
	ID                string         `json:"id"`
	ConversationID    string         `json:"conversation_id"`
	Timestamp         string         `json:"timestamp"`
	SenderID          string         `json:"sender_id"`
	SenderDisplayName string         `json:"sender_display_name"`
	RawContent        string         `json:"raw_content"`
	CleanedContent    string         `json:"cleaned_content"`
	MessageType       string         `json:"message_type"`
	IsEdited          bool           `json:"is_edited"`
	StructuredData    map[string]any `json:"structured_data,omitempty"`
	Attachments       []Attachment   `json:"attachments,omitempty"`
}

// Time parses the message timestamp, trying microsecond then second
// precision RFC3339 forms. The zero time is returned when unparseable.
func (m *TransformedMessage) Time() time.Time {
	return ParseTimestamp(m.Timestamp)
}

// ParseTimestamp parses the timestamp formats seen in Skype exports into
// UTC. Returns the zero time when no known layout matches.
func ParseTimestamp(s string) time.Time {
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// TransformedConversation is the normalized projection of one conversation.
type TransformedConversation struct {
	ID               string               `json:"id"`
	DisplayName      string               `json:"display_name"`
	MessageCount     int                  `json:"message_count"`
	FirstMessageTime string               `json:"first_message_time,omitempty"`
	LastMessageTime  string               `json:"last_message_time,omitempty"`
	Messages         []TransformedMessage `json:"messages"`
	Participants     []string             `json:"participants,omitempty"`
}

// ExportMetadata summarizes a transformed export.
type ExportMetadata struct {
	UserID              string `json:"user_id"`
	UserDisplayName     string `json:"user_display_name,omitempty"`
	ExportDate          string `json:"export_date"`
	TotalConversations  int    `json:"total_conversations"`
	TotalMessages       int    `json:"total_messages"`
	ElidedConversations int    `json:"elided_conversations"`
}

// TransformedExport is the full normalized projection of one raw export.
// Conversations iterate in input order; JSON encoding preserves that order.
type TransformedExport struct {
	Metadata      ExportMetadata  `json:"metadata"`
	Conversations ConversationMap `json:"conversations"`
}

// Validate-free accessor: Conversation returns the conversation for id, or
// nil when absent.
func (e *TransformedExport) Conversation(id string) *TransformedConversation {
	return e.Conversations.Get(id)
}

// ConversationMap is an insertion-ordered map from conversation id to
// conversation. Plain Go maps randomize iteration, which would break the
// input-order contract and byte-stable re-encoding, so ordering is explicit.
type ConversationMap struct {
	order   []string
	entries map[string]*TransformedConversation
}

// NewConversationMap returns an empty ordered conversation map.
func NewConversationMap() ConversationMap {
	return ConversationMap{entries: make(map[string]*TransformedConversation)}
}

// Set inserts or replaces a conversation, preserving first-insertion order.
func (m *ConversationMap) Set(id string, conv *TransformedConversation) {
	if m.entries == nil {
		m.entries = make(map[string]*TransformedConversation)
	}
	if _, exists := m.entries[id]; !exists {
		m.order = append(m.order, id)
	}
	m.entries[id] = conv
}

// Get returns the conversation for id, or nil when absent.
func (m *ConversationMap) Get(id string) *TransformedConversation {
	return m.entries[id]
}

// Len returns the number of conversations.
func (m *ConversationMap) Len() int {
	return len(m.order)
}

// IDs returns conversation ids in insertion order. The returned slice is
// shared; callers must not mutate it.
func (m *ConversationMap) IDs() []string {
	return m.order
}

// Each calls fn for every conversation in insertion order, stopping early
// when fn returns false.
func (m *ConversationMap) Each(fn func(id string, conv *TransformedConversation) bool) {
	for _, id := range m.order {
		if !fn(id, m.entries[id]) {
			return
		}
	}
}

// MarshalJSON encodes the map as a JSON object in insertion order.
func (m ConversationMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range m.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(m.entries[id])
		if err != nil {
			return nil, fmt.Errorf("encoding conversation %q: %w", id, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object preserving key order.
func (m *ConversationMap) UnmarshalJSON(data []byte) error {
	*m = NewConversationMap()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("conversations: expected JSON object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		id, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("conversations: non-string key %v", keyTok)
		}
		var conv TransformedConversation
		if err := dec.Decode(&conv); err != nil {
			return fmt.Errorf("decoding conversation %q: %w", id, err)
		}
		m.Set(id, &conv)
	}
	// Consume closing brace.
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
