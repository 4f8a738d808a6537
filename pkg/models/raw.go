// Package models defines the raw and transformed data model shared by the
// ETL phases: the decoded Skype export document, the normalized projection
// produced by the transformer, and the checkpoint descriptor.
package models

import (
	"bytes"
	"encoding/json"
)

// RawExport is the decoded Skype export document as produced by the extract
// phase. The verbatim bytes are retained for audit storage; the typed fields
// are a tolerant view over the several shapes real exports come in.
//
// Known shapes:
//   - {"userId": ..., "exportDate": ..., "conversations": [...]}
//   - {"messages": [{"userId": ..., "conversations": [...]}]}  (wrapped)
//   - {"messages": [<RawMessage>...]}                          (bare messages)
//
// Shape normalization happens in the transform phase; extract only decodes.
type RawExport struct {
	UserID        string
	ExportDate    string
	Conversations []RawConversation

	// MessagesRaw holds the undecoded "messages" value for the wrapped and
	// bare-messages shapes. Empty when the top-level conversations shape
	// was present.
	MessagesRaw json.RawMessage

	// Document is the verbatim export JSON, kept for the raw_exports audit
	// table and for checkpoint spills.
	Document json.RawMessage
}

// rawExportEnvelope accepts the field spellings seen across export versions.
type rawExportEnvelope struct {
	UserID      string `json:"userId"`
	UserIDSnake string `json:"user_id"`

	ExportDate      string `json:"exportDate"`
	ExportDateSnake string `json:"export_date"`

	Conversations []RawConversation `json:"conversations"`
	Messages      json.RawMessage   `json:"messages"`
}

// UnmarshalJSON decodes an export document while retaining the input bytes.
func (e *RawExport) UnmarshalJSON(data []byte) error {
	var env rawExportEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	e.UserID = env.UserID
	if e.UserID == "" {
		e.UserID = env.UserIDSnake
	}
	e.ExportDate = env.ExportDate
	if e.ExportDate == "" {
		e.ExportDate = env.ExportDateSnake
	}
	e.Conversations = env.Conversations
	e.MessagesRaw = env.Messages
	e.Document = bytes.Clone(data)
	return nil
}

// MarshalJSON emits the verbatim document when present, so that
// decode/encode round trips are byte-stable for audit storage.
func (e RawExport) MarshalJSON() ([]byte, error) {
	if len(e.Document) > 0 {
		return e.Document, nil
	}
	type plain struct {
		UserID        string            `json:"userId"`
		ExportDate    string            `json:"exportDate"`
		Conversations []RawConversation `json:"conversations"`
	}
	return json.Marshal(plain{e.UserID, e.ExportDate, e.Conversations})
}

// MessageCount returns the total number of messages across all conversations.
func (e *RawExport) MessageCount() int {
	n := 0
	for i := range e.Conversations {
		n += len(e.Conversations[i].MessageList)
	}
	return n
}

// RawConversation is one thread within an export.
//
// DisplayName distinguishes three cases the pipeline treats differently:
// a present non-empty name (kept), a present empty string (kept, displayed
// as empty), and JSON null or an absent key (the conversation is elided
// from the transformed output and counted in metrics).
type RawConversation struct {
	ID               string          `json:"id"`
	DisplayName      *string         `json:"displayName"`
	MessageList      []RawMessage    `json:"MessageList"`
	Properties       map[string]any  `json:"properties,omitempty"`
	ThreadProperties map[string]any  `json:"threadProperties,omitempty"`
	Members          json.RawMessage `json:"members,omitempty"`
	Version          float64         `json:"version,omitempty"`
}

// Elided reports whether the conversation must be skipped during transform.
// Only a null/absent display name elides; an empty string does not.
func (c *RawConversation) Elided() bool {
	return c.DisplayName == nil
}

// RawMessage is one message as it appears in the export document.
type RawMessage struct {
	ID                  string         `json:"id"`
	OriginalArrivalTime string         `json:"originalarrivaltime"`
	From                string         `json:"from"`
	Content             string         `json:"content"`
	MessageType         string         `json:"messagetype"`
	EditTime            string         `json:"edittime,omitempty"`
	DisplayName         string         `json:"displayName,omitempty"`
	ConversationID      string         `json:"conversationid,omitempty"`
	Properties          map[string]any `json:"properties,omitempty"`
	AMSReferences       []string       `json:"amsreferences,omitempty"`
}

// Edited reports whether the message carries an edit timestamp.
func (m *RawMessage) Edited() bool {
	return m.EditTime != ""
}

// SenderName returns the best-effort human name of the sender, falling back
// to the bare sender id with the Skype MRI prefix stripped.
func (m *RawMessage) SenderName() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return StripMRIPrefix(m.From)
}

// StripMRIPrefix removes a leading Skype MRI prefix ("8:", "28:", "2:", ...)
// from an identity string, leaving the bare user handle.
func StripMRIPrefix(id string) string {
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c >= '0' && c <= '9' {
			continue
		}
		if c == ':' && i > 0 && i+1 < len(id) {
			return id[i+1:]
		}
		break
	}
	return id
}

// WrappedExport is one element of the wrapped "messages" shape, where the
// export body is nested one level down.
type WrappedExport struct {
	UserID        string            `json:"userId"`
	ExportDate    string            `json:"exportDate"`
	Conversations []RawConversation `json:"conversations"`
}
