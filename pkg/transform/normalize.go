package transform

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/skyvault/skyvault/pkg/models"
)

// ErrNoConversations is returned when no input shape yields conversations.
var ErrNoConversations = errors.New("export contains no conversations")

// pseudoConversationID names the synthetic conversation holding a bare
// message list, when the messages carry no conversation id of their own.
const pseudoConversationID = "messages"

// normalized is the shape-independent view of an export.
type normalized struct {
	UserID        string
	ExportDate    string
	Conversations []models.RawConversation
}

// normalize resolves the three known export shapes, in order:
//
//  1. top-level conversations
//  2. wrapped: {"messages": [{"userId", "exportDate", "conversations"}]}
//  3. bare: {"messages": [<message>...]} as a single pseudo-conversation
//
// The first shape that yields a non-empty conversation sequence wins.
func normalize(raw *models.RawExport) (*normalized, error) {
	if len(raw.Conversations) > 0 {
		return &normalized{
			UserID:        raw.UserID,
			ExportDate:    raw.ExportDate,
			Conversations: raw.Conversations,
		}, nil
	}
	if len(raw.MessagesRaw) == 0 {
		return nil, ErrNoConversations
	}

	if n, ok := normalizeWrapped(raw); ok {
		return n, nil
	}
	if n, ok := normalizeBareMessages(raw); ok {
		return n, nil
	}
	return nil, fmt.Errorf("%w: messages field matched no known shape", ErrNoConversations)
}

func normalizeWrapped(raw *models.RawExport) (*normalized, bool) {
	var wrapped []models.WrappedExport
	if err := json.Unmarshal(raw.MessagesRaw, &wrapped); err != nil {
		return nil, false
	}
	for i := range wrapped {
		if len(wrapped[i].Conversations) == 0 {
			continue
		}
		n := &normalized{
			UserID:        raw.UserID,
			ExportDate:    raw.ExportDate,
			Conversations: wrapped[i].Conversations,
		}
		if n.UserID == "" {
			n.UserID = wrapped[i].UserID
		}
		if n.ExportDate == "" {
			n.ExportDate = wrapped[i].ExportDate
		}
		return n, true
	}
	return nil, false
}

func normalizeBareMessages(raw *models.RawExport) (*normalized, bool) {
	var messages []models.RawMessage
	if err := json.Unmarshal(raw.MessagesRaw, &messages); err != nil {
		return nil, false
	}
	if len(messages) == 0 {
		return nil, false
	}
	// Some flat exports tag messages with a conversation id; prefer it
	// over the synthetic name.
	id := pseudoConversationID
	for i := range messages {
		if messages[i].ConversationID != "" {
			id = messages[i].ConversationID
			break
		}
	}
	displayName := "Messages"
	return &normalized{
		UserID:     raw.UserID,
		ExportDate: raw.ExportDate,
		Conversations: []models.RawConversation{{
			ID:          id,
			DisplayName: &displayName,
			MessageList: messages,
		}},
	}, true
}
