// Package validate enforces shape invariants on raw export input, database
// configuration, and transformed output. Validation failures are fatal for
// the phase that detected them.
package validate

import (
	"errors"
	"fmt"

	"github.com/skyvault/skyvault/pkg/models"
)

// FieldError reports a validation failure at a specific field path.
type FieldError struct {
	Path    string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("validation error at '%s': %s", e.Path, e.Message)
}

// NewFieldError creates a field-scoped validation error.
func NewFieldError(path, message string) error {
	return &FieldError{Path: path, Message: message}
}

// IsFieldError checks whether err is (or wraps) a FieldError.
func IsFieldError(err error) bool {
	var fe *FieldError
	return errors.As(err, &fe)
}

// RawExport checks the decoded export document: required identity fields
// and at least one recognizable conversation container. For the wrapped
// "messages" shape the identity fields live one level down and are resolved
// during transform, so they are only required alongside a top-level
// conversations array. Conversations and messages are checked tolerantly;
// an absent display name is legal (it elides the conversation later), a
// missing conversation id is not.
func RawExport(e *models.RawExport) error {
	if e == nil {
		return NewFieldError("", "export document is nil")
	}
	if len(e.Conversations) == 0 && len(e.MessagesRaw) == 0 {
		return NewFieldError("conversations", "no conversations or messages present")
	}
	if len(e.MessagesRaw) == 0 {
		if e.UserID == "" {
			return NewFieldError("userId", "missing required field")
		}
		if e.ExportDate == "" {
			return NewFieldError("exportDate", "missing required field")
		}
	}
	for i := range e.Conversations {
		if e.Conversations[i].ID == "" {
			return NewFieldError(fmt.Sprintf("conversations[%d].id", i), "missing required field")
		}
		for j := range e.Conversations[i].MessageList {
			m := &e.Conversations[i].MessageList[j]
			if m.ID == "" {
				return NewFieldError(
					fmt.Sprintf("conversations[%d].MessageList[%d].id", i, j),
					"missing required field")
			}
		}
	}
	return nil
}

// DatabaseConfig checks the connection settings the loader needs. The
// config type lives in pkg/config; the interface here keeps the validator
// free of a config dependency cycle.
type DatabaseConfig interface {
	Address() (host string, port int)
	DatabaseName() string
	Username() string
}

// Database checks database connection configuration.
func Database(cfg DatabaseConfig) error {
	if cfg == nil {
		return NewFieldError("database", "configuration is nil")
	}
	host, port := cfg.Address()
	if host == "" {
		return NewFieldError("database.host", "missing required field")
	}
	if port <= 0 || port > 65535 {
		return NewFieldError("database.port", fmt.Sprintf("invalid port %d", port))
	}
	if cfg.DatabaseName() == "" {
		return NewFieldError("database.name", "missing required field")
	}
	if cfg.Username() == "" {
		return NewFieldError("database.user", "missing required field")
	}
	return nil
}

// TransformedExport checks the structural invariants of transformed output
// before loading: the message total must equal the per-conversation sums,
// every message must reference its containing conversation, and message
// counts must match the actual slices.
func TransformedExport(t *models.TransformedExport) error {
	if t == nil {
		return NewFieldError("", "transformed export is nil")
	}
	total := 0
	var err error
	t.Conversations.Each(func(id string, conv *models.TransformedConversation) bool {
		if conv == nil {
			err = NewFieldError("conversations."+id, "nil conversation")
			return false
		}
		if conv.ID != id {
			err = NewFieldError("conversations."+id,
				fmt.Sprintf("conversation id %q does not match map key", conv.ID))
			return false
		}
		if conv.MessageCount != len(conv.Messages) {
			err = NewFieldError("conversations."+id+".message_count",
				fmt.Sprintf("count %d does not match %d messages", conv.MessageCount, len(conv.Messages)))
			return false
		}
		for i := range conv.Messages {
			if conv.Messages[i].ConversationID != id {
				err = NewFieldError(
					fmt.Sprintf("conversations.%s.messages[%d].conversation_id", id, i),
					"message references a different conversation")
				return false
			}
		}
		total += len(conv.Messages)
		return true
	})
	if err != nil {
		return err
	}
	if t.Metadata.TotalMessages != total {
		return NewFieldError("metadata.total_messages",
			fmt.Sprintf("metadata says %d, conversations hold %d", t.Metadata.TotalMessages, total))
	}
	if t.Metadata.TotalConversations != t.Conversations.Len() {
		return NewFieldError("metadata.total_conversations",
			fmt.Sprintf("metadata says %d, map holds %d", t.Metadata.TotalConversations, t.Conversations.Len()))
	}
	return nil
}
