package load

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skyvault/skyvault/pkg/database"
	"github.com/skyvault/skyvault/pkg/models"
)

// conversationIDSanitizer replaces characters that are unsafe in downstream
// file and index names. The sanitized id is what gets stored and indexed.
var conversationIDSanitizer = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_",
	"/", "_", `\`, "_", "|", "_", "?", "_", "*", "_",
)

// SanitizeConversationID maps a raw conversation id to its stored form.
func SanitizeConversationID(id string) string {
	return conversationIDSanitizer.Replace(id)
}

// CanonicalHash computes the SHA-256 of the canonical (compacted) JSON
// serialization, so semantically identical documents with different
// whitespace dedup to the same raw_exports row.
func CanonicalHash(doc json.RawMessage) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, doc); err != nil {
		return "", fmt.Errorf("canonicalizing document: %w", err)
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

// insertRawExport stores the verbatim document, deduplicating on the
// content hash: a duplicate reuses the existing row's id.
func insertRawExport(ctx context.Context, tx database.Tx, raw *models.RawExport, fileSource string) (int64, error) {
	hash, err := CanonicalHash(raw.Document)
	if err != nil {
		return 0, err
	}

	var id int64
	err = tx.Tx().QueryRow(ctx,
		`INSERT INTO raw_exports (file_hash, file_name, export_date, raw_data)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (file_hash) DO NOTHING
		 RETURNING id`,
		hash, fileSource, raw.ExportDate, raw.Document,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	// Conflict path: the document was loaded before.
	err = tx.Tx().QueryRow(ctx,
		`SELECT id FROM raw_exports WHERE file_hash = $1`, hash).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("looking up deduplicated raw export: %w", err)
	}
	return id, nil
}

// insertExport writes the export metadata row and returns its id.
func insertExport(ctx context.Context, tx database.Tx, rawExportID int64, t *models.TransformedExport) (int64, error) {
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return 0, fmt.Errorf("encoding export metadata: %w", err)
	}

	var id int64
	err = tx.Tx().QueryRow(ctx,
		`INSERT INTO exports (raw_export_id, user_id, user_display_name, export_date, metadata)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		rawExportID,
		t.Metadata.UserID,
		nullString(t.Metadata.UserDisplayName),
		nullTime(t.Metadata.ExportDate),
		metadata,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// insertConversations bulk-inserts conversations in input order and returns
// the database id for each sanitized conversation id.
func (l *Loader) insertConversations(ctx context.Context, tx database.Tx, exportID int64, t *models.TransformedExport, report func(int)) (map[string]int64, error) {
	ids := make(map[string]int64, t.Conversations.Len())

	type row struct {
		key  string
		args []any
	}
	rows := make([]row, 0, t.Conversations.Len())
	t.Conversations.Each(func(id string, conv *models.TransformedConversation) bool {
		rows = append(rows, row{key: id, args: []any{
			exportID,
			SanitizeConversationID(id),
			conv.DisplayName,
			nullTime(conv.FirstMessageTime),
			nullTime(conv.LastMessageTime),
			conv.MessageCount,
		}})
		return true
	})

	for start := 0; start < len(rows); start += l.BatchSize {
		end := min(start+l.BatchSize, len(rows))
		batch := rows[start:end]

		args := make([]any, 0, len(batch)*6)
		for _, r := range batch {
			args = append(args, r.args...)
		}
		sql := multiInsert(
			`INSERT INTO conversations
			 (export_id, conversation_id, display_name, first_message_time, last_message_time, message_count)`,
			6, len(batch)) + ` RETURNING id`

		returned, err := queryIDs(ctx, tx, sql, args)
		if err != nil {
			return nil, err
		}
		if len(returned) != len(batch) {
			return nil, fmt.Errorf("conversation batch returned %d ids for %d rows", len(returned), len(batch))
		}
		for i, r := range batch {
			ids[r.key] = returned[i]
		}
		report(len(batch))
	}
	return ids, nil
}

// insertMessages bulk-inserts each conversation's messages in timestamp
// order (the transformer already ordered them), then their attachments.
func (l *Loader) insertMessages(ctx context.Context, tx database.Tx, convIDs map[string]int64, t *models.TransformedExport, report func(int)) error {
	var outerErr error
	t.Conversations.Each(func(id string, conv *models.TransformedConversation) bool {
		dbConvID := convIDs[id]
		for start := 0; start < len(conv.Messages); start += l.BatchSize {
			end := min(start+l.BatchSize, len(conv.Messages))
			batch := conv.Messages[start:end]

			args := make([]any, 0, len(batch)*10)
			for i := range batch {
				m := &batch[i]
				structured, err := json.Marshal(m.StructuredData)
				if err != nil {
					outerErr = fmt.Errorf("encoding structured data for message %s: %w", m.ID, err)
					return false
				}
				args = append(args,
					dbConvID,
					m.ID,
					nullTime(m.Timestamp),
					m.SenderID,
					m.SenderDisplayName,
					m.RawContent,
					m.CleanedContent,
					m.MessageType,
					m.IsEdited,
					structured,
				)
			}
			sql := multiInsert(
				`INSERT INTO messages
				 (conversation_id, message_id, "timestamp", sender_id, sender_display_name,
				  raw_content, cleaned_content, message_type, is_edited, structured_data)`,
				10, len(batch)) + ` RETURNING id`

			msgIDs, err := queryIDs(ctx, tx, sql, args)
			if err != nil {
				outerErr = err
				return false
			}
			if len(msgIDs) != len(batch) {
				outerErr = fmt.Errorf("message batch returned %d ids for %d rows", len(msgIDs), len(batch))
				return false
			}
			if err := l.insertAttachments(ctx, tx, msgIDs, batch); err != nil {
				outerErr = err
				return false
			}
			report(len(batch))
		}
		return true
	})
	return outerErr
}

// insertAttachments writes the attachments of one message batch.
func (l *Loader) insertAttachments(ctx context.Context, tx database.Tx, msgIDs []int64, batch []models.TransformedMessage) error {
	var args []any
	count := 0
	for i := range batch {
		for _, att := range batch[i].Attachments {
			var metadata []byte
			if len(att.Metadata) > 0 {
				var err error
				metadata, err = json.Marshal(att.Metadata)
				if err != nil {
					return fmt.Errorf("encoding attachment metadata: %w", err)
				}
			}
			args = append(args,
				msgIDs[i], att.Type, att.Name, att.URL, att.ContentType,
				att.Size, metadata)
			count++
		}
	}
	if count == 0 {
		return nil
	}
	sql := multiInsert(
		`INSERT INTO attachments (message_id, type, name, url, content_type, size, metadata)`,
		7, count)
	_, err := tx.Tx().Exec(ctx, sql, args...)
	return err
}

// insertParticipants writes each conversation's participant set.
func (l *Loader) insertParticipants(ctx context.Context, tx database.Tx, convIDs map[string]int64, t *models.TransformedExport, report func(int)) error {
	selfID := t.Metadata.UserID

	var args []any
	count := 0
	t.Conversations.Each(func(id string, conv *models.TransformedConversation) bool {
		for _, sender := range conv.Participants {
			args = append(args,
				convIDs[id],
				sender,
				models.StripMRIPrefix(sender),
				sender == selfID,
			)
			count++
		}
		return true
	})

	for start := 0; start < count; start += l.BatchSize {
		end := min(start+l.BatchSize, count)
		batch := args[start*4 : end*4]
		sql := multiInsert(
			`INSERT INTO participants (conversation_id, sender_id, display_name, is_self)`,
			4, end-start)
		if _, err := tx.Tx().Exec(ctx, sql, batch...); err != nil {
			return err
		}
		report(end - start)
	}
	return nil
}

// multiInsert builds "INSERT ... VALUES ($1,..),($..)," placeholders for
// rows of width columns.
func multiInsert(head string, columns, rows int) string {
	var b strings.Builder
	b.WriteString(head)
	b.WriteString(" VALUES ")
	arg := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('(')
		for c := 0; c < columns; c++ {
			if c > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "$%d", arg)
			arg++
		}
		b.WriteByte(')')
	}
	return b.String()
}

// queryIDs runs an insert with RETURNING id and collects the ids in row
// order.
func queryIDs(ctx context.Context, tx database.Tx, sql string, args []any) ([]int64, error) {
	rows, err := tx.Tx().Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// nullString maps "" to SQL NULL.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullTime parses an export timestamp into UTC, mapping unparseable or
// empty values to SQL NULL.
func nullTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t := models.ParseTimestamp(s)
	if t.IsZero() {
		return nil
	}
	return &t
}
