package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyvault/skyvault/pkg/models"
)

func strPtr(s string) *string { return &s }

func rawExportWith(convs []models.RawConversation) *models.RawExport {
	return &models.RawExport{
		UserID:        "8:self",
		ExportDate:    "2023-05-01T00:00:00Z",
		Conversations: convs,
	}
}

func messageN(conv string, n int) models.RawMessage {
	return models.RawMessage{
		ID:                  fmt.Sprintf("%s-msg-%04d", conv, n),
		OriginalArrivalTime: fmt.Sprintf("2023-05-01T12:%02d:%02dZ", (n/60)%60, n%60),
		From:                fmt.Sprintf("8:user%d", n%3),
		Content:             fmt.Sprintf("message <b>%d</b>", n),
		MessageType:         "RichText",
	}
}

func conversationN(id string, messages int) models.RawConversation {
	conv := models.RawConversation{
		ID:          id,
		DisplayName: strPtr("Chat " + id),
	}
	for i := 0; i < messages; i++ {
		conv.MessageList = append(conv.MessageList, messageN(id, i))
	}
	return conv
}

func TestTransformBasic(t *testing.T) {
	tr := New()
	raw := rawExportWith([]models.RawConversation{
		conversationN("c1", 3),
		conversationN("c2", 2),
	})

	out, elided, err := tr.Transform(context.Background(), raw, "Alice")
	require.NoError(t, err)
	assert.Zero(t, elided)

	assert.Equal(t, "8:self", out.Metadata.UserID)
	assert.Equal(t, "Alice", out.Metadata.UserDisplayName)
	assert.Equal(t, 2, out.Metadata.TotalConversations)
	assert.Equal(t, 5, out.Metadata.TotalMessages)
	assert.Equal(t, []string{"c1", "c2"}, out.Conversations.IDs())

	c1 := out.Conversations.Get("c1")
	require.NotNil(t, c1)
	assert.Equal(t, "Chat c1", c1.DisplayName)
	assert.Equal(t, 3, c1.MessageCount)
	require.Len(t, c1.Messages, 3)
	assert.Equal(t, "c1-msg-0000", c1.Messages[0].ID)
	assert.Equal(t, "c1", c1.Messages[0].ConversationID)
	assert.Equal(t, "message *0*", c1.Messages[0].CleanedContent)
	assert.NotEmpty(t, c1.Participants)
}

func TestTransformPreservesInputOrder(t *testing.T) {
	tr := New()
	raw := rawExportWith([]models.RawConversation{
		conversationN("zeta", 1),
		conversationN("alpha", 1),
		conversationN("19:group", 1),
	})

	out, _, err := tr.Transform(context.Background(), raw, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "19:group"}, out.Conversations.IDs())
}

func TestTransformElidesNullDisplayName(t *testing.T) {
	tr := New()
	raw := rawExportWith([]models.RawConversation{
		conversationN("kept", 2),
		{ID: "elided", DisplayName: nil, MessageList: []models.RawMessage{messageN("elided", 0)}},
		{ID: "empty-name", DisplayName: strPtr(""), MessageList: []models.RawMessage{messageN("empty-name", 0)}},
	})

	out, elided, err := tr.Transform(context.Background(), raw, "")
	require.NoError(t, err)

	assert.Equal(t, 1, elided)
	assert.Equal(t, 1, out.Metadata.ElidedConversations)
	assert.Nil(t, out.Conversations.Get("elided"))
	require.NotNil(t, out.Conversations.Get("empty-name"), "empty display name is kept")
	assert.Equal(t, "", out.Conversations.Get("empty-name").DisplayName)
	assert.Equal(t, 3, out.Metadata.TotalMessages, "elided conversation's messages not counted")
}

func TestTransformParallelMatchesSerial(t *testing.T) {
	raw := rawExportWith([]models.RawConversation{
		conversationN("c1", 257),
		conversationN("c2", 64),
		conversationN("c3", 1),
	})

	serial := New()
	serial.Workers = 1
	serial.ChunkSize = 25
	serialOut, _, err := serial.Transform(context.Background(), raw, "Alice")
	require.NoError(t, err)

	parallel := New()
	parallel.Workers = 4
	parallel.ChunkSize = 25
	parallelOut, _, err := parallel.Transform(context.Background(), raw, "Alice")
	require.NoError(t, err)

	serialJSON, err := json.Marshal(serialOut)
	require.NoError(t, err)
	parallelJSON, err := json.Marshal(parallelOut)
	require.NoError(t, err)
	assert.Equal(t, string(serialJSON), string(parallelJSON))
}

func TestTransformMessageErrorIsolation(t *testing.T) {
	tr := New()
	var recorded []string
	tr.Hooks.OnMessageError = func(message string, details map[string]any) {
		recorded = append(recorded, message)
	}

	raw := rawExportWith([]models.RawConversation{{
		ID:          "c1",
		DisplayName: strPtr("Chat"),
		MessageList: []models.RawMessage{
			messageN("c1", 0),
			{
				ID:          "broken",
				From:        "8:bob",
				Content:     "no uriobject",
				MessageType: "RichText/UriObject",
			},
			messageN("c1", 2),
		},
	}})

	out, _, err := tr.Transform(context.Background(), raw, "")
	require.NoError(t, err, "one failing message must not fail the transform")

	conv := out.Conversations.Get("c1")
	require.Len(t, conv.Messages, 3, "failing message still emitted")
	assert.Contains(t, conv.Messages[1].StructuredData, "extraction_error")
	assert.Len(t, recorded, 1)
}

func TestTransformProgressHook(t *testing.T) {
	tr := New()
	tr.ChunkSize = 10
	var last int
	tr.Hooks.OnChunkDone = func(processed, total int) {
		last = processed
		assert.Equal(t, 35, total)
	}

	raw := rawExportWith([]models.RawConversation{
		conversationN("c1", 20),
		conversationN("c2", 15),
	})
	_, _, err := tr.Transform(context.Background(), raw, "")
	require.NoError(t, err)
	assert.Equal(t, 35, last)
}

func TestTransformCancellation(t *testing.T) {
	tr := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	raw := rawExportWith([]models.RawConversation{conversationN("c1", 5)})
	_, _, err := tr.Transform(ctx, raw, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalizeShapes(t *testing.T) {
	t.Run("wrapped messages shape", func(t *testing.T) {
		doc := []byte(`{"messages":[{"userId":"8:inner","exportDate":"2023-01-01T00:00:00Z","conversations":[{"id":"c1","displayName":"Chat","MessageList":[]}]}]}`)
		var raw models.RawExport
		require.NoError(t, json.Unmarshal(doc, &raw))

		n, err := normalize(&raw)
		require.NoError(t, err)
		assert.Equal(t, "8:inner", n.UserID)
		require.Len(t, n.Conversations, 1)
		assert.Equal(t, "c1", n.Conversations[0].ID)
	})

	t.Run("bare messages become a pseudo conversation", func(t *testing.T) {
		doc := []byte(`{"userId":"8:alice","messages":[{"id":"m1","messagetype":"RichText","content":"hi"},{"id":"m2","messagetype":"RichText","content":"yo"}]}`)
		var raw models.RawExport
		require.NoError(t, json.Unmarshal(doc, &raw))

		n, err := normalize(&raw)
		require.NoError(t, err)
		require.Len(t, n.Conversations, 1)
		conv := n.Conversations[0]
		assert.Equal(t, "messages", conv.ID)
		assert.False(t, conv.Elided())
		assert.Len(t, conv.MessageList, 2)
	})

	t.Run("top-level conversations win over messages", func(t *testing.T) {
		doc := []byte(`{"userId":"8:alice","conversations":[{"id":"c1","displayName":"Chat","MessageList":[]}],"messages":[{"id":"m1"}]}`)
		var raw models.RawExport
		require.NoError(t, json.Unmarshal(doc, &raw))

		n, err := normalize(&raw)
		require.NoError(t, err)
		require.Len(t, n.Conversations, 1)
		assert.Equal(t, "c1", n.Conversations[0].ID)
	})

	t.Run("no conversations anywhere is an error", func(t *testing.T) {
		var raw models.RawExport
		require.NoError(t, json.Unmarshal([]byte(`{"userId":"8:alice"}`), &raw))
		_, err := normalize(&raw)
		assert.ErrorIs(t, err, ErrNoConversations)
	})
}

func TestBuildConversation(t *testing.T) {
	conv := &models.RawConversation{ID: "c1", DisplayName: strPtr("Chat")}
	messages := []models.TransformedMessage{
		{ID: "m1", SenderID: "8:bob", Timestamp: "2023-05-01T12:30:00Z"},
		{ID: "m2", SenderID: "8:alice", Timestamp: "2023-05-01T12:00:00Z"},
		{ID: "m3", SenderID: "8:bob", Timestamp: "garbage"},
	}

	out := buildConversation(conv, messages)
	assert.Equal(t, 3, out.MessageCount)
	assert.Equal(t, "2023-05-01T12:00:00Z", out.FirstMessageTime)
	assert.Equal(t, "2023-05-01T12:30:00Z", out.LastMessageTime)
	assert.Equal(t, []string{"8:alice", "8:bob"}, out.Participants)
}

func TestAttachmentsFor(t *testing.T) {
	t.Run("synthesized from media fields", func(t *testing.T) {
		atts := attachmentsFor(map[string]any{
			"media_url":      "https://obj",
			"media_filename": "photo.jpg",
			"media_filetype": "jpg",
			"media_filesize": int64(1234),
		}, nil)
		require.Len(t, atts, 1)
		assert.Equal(t, "photo.jpg", atts[0].Name)
		assert.Equal(t, "https://obj", atts[0].URL)
		assert.Equal(t, "jpg", atts[0].Type)
		assert.Equal(t, int64(1234), atts[0].Size)
	})

	t.Run("album items become attachments", func(t *testing.T) {
		atts := attachmentsFor(map[string]any{
			"media_url": "https://first",
			"media_album_items": []map[string]any{
				{"url": "https://first", "thumbnail": "https://t1"},
				{"url": "https://second"},
			},
		}, nil)
		// The first album item repeats media_url: it folds into the
		// synthesized attachment instead of duplicating it.
		require.Len(t, atts, 2)
		assert.Equal(t, "https://first", atts[0].URL)
		assert.Equal(t, map[string]any{"thumbnail_url": "https://t1"}, atts[0].Metadata)
		assert.Equal(t, "https://second", atts[1].URL)
	})

	t.Run("properties attachments list", func(t *testing.T) {
		atts := attachmentsFor(map[string]any{}, map[string]any{
			"attachments": []any{
				map[string]any{"name": "a.txt", "url": "https://a", "size": float64(10)},
			},
		})
		require.Len(t, atts, 1)
		assert.Equal(t, "a.txt", atts[0].Name)
		assert.Equal(t, int64(10), atts[0].Size)
	})

	t.Run("nothing yields nil", func(t *testing.T) {
		assert.Nil(t, attachmentsFor(map[string]any{}, nil))
	})
}

type stubDownloader struct {
	fail    map[string]bool
	fetched []string
}

func (d *stubDownloader) Fetch(_ context.Context, url string) (string, error) {
	d.fetched = append(d.fetched, url)
	if d.fail[url] {
		return "", fmt.Errorf("fetch %s: connection refused", url)
	}
	return "/media/" + url[len("https://host/"):], nil
}

func TestTransformDownloadsAttachments(t *testing.T) {
	tr := New()
	dl := &stubDownloader{fail: map[string]bool{"https://host/broken.png": true}}
	tr.Downloader = dl
	var recorded []string
	tr.Hooks.OnMessageError = func(message string, details map[string]any) {
		recorded = append(recorded, message)
	}

	withAttachment := func(id, url string) models.RawMessage {
		msg := messageN("c1", 0)
		msg.ID = id
		msg.Properties = map[string]any{
			"attachments": []any{
				map[string]any{"name": "file", "url": url},
			},
		}
		return msg
	}
	raw := rawExportWith([]models.RawConversation{{
		ID:          "c1",
		DisplayName: strPtr("Chat"),
		MessageList: []models.RawMessage{
			withAttachment("m1", "https://host/photo.jpg"),
			withAttachment("m2", "https://host/broken.png"),
		},
	}})

	out, _, err := tr.Transform(context.Background(), raw, "")
	require.NoError(t, err)
	assert.Len(t, dl.fetched, 2)

	msgs := out.Conversations.Get("c1").Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "/media/photo.jpg", msgs[0].Attachments[0].LocalPath)

	// A failed download keeps the URL and degrades to a non-fatal error.
	assert.Empty(t, msgs[1].Attachments[0].LocalPath)
	assert.Equal(t, "https://host/broken.png", msgs[1].Attachments[0].URL)
	require.Len(t, recorded, 1)
	assert.Contains(t, recorded[0], "attachment download failed")
}
