// Package transform implements the transform phase: normalizing the raw
// export into typed conversations and messages, with per-message handler
// dispatch and memory-bounded parallel chunk processing.
package transform

import (
	"context"
	"sort"

	"github.com/skyvault/skyvault/pkg/config"
	"github.com/skyvault/skyvault/pkg/content"
	"github.com/skyvault/skyvault/pkg/etl"
	"github.com/skyvault/skyvault/pkg/handlers"
	"github.com/skyvault/skyvault/pkg/media"
	"github.com/skyvault/skyvault/pkg/models"
)

// Hooks are optional callbacks the driver wires in. Transform works with
// the zero value; the pipeline path wires them to the ETL context.
type Hooks struct {
	// OnMessageError is called for each message whose handler failed. The
	// message is still emitted with a reduced payload.
	OnMessageError func(message string, details map[string]any)
	// OnChunkDone is called after each chunk completes, with cumulative
	// processed and total message counts.
	OnChunkDone func(processed, total int)
	// Memory gates chunk submission when over budget. Nil disables the
	// gate.
	Memory *etl.MemoryMonitor
}

// Transformer is the transform phase executor. The handler registry and
// content extractor are stateless and shared across workers.
type Transformer struct {
	registry  *handlers.Registry
	extractor *content.Extractor

	ChunkSize int
	Workers   int
	Hooks     Hooks

	// Downloader, when set, fetches attachment URLs to local files during
	// transform. Fetch failures keep the attachment URL-only.
	Downloader media.Downloader
}

// New returns a transformer with the default handler chain and serial
// defaults; the pipeline overrides ChunkSize and Workers from config.
func New() *Transformer {
	extractor := content.New()
	return &Transformer{
		registry:  handlers.NewRegistry(extractor),
		extractor: extractor,
		ChunkSize: 1000,
		Workers:   1,
	}
}

// Registry exposes the handler registry so drivers can register custom
// handlers ahead of the unknown fallback.
func (t *Transformer) Registry() *handlers.Registry { return t.registry }

// Phase implements etl.PhaseExecutor.
func (t *Transformer) Phase() models.Phase { return models.PhaseTransform }

// Run transforms the context's raw export and stores the result.
func (t *Transformer) Run(ctx context.Context, ec *etl.Context) error {
	raw, err := ec.Raw()
	if err != nil {
		return etl.NewError(etl.KindTransformation, models.PhaseTransform, "loading raw data", err)
	}

	if err := ec.StartPhase(models.PhaseTransform, 0, 0); err != nil {
		return etl.NewError(etl.KindInternal, models.PhaseTransform, "starting transform phase", err)
	}

	cfg := ec.Config
	run := *t
	run.ChunkSize = cfg.ChunkSize
	run.Workers = cfg.EffectiveWorkers()
	run.Hooks = Hooks{
		Memory: ec.Memory,
		OnMessageError: func(message string, details map[string]any) {
			ec.RecordError(models.PhaseTransform, message, details, false)
		},
		OnChunkDone: func(processed, total int) {
			ec.UpdateProgress(models.PhaseTransform, processed, total, "messages")
			ec.CheckMemory()
		},
	}

	out, elided, err := run.Transform(ctx, raw, ec.UserDisplayName)
	if err != nil {
		ec.RecordError(models.PhaseTransform, err.Error(), nil, true)
		return etl.NewError(etl.KindTransformation, models.PhaseTransform, "transforming export", err)
	}

	ec.Progress.AddElided(elided)
	out.Metadata.ElidedConversations = ec.Progress.Elided()
	if ec.UserID == "" {
		ec.UserID = out.Metadata.UserID
	}
	if ec.ExportDate == "" {
		ec.ExportDate = out.Metadata.ExportDate
	}
	ec.StoreTransformed(out)

	ec.Log().Info("Transform complete",
		"conversations", out.Conversations.Len(),
		"messages", out.Metadata.TotalMessages,
		"elided_conversations", elided,
		"workers", run.Workers)

	if err := ec.EndPhase(models.PhaseTransform, models.StatusCompleted); err != nil {
		return etl.NewError(etl.KindInternal, models.PhaseTransform, "ending transform phase", err)
	}
	return nil
}

// Transform normalizes the raw export into the transformed projection.
// Conversations are emitted in input order; within each conversation,
// parallel chunk processing preserves message order, so the output is
// identical to a serial run. Returns the number of elided conversations.
func (t *Transformer) Transform(ctx context.Context, raw *models.RawExport, userDisplayName string) (*models.TransformedExport, int, error) {
	norm, err := normalize(raw)
	if err != nil {
		return nil, 0, err
	}

	totalMessages := 0
	for i := range norm.Conversations {
		if !norm.Conversations[i].Elided() {
			totalMessages += len(norm.Conversations[i].MessageList)
		}
	}

	out := &models.TransformedExport{
		Metadata: models.ExportMetadata{
			UserID:          norm.UserID,
			UserDisplayName: userDisplayName,
			ExportDate:      norm.ExportDate,
		},
		Conversations: models.NewConversationMap(),
	}

	elided := 0
	processed := 0
	for i := range norm.Conversations {
		if err := ctx.Err(); err != nil {
			return nil, elided, err
		}
		conv := &norm.Conversations[i]
		if conv.Elided() {
			elided++
			continue
		}

		messages, err := t.transformMessages(ctx, conv, &processed, totalMessages)
		if err != nil {
			return nil, elided, err
		}
		out.Conversations.Set(conv.ID, buildConversation(conv, messages))
	}

	out.Metadata.TotalConversations = out.Conversations.Len()
	out.Metadata.TotalMessages = processed
	out.Metadata.ElidedConversations = elided
	return out, elided, nil
}

// transformMessage builds the normalized projection of one message. It
// never fails: handler errors degrade to a reduced structured payload and
// are reported through the hook.
func (t *Transformer) transformMessage(ctx context.Context, conv *models.RawConversation, msg *models.RawMessage) models.TransformedMessage {
	data, err := t.registry.Extract(msg)
	if err != nil && t.Hooks.OnMessageError != nil {
		t.Hooks.OnMessageError(err.Error(), map[string]any{
			"conversation_id": conv.ID,
			"message_id":      msg.ID,
			"message_type":    msg.MessageType,
		})
	}

	attachments := attachmentsFor(data, msg.Properties)
	t.downloadAttachments(ctx, attachments)

	return models.TransformedMessage{
		ID:                msg.ID,
		ConversationID:    conv.ID,
		Timestamp:         msg.OriginalArrivalTime,
		SenderID:          msg.From,
		SenderDisplayName: msg.SenderName(),
		RawContent:        msg.Content,
		CleanedContent:    t.extractor.FormatMarkup(msg.Content),
		MessageType:       msg.MessageType,
		IsEdited:          msg.Edited(),
		StructuredData:    data,
		Attachments:       attachments,
	}
}

// downloadAttachments resolves local paths for attachments with URLs. A
// failed fetch is reported through the error hook but never fails the
// message; the attachment keeps its remote URL.
func (t *Transformer) downloadAttachments(ctx context.Context, attachments []models.Attachment) {
	if t.Downloader == nil {
		return
	}
	for i := range attachments {
		if attachments[i].URL == "" {
			continue
		}
		path, err := t.Downloader.Fetch(ctx, attachments[i].URL)
		if err != nil {
			if t.Hooks.OnMessageError != nil {
				t.Hooks.OnMessageError("attachment download failed: "+err.Error(), map[string]any{
					"url": attachments[i].URL,
				})
			}
			continue
		}
		attachments[i].LocalPath = path
	}
}

// buildConversation assembles conversation-level fields from its ordered
// messages: counts, first/last timestamps, and the participant set.
func buildConversation(conv *models.RawConversation, messages []models.TransformedMessage) *models.TransformedConversation {
	out := &models.TransformedConversation{
		ID:           conv.ID,
		Messages:     messages,
		MessageCount: len(messages),
	}
	if conv.DisplayName != nil {
		out.DisplayName = *conv.DisplayName
	}

	seen := map[string]bool{}
	for i := range messages {
		m := &messages[i]
		if m.SenderID != "" && !seen[m.SenderID] {
			seen[m.SenderID] = true
			out.Participants = append(out.Participants, m.SenderID)
		}
		ts := m.Time()
		if ts.IsZero() {
			continue
		}
		if out.FirstMessageTime == "" || ts.Before(models.ParseTimestamp(out.FirstMessageTime)) {
			out.FirstMessageTime = m.Timestamp
		}
		if out.LastMessageTime == "" || ts.After(models.ParseTimestamp(out.LastMessageTime)) {
			out.LastMessageTime = m.Timestamp
		}
	}
	sort.Strings(out.Participants)
	return out
}

// effectiveChunkSize guards against zero/negative configuration.
func (t *Transformer) effectiveChunkSize() int {
	if t.ChunkSize <= 0 {
		return config.Default().ChunkSize
	}
	return t.ChunkSize
}

func (t *Transformer) effectiveWorkers() int {
	if t.Workers <= 0 {
		return 1
	}
	return t.Workers
}
