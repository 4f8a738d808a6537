package transform

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skyvault/skyvault/pkg/models"
)

// backPressurePoll is how often a blocked submitter re-checks the memory
// gate.
const backPressurePoll = 25 * time.Millisecond

// perMessageOverhead pads the in-flight estimate beyond raw content bytes
// to account for the decoded structures a chunk expands into.
const perMessageOverhead = 512

// chunkJob is one contiguous slice of a conversation's messages.
type chunkJob struct {
	index    int
	messages []models.RawMessage
	bytes    int64
}

// transformMessages runs a conversation's messages through the handler
// chain, in chunks across the worker pool. Results are written into a
// per-chunk slot table and concatenated in chunk order, so the output is
// byte-equal to a serial pass regardless of worker scheduling.
func (t *Transformer) transformMessages(ctx context.Context, conv *models.RawConversation, processed *int, total int) ([]models.TransformedMessage, error) {
	msgs := conv.MessageList
	if len(msgs) == 0 {
		return []models.TransformedMessage{}, nil
	}

	chunkSize := t.effectiveChunkSize()
	workers := t.effectiveWorkers()
	if workers == 1 || len(msgs) <= chunkSize {
		out := make([]models.TransformedMessage, 0, len(msgs))
		for i := range msgs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out = append(out, t.transformMessage(ctx, conv, &msgs[i]))
		}
		*processed += len(msgs)
		t.chunkDone(*processed, total)
		return out, nil
	}

	nChunks := (len(msgs) + chunkSize - 1) / chunkSize
	results := make([][]models.TransformedMessage, nChunks)
	jobs := make(chan chunkJob)
	base := *processed

	var wg sync.WaitGroup
	var done atomic.Int64
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				out := make([]models.TransformedMessage, 0, len(job.messages))
				for i := range job.messages {
					if ctx.Err() != nil {
						break
					}
					out = append(out, t.transformMessage(ctx, conv, &job.messages[i]))
				}
				results[job.index] = out
				t.releaseMemory(job.bytes)
				t.chunkDone(base+int(done.Add(int64(len(out)))), total)
			}
		}()
	}

	var submitErr error
	for i := 0; i < nChunks; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(msgs) {
			end = len(msgs)
		}
		job := chunkJob{
			index:    i,
			messages: msgs[start:end],
			bytes:    estimateChunkBytes(msgs[start:end]),
		}
		if err := t.waitForMemory(ctx); err != nil {
			submitErr = err
			break
		}
		t.reserveMemory(job.bytes)
		select {
		case jobs <- job:
		case <-ctx.Done():
			t.releaseMemory(job.bytes)
			submitErr = ctx.Err()
		}
		if submitErr != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()

	if submitErr != nil {
		return nil, submitErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]models.TransformedMessage, 0, len(msgs))
	for _, chunk := range results {
		out = append(out, chunk...)
	}
	*processed = base + len(out)
	return out, nil
}

// waitForMemory blocks while the monitor reports usage at or above the
// back-pressure threshold, letting in-flight chunks drain.
func (t *Transformer) waitForMemory(ctx context.Context) error {
	m := t.Hooks.Memory
	if m == nil {
		return nil
	}
	for m.OverBudget() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backPressurePoll):
		}
	}
	return nil
}

func (t *Transformer) reserveMemory(bytes int64) {
	if t.Hooks.Memory != nil {
		t.Hooks.Memory.Reserve(bytes)
	}
}

func (t *Transformer) releaseMemory(bytes int64) {
	if t.Hooks.Memory != nil {
		t.Hooks.Memory.Release(bytes)
	}
}

func (t *Transformer) chunkDone(processed, total int) {
	if t.Hooks.OnChunkDone != nil {
		t.Hooks.OnChunkDone(processed, total)
	}
}

// estimateChunkBytes approximates the memory a chunk occupies while in
// flight: raw content plus a fixed per-message decode overhead.
func estimateChunkBytes(msgs []models.RawMessage) int64 {
	var n int64
	for i := range msgs {
		n += int64(len(msgs[i].Content)) + perMessageOverhead
	}
	return n
}
