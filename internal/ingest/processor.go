// Package ingest orchestrates the webhook ingestion pipeline: verify,
// parse, chunk, embed, build records, durable upsert, hot-index sync.
package ingest

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/aurorahq/echomem/internal/chunker"
	"github.com/aurorahq/echomem/internal/dlq"
	"github.com/aurorahq/echomem/internal/embedding"
	"github.com/aurorahq/echomem/internal/hotindex"
	"github.com/aurorahq/echomem/internal/metrics"
	"github.com/aurorahq/echomem/internal/model"
	"github.com/aurorahq/echomem/internal/store"
	"github.com/aurorahq/echomem/internal/webhook"
)

// CallbackResult summarizes one ingestion call. Used only for metrics and
// the caller's response, never persisted.
type CallbackResult struct {
	ConversationIDs []string `json:"conversation_ids"`
	IngestedChunks  int      `json:"ingested_chunks"`
	StoredRecords   int      `json:"stored_records"`
	Evicted         int      `json:"evicted"`
}

// Options carries the pipeline's policy knobs.
type Options struct {
	VerifySignatures bool
	WebhookSecret    string
	Tolerance        time.Duration
}

// Processor executes the ingestion pipeline. All collaborators are
// injected; failures at any stage dead-letter the raw body before the
// error propagates.
type Processor struct {
	opts     Options
	store    store.Store
	chunker  *chunker.TextChunker
	embedder embedding.Embedder
	index    *hotindex.Manager
	dlq      *dlq.Queue
	metrics  *metrics.Registry
	logger   *slog.Logger
}

// NewProcessor wires the pipeline. metrics may be nil.
func NewProcessor(
	st store.Store,
	ch *chunker.TextChunker,
	emb embedding.Embedder,
	index *hotindex.Manager,
	queue *dlq.Queue,
	reg *metrics.Registry,
	opts Options,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		opts:     opts,
		store:    st,
		chunker:  ch,
		embedder: emb,
		index:    index,
		dlq:      queue,
		metrics:  reg,
		logger:   logger.With("component", "ingest"),
	}
}

type chunkPair struct {
	msg   IngestMessage
	chunk chunker.Chunk
}

// Process runs the full pipeline from signature verification to hot-index
// sync. Once verification passes, the call either completes or the body is
// dead-lettered; a batch is never partially applied.
func (p *Processor) Process(ctx context.Context, body []byte, signatureHeader string) (CallbackResult, error) {
	if p.opts.VerifySignatures {
		if err := webhook.Verify(signatureHeader, body, p.opts.WebhookSecret, p.opts.Tolerance); err != nil {
			p.deadLetter(body, "signature:"+err.Error(), map[string]any{"signature": signatureHeader})
			p.metrics.ObserveFailure("signature")
			return CallbackResult{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
	} else {
		p.logger.Warn("skipping webhook signature verification")
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		p.deadLetter(body, "json:"+err.Error(), nil)
		p.metrics.ObserveFailure("malformed")
		return CallbackResult{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	messages, err := extractMessages(payload, p.logger)
	if err != nil {
		p.deadLetter(body, "payload:"+err.Error(), nil)
		p.metrics.ObserveFailure("unsupported")
		return CallbackResult{}, err
	}
	if len(messages) == 0 {
		p.logger.Info("no messages extracted from ingest payload")
		return CallbackResult{}, nil
	}

	conversationIDs := distinctConversationIDs(messages)

	var pairs []chunkPair
	for _, msg := range messages {
		for _, c := range p.chunker.Chunk(msg.Text) {
			pairs = append(pairs, chunkPair{msg: msg, chunk: c})
		}
	}
	if len(pairs) == 0 {
		p.logger.Info("no eligible chunks after applying thresholds", "messages", len(messages))
		return CallbackResult{ConversationIDs: conversationIDs}, nil
	}

	records, err := p.embedAndBuild(ctx, pairs)
	if err != nil {
		p.deadLetter(body, "embedding:"+err.Error(), nil)
		p.metrics.ObserveFailure("embedding")
		return CallbackResult{}, fmt.Errorf("%w: %v", ErrEmbeddingContract, err)
	}

	upserted, err := p.store.Upsert(ctx, records)
	if err != nil {
		p.deadLetter(body, "store:"+err.Error(), nil)
		p.metrics.ObserveFailure("store")
		return CallbackResult{}, fmt.Errorf("%w: %v", ErrDurableWrite, err)
	}

	// The durable write succeeded; index-sync failures are per-record
	// skips inside AddOrUpdate, never a rollback.
	added := p.index.AddOrUpdate(records)
	evicted := p.index.MaintainHotWindow()

	result := CallbackResult{
		ConversationIDs: conversationIDs,
		IngestedChunks:  len(pairs),
		StoredRecords:   upserted,
		Evicted:         evicted,
	}
	p.metrics.ObserveCallback(result.IngestedChunks, result.StoredRecords, result.Evicted)
	p.metrics.SetHotIndexSize(p.index.Size())
	p.logger.Info("processed ingest callback",
		"chunks", len(pairs), "upserted", upserted, "indexed", added,
		"evicted", evicted, "conversations", len(conversationIDs))
	return result, nil
}

// Recall embeds a query text and searches the hot index.
func (p *Processor) Recall(ctx context.Context, text string, topK int) ([]hotindex.Result, error) {
	vector, err := p.embedder.EmbedText(ctx, p.chunker.Normalize(text))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return p.index.Query(vector, topK), nil
}

// embedAndBuild issues one batched embedding call for all chunks and
// constructs their records. A count mismatch between chunks and vectors is
// an upstream contract violation and aborts the call.
func (p *Processor) embedAndBuild(ctx context.Context, pairs []chunkPair) ([]model.MemoryRecord, error) {
	chunks := make([]chunker.Chunk, len(pairs))
	for i, pair := range pairs {
		chunks[i] = pair.chunk
	}
	results, err := p.embedder.EmbedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}
	if len(results) != len(pairs) {
		return nil, fmt.Errorf("embedding result count mismatch: %d vectors for %d chunks", len(results), len(pairs))
	}

	records := make([]model.MemoryRecord, 0, len(pairs))
	for i, pair := range pairs {
		record := p.buildRecord(pair.msg, results[i])
		if err := record.Validate(); err != nil {
			return nil, fmt.Errorf("build record: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

// buildRecord derives the record's idempotency hash from the conversation,
// turn, chunk offset and chunk content hash, widened with the client
// message id when one is present so distinct messages reusing a turn
// number cannot collide. Replaying an identical webhook body therefore
// produces identical hashes and is a durable no-op.
func (p *Processor) buildRecord(msg IngestMessage, result embedding.Result) model.MemoryRecord {
	hashInput := fmt.Sprintf("%s:%d:%d:%s", msg.ConversationID, msg.Turn, result.Chunk.TokenStart, result.Chunk.Hash)
	if msg.MessageID != "" {
		hashInput += ":" + msg.MessageID
	}
	digest := sha1.Sum([]byte(hashInput))
	recordHash := hex.EncodeToString(digest[:])

	return model.MemoryRecord{
		ID:             uuid.NewSHA1(uuid.NameSpaceURL, []byte(recordHash)).String(),
		Hash:           recordHash,
		ConvID:         msg.ConversationID,
		Turn:           msg.Turn,
		Speaker:        model.ResolveSpeaker(msg.Speaker),
		Timestamp:      msg.Timestamp,
		RawText:        result.Chunk.RawText,
		NormalizedText: result.Chunk.NormalizedText,
		Embedding:      result.Vector,
		EmbedModel:     p.embedder.Model(),
		EmbedDim:       len(result.Vector),
		Tags:           msg.Tags,
		Source:         msg.Source,
	}
}

// deadLetter persists the failing body, best-effort. A DLQ write failure
// is logged and swallowed; the original error is already propagating.
func (p *Processor) deadLetter(body []byte, reason string, extra map[string]any) {
	path, err := p.dlq.Write(body, reason, extra)
	if err != nil {
		p.logger.Error("failed to persist payload to dlq", "reason", reason, "error", err)
		return
	}
	p.metrics.ObserveDLQWrite()
	p.logger.Error("persisted payload to dlq", "path", path, "reason", reason)
}

func distinctConversationIDs(messages []IngestMessage) []string {
	seen := make(map[string]bool, len(messages))
	var ids []string
	for _, msg := range messages {
		if !seen[msg.ConversationID] {
			seen[msg.ConversationID] = true
			ids = append(ids, msg.ConversationID)
		}
	}
	sort.Strings(ids)
	return ids
}
