// Package model defines the core memory data types.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Speaker identifies who produced a memory's text.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
	SpeakerSystem    Speaker = "system"
	SpeakerOther     Speaker = "other"
)

// speakerAliases maps common upstream role names onto canonical speakers.
var speakerAliases = map[string]Speaker{
	"agent":    SpeakerAssistant,
	"bot":      SpeakerAssistant,
	"customer": SpeakerUser,
}

// ResolveSpeaker maps a free-form speaker string onto a Speaker.
// Unrecognized values resolve to SpeakerOther rather than failing,
// so a misbehaving client cannot abort ingestion.
func ResolveSpeaker(s string) Speaker {
	key := strings.ToLower(strings.TrimSpace(s))
	switch v := Speaker(key); v {
	case SpeakerUser, SpeakerAssistant, SpeakerSystem, SpeakerOther:
		return v
	}
	if v, ok := speakerAliases[key]; ok {
		return v
	}
	return SpeakerOther
}

// MemoryRecord is the atomic unit of conversation memory. Records are
// immutable once stored; the content hash is the idempotency key that
// collapses duplicate ingestion of the same logical memory.
type MemoryRecord struct {
	ID             string    `json:"id"`
	Hash           string    `json:"hash"`
	ConvID         string    `json:"conv_id"`
	Turn           int       `json:"turn"`
	Speaker        Speaker   `json:"speaker"`
	Timestamp      time.Time `json:"ts"`
	RawText        string    `json:"raw_text"`
	NormalizedText string    `json:"normalized_text"`
	Embedding      []float32 `json:"embedding"`
	EmbedModel     string    `json:"embed_model"`
	EmbedDim       int       `json:"embed_dim"`
	Tags           []string  `json:"tags,omitempty"`
	Source         string    `json:"source"`
}

// Validate enforces record invariants and normalizes the timestamp to UTC.
func (r *MemoryRecord) Validate() error {
	if r.Hash == "" {
		return fmt.Errorf("memory record requires a hash for idempotent upserts")
	}
	if r.EmbedModel == "" {
		return fmt.Errorf("memory record requires an embed model")
	}
	if r.EmbedDim != len(r.Embedding) {
		return fmt.Errorf("embed dim %d does not match vector length %d", r.EmbedDim, len(r.Embedding))
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	r.Timestamp = r.Timestamp.UTC()
	return nil
}
