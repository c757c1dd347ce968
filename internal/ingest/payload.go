package ingest

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// IngestMessage is a normalized inbound unit extracted from a webhook
// payload. It exists only during payload parsing.
type IngestMessage struct {
	ConversationID string
	MessageID      string
	Turn           int
	Speaker        string
	Text           string
	Timestamp      time.Time
	Tags           []string
	Source         string
}

// extractMessages accepts the three recognized payload shapes: a single
// message object, an object with a "messages" array (optionally carrying a
// shared conversation id inherited by members lacking one), or a bare array
// of message objects. Messages missing a conversation id or text are
// skipped with a debug note, not fatal.
func extractMessages(payload any, logger *slog.Logger) ([]IngestMessage, error) {
	var raw []any
	switch p := payload.(type) {
	case []any:
		raw = p
	case map[string]any:
		if msgs, ok := p["messages"]; ok {
			list, ok := msgs.([]any)
			if !ok {
				return nil, fmt.Errorf("%w: messages is not an array", ErrUnsupportedPayload)
			}
			baseConv := resolveConversationID(p)
			for _, item := range list {
				if m, ok := item.(map[string]any); ok && baseConv != "" {
					if _, has := m["conversation_id"]; !has {
						withConv := make(map[string]any, len(m)+1)
						for k, v := range m {
							withConv[k] = v
						}
						withConv["conversation_id"] = baseConv
						item = withConv
					}
				}
				raw = append(raw, item)
			}
		} else {
			raw = []any{p}
		}
	default:
		return nil, fmt.Errorf("%w: expected object or array", ErrUnsupportedPayload)
	}

	var messages []IngestMessage
	for _, item := range raw {
		if msg, ok := parseMessage(item, logger); ok {
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

// parseMessage resolves every field via ordered fallbacks over the
// recognized synonyms. Returns false for anything unusable.
func parseMessage(data any, logger *slog.Logger) (IngestMessage, bool) {
	obj, ok := data.(map[string]any)
	if !ok {
		logger.Debug("skipping non-object message payload")
		return IngestMessage{}, false
	}
	conversationID := resolveConversationID(obj)
	if conversationID == "" {
		logger.Debug("skipping message without conversation id")
		return IngestMessage{}, false
	}
	text := asString(firstNonEmpty(obj["text"], obj["message"], obj["content"]))
	if text == "" {
		logger.Debug("skipping message without text", "conversation_id", conversationID)
		return IngestMessage{}, false
	}
	return IngestMessage{
		ConversationID: conversationID,
		MessageID:      asString(firstNonEmpty(obj["message_id"], obj["id"])),
		Turn:           coerceInt(firstNonEmpty(obj["turn"], obj["sequence"], obj["position"]), 0),
		Speaker:        asString(firstNonEmpty(obj["speaker"], obj["role"], "unknown")),
		Text:           text,
		Timestamp:      parseTimestamp(firstNonEmpty(obj["timestamp"], obj["ts"], obj["time"]), logger),
		Tags:           asStringSlice(obj["tags"]),
		Source:         asString(firstNonEmpty(obj["source"], "ingest-webhook")),
	}, true
}

// resolveConversationID accepts "conversation_id" or a nested
// "conversation": {"id": ...}.
func resolveConversationID(obj map[string]any) string {
	var nested any
	if conv, ok := obj["conversation"].(map[string]any); ok {
		nested = conv["id"]
	}
	return asString(firstNonEmpty(obj["conversation_id"], nested))
}

// firstNonEmpty returns the first value that is neither nil nor a blank
// string. It is the ordered-fallback resolver behind the duck-typed
// payload fields.
func firstNonEmpty(values ...any) any {
	for _, v := range values {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		return v
	}
	return nil
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", s)
	}
}

func asStringSlice(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func coerceInt(v any, def int) int {
	switch n := v.(type) {
	case nil:
		return def
	case float64:
		return int(n)
	case int:
		return n
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return parsed
		}
	}
	return def
}

// parseTimestamp accepts ISO-8601 strings and epoch seconds, defaulting
// to now on parse failure.
func parseTimestamp(v any, logger *slog.Logger) time.Time {
	switch ts := v.(type) {
	case nil:
	case float64:
		sec, frac := int64(ts), ts-float64(int64(ts))
		return time.Unix(sec, int64(frac*1e9)).UTC()
	case string:
		cleaned := strings.TrimSpace(ts)
		if t, err := time.Parse(time.RFC3339, cleaned); err == nil {
			return t.UTC()
		}
		if epoch, err := strconv.ParseFloat(cleaned, 64); err == nil {
			return time.Unix(int64(epoch), 0).UTC()
		}
		logger.Debug("unable to parse timestamp, defaulting to now", "value", ts)
	}
	return time.Now().UTC()
}
