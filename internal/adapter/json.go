package adapter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/anderson/internal/model"
)

// ParseJSON parses one raw JSON blob into zero or more RawConversations.
// It recognizes every shape the IDE assistant has been seen writing:
//
//   - a list of conversation objects
//   - a single object with a "messages" list
//   - an object with a "conversations" list
//   - an object keyed by conversation id, mapping to conversation objects
//   - a bare two-turn {"user": ..., "assistant": ...} / {"human": ..., "ai": ...}
//
// Malformed input is logged and yields an empty slice.
func ParseJSON(data []byte, origin string, logger *slog.Logger) []RawConversation {
	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		logger.Warn("invalid json blob", "origin", origin, "error", err)
		return nil
	}

	var out []RawConversation

	switch v := root.(type) {
	case []any:
		for _, item := range v {
			if m, ok := item.(map[string]any); ok && IsConversation(m) {
				if rc, ok := promote(m, origin); ok {
					out = append(out, rc)
				}
			}
		}
	case map[string]any:
		if IsConversation(v) {
			if rc, ok := promote(v, origin); ok {
				out = append(out, rc)
			}
			break
		}
		if list, ok := v["conversations"].([]any); ok {
			for _, item := range list {
				if m, ok := item.(map[string]any); ok && IsConversation(m) {
					if rc, ok := promote(m, origin); ok {
						out = append(out, rc)
					}
				}
			}
			break
		}
		// Object keyed by conversation id. Keys are sorted so output order
		// is deterministic across runs.
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			m, ok := v[k].(map[string]any)
			if !ok || !IsConversation(m) {
				continue
			}
			rc, ok := promote(m, origin)
			if !ok {
				continue
			}
			if _, hasID := m["id"]; !hasID {
				rc.SourceID = k
			}
			out = append(out, rc)
		}
	default:
		logger.Warn("unrecognized json shape", "origin", origin)
	}

	return out
}

// IsConversation is the validity predicate gating promotion to a
// RawConversation: an id (or derivable id) plus a non-empty message
// collection, or one of the two-turn shortcut shapes.
func IsConversation(data map[string]any) bool {
	switch msgs := data["messages"].(type) {
	case []any:
		if len(msgs) > 0 {
			return true
		}
	case map[string]any:
		if len(msgs) > 0 {
			return true
		}
	}
	if _, ok := data["user"]; ok {
		if _, ok := data["assistant"]; ok {
			return true
		}
	}
	if _, ok := data["human"]; ok {
		if _, ok := data["ai"]; ok {
			return true
		}
	}
	return false
}

// promote converts a conversation-shaped map into the intermediate record.
func promote(data map[string]any, origin string) (RawConversation, bool) {
	rc := RawConversation{Origin: origin}

	if title, ok := data["title"].(string); ok {
		rc.Title = title
	}
	if raw := firstOf(data, "created_at", "timestamp", "start_time"); raw != nil {
		rc.StartTime = ParseTimestamp(raw)
	}
	if raw := firstOf(data, "updated_at", "last_message_timestamp", "end_time"); raw != nil {
		rc.EndTime = ParseTimestamp(raw)
	}

	switch msgs := data["messages"].(type) {
	case []any:
		for _, item := range msgs {
			if m, ok := item.(map[string]any); ok {
				rc.Messages = append(rc.Messages, promoteMessage(m))
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(msgs))
		for k := range msgs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if m, ok := msgs[k].(map[string]any); ok {
				rm := promoteMessage(m)
				if rm.ID == "" {
					rm.ID = k
				}
				rc.Messages = append(rc.Messages, rm)
			}
		}
	default:
		rc.Messages = twoTurnMessages(data, rc.StartTime, rc.EndTime)
	}

	if len(rc.Messages) == 0 || rc.Empty() {
		return RawConversation{}, false
	}

	if id, ok := data["id"]; ok {
		rc.SourceID = stringID(id)
	}
	if rc.SourceID == "" {
		// No id anywhere in the record: derive one from the content so
		// re-ingesting the same blob converges on the same conversation.
		parts := make([]string, 0, len(rc.Messages))
		for _, m := range rc.Messages {
			parts = append(parts, m.Role, m.Content)
		}
		rc.SourceID = model.ContentHash(parts...)
	}

	return rc, true
}

// twoTurnMessages handles the {"user": ..., "assistant": ...} and
// {"human": ..., "ai": ...} shortcut shapes. The assistant turn never sorts
// ahead of the user turn even when the record carries no timestamps.
func twoTurnMessages(data map[string]any, start, end time.Time) []RawMessage {
	if start.IsZero() {
		start = time.Now().UTC()
	}
	if end.IsZero() || end.Before(start) {
		end = start
	}
	pairs := [][2]string{{"user", "assistant"}, {"human", "ai"}}
	for _, p := range pairs {
		userText, uok := data[p[0]].(string)
		aiText, aok := data[p[1]].(string)
		if !uok && !aok {
			continue
		}
		var msgs []RawMessage
		if uok && strings.TrimSpace(userText) != "" {
			msgs = append(msgs, RawMessage{Role: "user", Content: userText, Timestamp: start})
		}
		if aok && strings.TrimSpace(aiText) != "" {
			msgs = append(msgs, RawMessage{Role: "assistant", Content: aiText, Timestamp: end})
		}
		if len(msgs) > 0 {
			return msgs
		}
	}
	return nil
}

func promoteMessage(m map[string]any) RawMessage {
	rm := RawMessage{}
	if id, ok := m["id"]; ok {
		rm.ID = stringID(id)
	}
	if role, ok := m["role"].(string); ok {
		rm.Role = role
	} else {
		rm.Role = "user"
	}
	rm.Timestamp = ParseTimestamp(firstOf(m, "timestamp", "created_at"))
	rm.Content = flattenContent(m["content"])
	if rm.Content == "" {
		rm.Content = flattenContent(m["text"])
	}
	return rm
}

// flattenContent reduces a raw content value to a single string. Structured
// block arrays are flattened with code re-fenced so the normalizer's
// delimiter splitting sees one uniform representation.
func flattenContent(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case []any:
		var sb strings.Builder
		for _, item := range c {
			block, ok := item.(map[string]any)
			if !ok {
				continue
			}
			text, _ := block["text"].(string)
			if text == "" {
				text, _ = block["content"].(string)
			}
			if text == "" {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			if bt, _ := block["type"].(string); strings.EqualFold(bt, "code") {
				lang, _ := block["language"].(string)
				sb.WriteString("```" + lang + "\n" + text + "\n```")
			} else {
				sb.WriteString(text)
			}
		}
		return sb.String()
	default:
		return ""
	}
}

// stringID renders a raw id value as a stable string. JSON numbers arrive as
// float64, and fmt would print large integral ids in scientific notation.
func stringID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		if id == math.Trunc(id) && math.Abs(id) < 1<<53 {
			return strconv.FormatInt(int64(id), 10)
		}
		return strconv.FormatFloat(id, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}
