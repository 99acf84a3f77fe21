// Package normalize converts raw source records into canonical
// conversations: roles mapped onto the shared enum, fenced code split into
// typed blocks, messages sorted chronologically, and titles synthesized
// when the source carries none.
package normalize

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/anderson/internal/adapter"
	"github.com/MikeSquared-Agency/anderson/internal/model"
)

const titleMaxLen = 50

// Conversation builds the canonical conversation for one raw record. The
// conversation ID is derived from (source, sourceID) so the same record
// always normalizes to the same identity.
func Conversation(raw adapter.RawConversation, source model.Source) model.Conversation {
	msgs := make([]model.Message, 0, len(raw.Messages))
	for _, rm := range raw.Messages {
		if strings.TrimSpace(rm.Content) == "" {
			continue
		}
		msgs = append(msgs, model.Message{
			ID:        uuid.New(),
			Role:      model.ParseRole(rm.Role),
			Timestamp: rm.Timestamp.UTC(),
			Blocks:    SplitBlocks(rm.Content),
		})
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})

	start, end := raw.StartTime, raw.EndTime
	if len(msgs) > 0 {
		if start.IsZero() {
			start = msgs[0].Timestamp
		}
		if end.IsZero() {
			end = msgs[len(msgs)-1].Timestamp
		}
	}
	if start.IsZero() {
		start = time.Now().UTC()
	}
	if end.Before(start) {
		end = start
	}

	conv := model.Conversation{
		ID:        model.ConversationID(source, raw.SourceID),
		Source:    source,
		SourceID:  raw.SourceID,
		Title:     raw.Title,
		StartTime: start.UTC(),
		EndTime:   end.UTC(),
		Messages:  msgs,
	}
	if conv.Title == "" {
		conv.Title = synthesizeTitle(msgs, raw.Origin)
	}
	if raw.Origin != "" {
		conv.Metadata = map[string]string{"origin": raw.Origin}
	}
	return conv
}

// SplitBlocks separates fenced code from prose. Segments between ``` fences
// alternate text, code, text; a bare word on the first fence line is taken
// as the language tag.
func SplitBlocks(content string) []model.ContentBlock {
	segments := strings.Split(content, "```")
	var blocks []model.ContentBlock
	for i, seg := range segments {
		if i%2 == 1 {
			lang, code := splitLanguageTag(seg)
			if strings.TrimSpace(code) == "" {
				continue
			}
			blocks = append(blocks, model.ContentBlock{
				Type:     model.ContentCode,
				Content:  strings.Trim(code, "\n"),
				Language: lang,
			})
			continue
		}
		text := strings.TrimSpace(seg)
		if text == "" {
			continue
		}
		blocks = append(blocks, model.ContentBlock{Type: model.ContentText, Content: text})
	}
	return blocks
}

// splitLanguageTag peels the language identifier off the first line of a
// fenced segment. Anything with spaces is code, not a tag.
func splitLanguageTag(seg string) (lang, code string) {
	first, rest, found := strings.Cut(seg, "\n")
	first = strings.TrimSpace(first)
	if !found {
		return "", seg
	}
	if first == "" || strings.ContainsAny(first, " \t") {
		return "", seg
	}
	return strings.ToLower(first), rest
}

// synthesizeTitle takes the first user line when the source has no title,
// falling back to the origin file name.
func synthesizeTitle(msgs []model.Message, origin string) string {
	for _, m := range msgs {
		if m.Role != model.RoleUser {
			continue
		}
		text := strings.TrimSpace(m.Text())
		if text == "" {
			continue
		}
		if line, _, ok := strings.Cut(text, "\n"); ok {
			text = strings.TrimSpace(line)
		}
		if r := []rune(text); len(r) > titleMaxLen {
			return string(r[:titleMaxLen]) + "..."
		}
		return text
	}
	if origin != "" {
		return fmt.Sprintf("Imported from %s", filepath.Base(origin))
	}
	return "Untitled conversation"
}

// Batch normalizes a slice of raw records, dropping empty ones.
func Batch(raws []adapter.RawConversation, source model.Source) []model.Conversation {
	out := make([]model.Conversation, 0, len(raws))
	for _, raw := range raws {
		if raw.Empty() {
			continue
		}
		conv := Conversation(raw, source)
		if len(conv.Messages) == 0 {
			continue
		}
		out = append(out, conv)
	}
	return out
}
