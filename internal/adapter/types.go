// Package adapter parses raw, source-specific chat-history blobs into a
// single intermediate record shape. Adapters never fail a whole batch: a
// malformed blob is logged and skipped so sibling blobs keep flowing.
package adapter

import "time"

// RawConversation is the source-agnostic intermediate produced by every
// adapter. It is transient: consumed by the normalizer, never persisted.
type RawConversation struct {
	SourceID  string
	Title     string
	StartTime time.Time
	EndTime   time.Time
	Messages  []RawMessage
	Origin    string // source file path or table name, for fallback titles
}

// RawMessage is one raw turn. Content is the flattened text of the turn,
// with code kept inside fenced blocks for the normalizer to split.
type RawMessage struct {
	ID        string
	Role      string
	Content   string
	Timestamp time.Time
}

// Empty reports whether the record carries no usable messages.
func (r RawConversation) Empty() bool {
	for _, m := range r.Messages {
		if m.Content != "" {
			return false
		}
	}
	return true
}
