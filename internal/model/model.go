// Package model defines the canonical conversation and insight entities
// shared across the ingestion and analysis pipeline.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source identifies where a conversation originated.
type Source string

const (
	SourceCursor Source = "cursor"
	SourceClaude Source = "claude"
)

// Role is the speaker of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ContentType is the kind of content held by a ContentBlock.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentCode  ContentType = "code"
	ContentImage ContentType = "image"
	ContentFile  ContentType = "file"
)

// ContentBlock is one typed segment of a message.
type ContentBlock struct {
	Type     ContentType       `json:"type"`
	Content  string            `json:"content"`
	Language string            `json:"language,omitempty"` // only meaningful for code
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Message is a single turn in a conversation.
type Message struct {
	ID        uuid.UUID      `json:"id"`
	Role      Role           `json:"role"`
	Timestamp time.Time      `json:"timestamp"`
	Blocks    []ContentBlock `json:"blocks"`
}

// Conversation is the canonical record of one chat session.
// (Source, SourceID) is unique; re-ingesting the same pair is a no-op.
type Conversation struct {
	ID          uuid.UUID         `json:"id"`
	Source      Source            `json:"source"`
	SourceID    string            `json:"source_id"`
	Title       string            `json:"title"`
	StartTime   time.Time         `json:"start_time"`
	EndTime     time.Time         `json:"end_time,omitzero"`
	Messages    []Message         `json:"messages"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Processed   bool              `json:"processed"`
	ProcessedAt time.Time         `json:"processed_at,omitzero"`
}

// InsightType is the kind of extraction an insight came from.
type InsightType string

const (
	InsightProblemSolution  InsightType = "problem_solution"
	InsightLearning         InsightType = "learning"
	InsightCodeReference    InsightType = "code_reference"
	InsightProjectReference InsightType = "project_reference"
)

// Category is the taxonomy bucket assigned by the classifier.
type Category string

const (
	CategoryProgramming  Category = "programming"
	CategoryDevOps       Category = "devops"
	CategoryDesign       Category = "design"
	CategoryArchitecture Category = "architecture"
	CategoryDatabase     Category = "database"
	CategoryTesting      Category = "testing"
	CategoryOther        Category = "other"
)

// CodeBlock is a code snippet embedded in an insight.
type CodeBlock struct {
	Language string `json:"language,omitempty"`
	Content  string `json:"content"`
}

// Insight is a classified, confidence-scored artifact derived from a
// conversation. Uniqueness is (ConversationID, Type, Title).
type Insight struct {
	ID             uuid.UUID   `json:"id"`
	ConversationID uuid.UUID   `json:"conversation_id"`
	Type           InsightType `json:"type"`
	Category       Category    `json:"category"`
	Title          string      `json:"title"`
	Content        string      `json:"content"`
	CodeBlocks     []CodeBlock `json:"code_blocks,omitempty"`
	Confidence     float64     `json:"confidence"`
	ExtractedAt    time.Time   `json:"extracted_at"`
}

// conversationNamespace seeds deterministic conversation IDs so the same
// (source, sourceID) always maps to the same UUID across runs.
var conversationNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// ConversationID derives the stable conversation UUID from source + sourceID.
func ConversationID(source Source, sourceID string) uuid.UUID {
	return uuid.NewSHA1(conversationNamespace, []byte(string(source)+":"+sourceID))
}

// ContentHash returns a short hex digest used to derive a source ID for raw
// records that carry no ID of their own.
func ContentHash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Text concatenates the message's text blocks.
func (m Message) Text() string {
	var out string
	for _, b := range m.Blocks {
		if b.Type != ContentText || b.Content == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += b.Content
	}
	return out
}

// CodeBlocks returns the message's non-empty code blocks.
func (m Message) CodeBlocks() []CodeBlock {
	var out []CodeBlock
	for _, b := range m.Blocks {
		if b.Type == ContentCode {
			out = append(out, CodeBlock{Language: b.Language, Content: b.Content})
		}
	}
	return out
}

// ParseRole maps a raw role string onto the canonical enum. The mapping is
// case-insensitive and many-to-one; unrecognized roles become SYSTEM.
func ParseRole(raw string) Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "user", "human":
		return RoleUser
	case "assistant", "ai", "bot":
		return RoleAssistant
	default:
		return RoleSystem
	}
}
