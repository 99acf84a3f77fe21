//go:build integration

package pipeline

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/anderson/internal/extract"
	"github.com/MikeSquared-Agency/anderson/internal/model"
	"github.com/MikeSquared-Agency/anderson/internal/store"
)

func setupAnalyzer(t *testing.T) (*Analyzer, *store.Store) {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := store.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	t.Cleanup(s.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(s, extract.NewRunner(logger), nil, 0.7, logger), s
}

func seedConversation(t *testing.T, s *store.Store) model.Conversation {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	sourceID := "pipe-" + uuid.New().String()[:8]
	conv := model.Conversation{
		ID:        model.ConversationID(model.SourceCursor, sourceID),
		Source:    model.SourceCursor,
		SourceID:  sourceID,
		Title:     "pipeline test",
		StartTime: now,
		EndTime:   now.Add(time.Minute),
		Messages: []model.Message{
			{
				ID:        uuid.New(),
				Role:      model.RoleUser,
				Timestamp: now,
				Blocks:    []model.ContentBlock{{Type: model.ContentText, Content: "how do I fix this nil pointer bug?"}},
			},
			{
				ID:        uuid.New(),
				Role:      model.RoleAssistant,
				Timestamp: now.Add(time.Minute),
				Blocks: []model.ContentBlock{
					{Type: model.ContentText, Content: "guard the dereference"},
					{Type: model.ContentCode, Language: "go", Content: "if p != nil { p.Do() }"},
				},
			},
		},
	}
	if _, _, err := s.UpsertConversation(context.Background(), conv); err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	return conv
}

func TestIntegration_AnalyzeBatch(t *testing.T) {
	a, s := setupAnalyzer(t)
	ctx := context.Background()

	conv := seedConversation(t, s)

	res, err := a.AnalyzeBatch(ctx, 1000)
	if err != nil {
		t.Fatalf("AnalyzeBatch failed: %v", err)
	}
	if res.Conversations < 1 {
		t.Fatalf("expected at least 1 conversation processed, got %d", res.Conversations)
	}

	got, err := s.GetInsights(ctx, store.InsightFilter{Limit: 1000})
	if err != nil {
		t.Fatalf("GetInsights failed: %v", err)
	}
	var mine int
	for _, in := range got {
		if in.ConversationID == conv.ID {
			mine++
		}
	}
	// Problem/solution pair with code plus a code reference.
	if mine < 2 {
		t.Errorf("expected at least 2 insights for seeded conversation, got %d", mine)
	}

	stored, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if !stored.Processed {
		t.Error("conversation not marked processed")
	}
}

func TestIntegration_ReprocessStale(t *testing.T) {
	a, s := setupAnalyzer(t)
	ctx := context.Background()

	conv := seedConversation(t, s)
	if _, err := a.AnalyzeBatch(ctx, 1000); err != nil {
		t.Fatalf("AnalyzeBatch failed: %v", err)
	}

	res, err := a.ReprocessStale(ctx, time.Now().Add(time.Hour), 1000)
	if err != nil {
		t.Fatalf("ReprocessStale failed: %v", err)
	}
	if res.Conversations < 1 {
		t.Fatalf("expected stale conversation reprocessed, got %d", res.Conversations)
	}

	got, err := s.GetInsights(ctx, store.InsightFilter{Limit: 1000})
	if err != nil {
		t.Fatalf("GetInsights failed: %v", err)
	}
	var mine int
	for _, in := range got {
		if in.ConversationID == conv.ID {
			mine++
		}
	}
	if mine < 2 {
		t.Errorf("expected insights rebuilt after purge, got %d", mine)
	}
}
