// Package pipeline drives conversation analysis: claim, extract, classify,
// filter, persist, announce.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/anderson/internal/classify"
	"github.com/MikeSquared-Agency/anderson/internal/events"
	"github.com/MikeSquared-Agency/anderson/internal/extract"
	"github.com/MikeSquared-Agency/anderson/internal/model"
)

// Store is the persistence surface the analyzer drives.
type Store interface {
	UnprocessedConversations(ctx context.Context, limit int) ([]model.Conversation, error)
	StaleProcessedConversations(ctx context.Context, cutoff time.Time, limit int) ([]model.Conversation, error)
	ClaimConversation(ctx context.Context, id uuid.UUID) (bool, error)
	ReleaseConversation(ctx context.Context, id uuid.UUID) error
	TouchProcessed(ctx context.Context, id uuid.UUID) error
	GetConversation(ctx context.Context, id uuid.UUID) (*model.Conversation, error)
	InsertInsight(ctx context.Context, in model.Insight) (bool, error)
	DeleteInsightsForConversation(ctx context.Context, id uuid.UUID) (int, error)
	UpsertTechnologyTag(ctx context.Context, name string) (uuid.UUID, error)
	LinkInsightTechnology(ctx context.Context, insightID, tagID uuid.UUID) error
}

// Analyzer runs extraction passes over stored conversations.
type Analyzer struct {
	store         Store
	runner        *extract.Runner
	events        *events.Client
	logger        *slog.Logger
	minConfidence float64
}

// Result summarizes one analysis batch.
type Result struct {
	Conversations int
	Insights      int
	Failed        int
}

func (r Result) String() string {
	return fmt.Sprintf("conversations=%d insights=%d failed=%d", r.Conversations, r.Insights, r.Failed)
}

// New builds an analyzer. The events client may be nil; insights are then
// stored without being announced.
func New(s Store, runner *extract.Runner, ev *events.Client, minConfidence float64, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		store:         s,
		runner:        runner,
		events:        ev,
		logger:        logger,
		minConfidence: minConfidence,
	}
}

// AnalyzeBatch processes up to limit unprocessed conversations. A failing
// conversation is released for retry and does not abort the batch.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, limit int) (Result, error) {
	var res Result

	convs, err := a.store.UnprocessedConversations(ctx, limit)
	if err != nil {
		return res, fmt.Errorf("list unprocessed: %w", err)
	}

	for _, conv := range convs {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		claimed, err := a.store.ClaimConversation(ctx, conv.ID)
		if err != nil {
			a.logger.Error("claim failed", "conversation_id", conv.ID, "error", err)
			res.Failed++
			continue
		}
		if !claimed {
			continue // another worker got there first
		}

		n, err := a.processConversation(ctx, conv.ID)
		if err != nil {
			a.logger.Error("analysis failed", "conversation_id", conv.ID, "error", err)
			if relErr := a.store.ReleaseConversation(ctx, conv.ID); relErr != nil {
				a.logger.Error("release failed", "conversation_id", conv.ID, "error", relErr)
			}
			res.Failed++
			continue
		}
		res.Conversations++
		res.Insights += n
	}

	a.logger.Info("analysis batch done",
		"conversations", res.Conversations, "insights", res.Insights, "failed", res.Failed)
	return res, nil
}

// ReprocessStale re-runs extraction over conversations last processed
// before cutoff. Existing insights for each conversation are purged first
// so retuned heuristics fully replace the old output.
func (a *Analyzer) ReprocessStale(ctx context.Context, cutoff time.Time, limit int) (Result, error) {
	var res Result

	convs, err := a.store.StaleProcessedConversations(ctx, cutoff, limit)
	if err != nil {
		return res, fmt.Errorf("list stale: %w", err)
	}

	for _, conv := range convs {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		purged, err := a.store.DeleteInsightsForConversation(ctx, conv.ID)
		if err != nil {
			a.logger.Error("purge failed", "conversation_id", conv.ID, "error", err)
			res.Failed++
			continue
		}
		n, err := a.processConversation(ctx, conv.ID)
		if err != nil {
			a.logger.Error("reprocess failed", "conversation_id", conv.ID, "error", err)
			res.Failed++
			continue
		}
		if err := a.store.TouchProcessed(ctx, conv.ID); err != nil {
			a.logger.Error("touch failed", "conversation_id", conv.ID, "error", err)
		}
		a.logger.Debug("reprocessed conversation",
			"conversation_id", conv.ID, "purged", purged, "insights", n)
		res.Conversations++
		res.Insights += n
	}

	a.logger.Info("reprocess batch done",
		"conversations", res.Conversations, "insights", res.Insights, "failed", res.Failed)
	return res, nil
}

// processConversation loads the full conversation, runs every pass, and
// persists the insights that clear the confidence floor. Returns the number
// of newly stored insights.
func (a *Analyzer) processConversation(ctx context.Context, id uuid.UUID) (int, error) {
	conv, err := a.store.GetConversation(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("load conversation: %w", err)
	}

	insights := a.runner.Run(*conv)
	insights = extract.FilterConfidence(insights, a.minConfidence)

	stored := 0
	for _, in := range insights {
		written, err := a.store.InsertInsight(ctx, in)
		if err != nil {
			return stored, fmt.Errorf("insert insight: %w", err)
		}
		if !written {
			continue // natural-key duplicate from an earlier run
		}
		stored++

		if err := a.tagInsight(ctx, in); err != nil {
			a.logger.Warn("tagging failed", "insight_id", in.ID, "error", err)
		}
		a.announce(in)
	}
	return stored, nil
}

// tagInsight links the insight to its technology tags: code block languages
// plus vocabulary mentions in the content.
func (a *Analyzer) tagInsight(ctx context.Context, in model.Insight) error {
	seen := map[string]bool{}
	var names []string
	for _, block := range in.CodeBlocks {
		if block.Language != "" && !seen[block.Language] {
			seen[block.Language] = true
			names = append(names, block.Language)
		}
	}
	for _, tech := range classify.Technologies(in.Content) {
		if !seen[tech] {
			seen[tech] = true
			names = append(names, tech)
		}
	}

	for _, name := range names {
		tagID, err := a.store.UpsertTechnologyTag(ctx, name)
		if err != nil {
			return err
		}
		if err := a.store.LinkInsightTechnology(ctx, in.ID, tagID); err != nil {
			return err
		}
	}
	return nil
}

func (a *Analyzer) announce(in model.Insight) {
	if a.events == nil {
		return
	}
	err := a.events.Publish(events.SubjectInsightStored, events.InsightStored{
		InsightID:      in.ID.String(),
		ConversationID: in.ConversationID.String(),
		Type:           string(in.Type),
		Category:       string(in.Category),
		Title:          in.Title,
		Confidence:     in.Confidence,
	})
	if err != nil {
		a.logger.Warn("publish failed", "subject", events.SubjectInsightStored, "error", err)
	}
}
