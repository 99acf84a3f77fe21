package notion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/anderson/internal/model"
	"github.com/MikeSquared-Agency/anderson/internal/store"
)

// Syncer pushes unsynced insights to Notion in batches and posts one
// summary page per day of activity.
type Syncer struct {
	store    *store.Store
	client   *Client
	syncDays int
	batch    int
	logger   *slog.Logger

	lastSummaryDay string
}

func NewSyncer(s *store.Store, c *Client, syncDays, batch int, logger *slog.Logger) *Syncer {
	return &Syncer{
		store:    s,
		client:   c,
		syncDays: syncDays,
		batch:    batch,
		logger:   logger,
	}
}

// Run syncs one batch of unsynced insights extracted within the sync
// window. A failed page creation leaves the insight unsynced for the next
// run.
func (sy *Syncer) Run(ctx context.Context) (string, error) {
	if !sy.client.Enabled() {
		return "notion not configured", nil
	}

	cutoff := time.Now().AddDate(0, 0, -sy.syncDays)
	insights, err := sy.store.UnsyncedInsights(ctx, cutoff, sy.batch)
	if err != nil {
		return "", fmt.Errorf("list unsynced: %w", err)
	}

	synced, failed := 0, 0
	for _, in := range insights {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		pageID, err := sy.client.CreatePage(ctx, pageTitle(in), pageBlocks(in))
		if err != nil {
			sy.logger.Warn("notion sync failed", "insight_id", in.ID, "error", err)
			failed++
			continue
		}
		if err := sy.store.MarkInsightSynced(ctx, in.ID, pageID); err != nil {
			sy.logger.Error("cannot mark insight synced", "insight_id", in.ID, "error", err)
			failed++
			continue
		}
		synced++
	}

	if err := sy.postDailySummary(ctx); err != nil {
		sy.logger.Warn("daily summary sync failed", "error", err)
	}

	detail := fmt.Sprintf("synced=%d failed=%d", synced, failed)
	sy.logger.Info("notion sync done", "synced", synced, "failed", failed)
	return detail, nil
}

// postDailySummary creates one rollup page for the current UTC day. At most
// one page is posted per day per process; days without activity are skipped.
func (sy *Syncer) postDailySummary(ctx context.Context) error {
	now := time.Now().UTC()
	day := now.Format("2006-01-02")
	if sy.lastSummaryDay == day {
		return nil
	}

	summary, err := sy.store.GetDailySummary(ctx, now)
	if err != nil {
		return fmt.Errorf("load daily summary: %w", err)
	}
	if summary.Conversations == 0 && summary.Insights == 0 {
		return nil
	}

	if _, err := sy.client.CreatePage(ctx, summaryTitle(summary), summaryBlocks(summary)); err != nil {
		return fmt.Errorf("create summary page: %w", err)
	}
	sy.lastSummaryDay = day
	sy.logger.Info("daily summary posted", "date", day,
		"conversations", summary.Conversations, "insights", summary.Insights)
	return nil
}

func summaryTitle(s *store.DailySummary) string {
	return "Daily Summary " + s.Date
}

func summaryBlocks(s *store.DailySummary) []Block {
	blocks := []Block{
		Heading(fmt.Sprintf("Activity for %s", s.Date)),
	}
	blocks = append(blocks, Paragraph(fmt.Sprintf(
		"%d conversations, %d insights extracted.", s.Conversations, s.Insights))...)
	for _, typ := range []model.InsightType{
		model.InsightProblemSolution,
		model.InsightLearning,
		model.InsightCodeReference,
		model.InsightProjectReference,
	} {
		if n := s.ByType[typ]; n > 0 {
			blocks = append(blocks, Paragraph(fmt.Sprintf("%s: %d", typeLabel(typ), n))...)
		}
	}
	return blocks
}

func pageTitle(in model.Insight) string {
	return fmt.Sprintf("[%s] %s", typeLabel(in.Type), in.Title)
}

func typeLabel(t model.InsightType) string {
	switch t {
	case model.InsightProblemSolution:
		return "Problem/Solution"
	case model.InsightLearning:
		return "Learning"
	case model.InsightCodeReference:
		return "Code Reference"
	case model.InsightProjectReference:
		return "Project Reference"
	default:
		return string(t)
	}
}

func pageBlocks(in model.Insight) []Block {
	blocks := []Block{
		Heading(fmt.Sprintf("%s | %s | confidence %.2f",
			typeLabel(in.Type), capitalize(string(in.Category)), in.Confidence)),
	}
	blocks = append(blocks, Paragraph(in.Content)...)
	for _, cb := range in.CodeBlocks {
		blocks = append(blocks, Code(cb.Language, cb.Content))
	}
	return blocks
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
