package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/anderson/internal/model"
)

// InsightExists reports whether an insight with the same natural key
// (conversation, type, title) is already stored.
func (s *Store) InsightExists(ctx context.Context, conversationID uuid.UUID, typ model.InsightType, title string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM insights
			WHERE conversation_id = $1 AND type = $2 AND title = $3
		)`,
		conversationID, typ, title,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check insight: %w", err)
	}
	return exists, nil
}

// InsertInsight stores one insight. Conflicts on the natural key are
// dropped silently; the first stored version wins. Returns whether a row
// was written.
func (s *Store) InsertInsight(ctx context.Context, in model.Insight) (bool, error) {
	blocks, err := json.Marshal(in.CodeBlocks)
	if err != nil {
		return false, fmt.Errorf("marshal code blocks: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO insights (id, conversation_id, type, category, title, content, code_blocks, confidence, extracted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (conversation_id, type, title) DO NOTHING`,
		in.ID, in.ConversationID, in.Type, in.Category, in.Title, in.Content, blocks, in.Confidence, in.ExtractedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert insight: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteInsightsForConversation purges a conversation's insights before a
// reprocessing run. Tag links go with them via cascade.
func (s *Store) DeleteInsightsForConversation(ctx context.Context, conversationID uuid.UUID) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM insights WHERE conversation_id = $1`, conversationID,
	)
	if err != nil {
		return 0, fmt.Errorf("delete insights: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// UpsertTechnologyTag returns the tag ID for name, creating it on first use.
func (s *Store) UpsertTechnologyTag(ctx context.Context, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO technology_tags (id, name)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`,
		uuid.New(), name,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert technology tag: %w", err)
	}
	return id, nil
}

// LinkInsightTechnology attaches a tag to an insight. Duplicate links are
// no-ops.
func (s *Store) LinkInsightTechnology(ctx context.Context, insightID, tagID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO insight_technologies (insight_id, tag_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		insightID, tagID,
	)
	if err != nil {
		return fmt.Errorf("link technology: %w", err)
	}
	return nil
}

// InsightFilter narrows GetInsights. Zero values mean no constraint.
type InsightFilter struct {
	Type           model.InsightType
	Category       model.Category
	ConversationID uuid.UUID
	MinConfidence  float64
	SearchTerm     string
	Since          time.Time
	Until          time.Time
	Limit          int
	Offset         int
}

// GetInsights returns insights matching the filter, newest first.
func (s *Store) GetInsights(ctx context.Context, f InsightFilter) ([]model.Insight, error) {
	query := `
		SELECT id, conversation_id, type, category, title, content, code_blocks, confidence, extracted_at
		FROM insights WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Type != "" {
		query += " AND type = " + arg(f.Type)
	}
	if f.Category != "" {
		query += " AND category = " + arg(f.Category)
	}
	if f.ConversationID != uuid.Nil {
		query += " AND conversation_id = " + arg(f.ConversationID)
	}
	if f.MinConfidence > 0 {
		query += " AND confidence >= " + arg(f.MinConfidence)
	}
	if f.SearchTerm != "" {
		p := arg("%" + f.SearchTerm + "%")
		query += " AND (title ILIKE " + p + " OR content ILIKE " + p + ")"
	}
	if !f.Since.IsZero() {
		query += " AND extracted_at >= " + arg(f.Since)
	}
	if !f.Until.IsZero() {
		query += " AND extracted_at < " + arg(f.Until)
	}
	query += " ORDER BY extracted_at DESC"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		query += " OFFSET " + arg(f.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query insights: %w", err)
	}
	defer rows.Close()

	var out []model.Insight
	for rows.Next() {
		var in model.Insight
		var blocks []byte
		err := rows.Scan(&in.ID, &in.ConversationID, &in.Type, &in.Category,
			&in.Title, &in.Content, &blocks, &in.Confidence, &in.ExtractedAt)
		if err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		if err := json.Unmarshal(blocks, &in.CodeBlocks); err != nil {
			return nil, fmt.Errorf("unmarshal code blocks: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// InsightStats is the aggregate view served by the stats endpoint.
type InsightStats struct {
	Total         int                       `json:"total"`
	ByType        map[model.InsightType]int `json:"by_type"`
	ByCategory    map[model.Category]int    `json:"by_category"`
	ByDay         map[string]int            `json:"by_day"`
	AvgConfidence float64                   `json:"avg_confidence"`
	TopTags       map[string]int            `json:"top_tags"`
}

// GetInsightStats aggregates counts by type, category, day, and tag over the
// last sinceDays days. sinceDays <= 0 means all time.
func (s *Store) GetInsightStats(ctx context.Context, sinceDays int) (*InsightStats, error) {
	stats := &InsightStats{
		ByType:     map[model.InsightType]int{},
		ByCategory: map[model.Category]int{},
		ByDay:      map[string]int{},
		TopTags:    map[string]int{},
	}

	window := ""
	var args []any
	if sinceDays > 0 {
		window = " WHERE extracted_at >= $1"
		args = append(args, time.Now().UTC().AddDate(0, 0, -sinceDays))
	}

	rows, err := s.pool.Query(ctx, `
		SELECT type, category, count(*) FROM insights`+window+` GROUP BY type, category`, args...)
	if err != nil {
		return nil, fmt.Errorf("query insight stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var typ model.InsightType
		var cat model.Category
		var n int
		if err := rows.Scan(&typ, &cat, &n); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats.Total += n
		stats.ByType[typ] += n
		stats.ByCategory[cat] += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COALESCE(AVG(confidence), 0) FROM insights`+window, args...,
	).Scan(&stats.AvgConfidence)
	if err != nil {
		return nil, fmt.Errorf("query avg confidence: %w", err)
	}

	dayRows, err := s.pool.Query(ctx, `
		SELECT to_char(extracted_at, 'YYYY-MM-DD'), count(*)
		FROM insights`+window+`
		GROUP BY 1`, args...)
	if err != nil {
		return nil, fmt.Errorf("query daily stats: %w", err)
	}
	defer dayRows.Close()
	for dayRows.Next() {
		var day string
		var n int
		if err := dayRows.Scan(&day, &n); err != nil {
			return nil, fmt.Errorf("scan daily stats: %w", err)
		}
		stats.ByDay[day] = n
	}
	if err := dayRows.Err(); err != nil {
		return nil, err
	}

	tagQuery := `
		SELECT t.name, count(*)
		FROM insight_technologies it
		JOIN technology_tags t ON t.id = it.tag_id
		JOIN insights i ON i.id = it.insight_id`
	if sinceDays > 0 {
		tagQuery += ` WHERE i.extracted_at >= $1`
	}
	tagQuery += `
		GROUP BY t.name
		ORDER BY count(*) DESC
		LIMIT 20`
	tagRows, err := s.pool.Query(ctx, tagQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("query tag stats: %w", err)
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var name string
		var n int
		if err := tagRows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scan tag stats: %w", err)
		}
		stats.TopTags[name] = n
	}
	return stats, tagRows.Err()
}

// DailySummary is one day's activity rollup.
type DailySummary struct {
	Date          string                    `json:"date"`
	Conversations int                       `json:"conversations"`
	Insights      int                       `json:"insights"`
	ByType        map[model.InsightType]int `json:"by_type"`
}

// GetDailySummary rolls up activity for the UTC day containing date.
func (s *Store) GetDailySummary(ctx context.Context, date time.Time) (*DailySummary, error) {
	day := date.UTC().Truncate(24 * time.Hour)
	next := day.Add(24 * time.Hour)

	summary := &DailySummary{
		Date:   day.Format("2006-01-02"),
		ByType: map[model.InsightType]int{},
	}
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM conversations
		WHERE start_time >= $1 AND start_time < $2`, day, next,
	).Scan(&summary.Conversations)
	if err != nil {
		return nil, fmt.Errorf("count conversations: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT type, count(*) FROM insights
		WHERE extracted_at >= $1 AND extracted_at < $2
		GROUP BY type`, day, next,
	)
	if err != nil {
		return nil, fmt.Errorf("query daily insights: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var typ model.InsightType
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("scan daily insights: %w", err)
		}
		summary.Insights += n
		summary.ByType[typ] = n
	}
	return summary, rows.Err()
}

// UnsyncedInsights returns insights extracted since cutoff that have not
// been pushed to Notion yet.
func (s *Store) UnsyncedInsights(ctx context.Context, cutoff time.Time, limit int) ([]model.Insight, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, type, category, title, content, code_blocks, confidence, extracted_at
		FROM insights
		WHERE synced_to_notion = FALSE AND extracted_at >= $1
		ORDER BY extracted_at
		LIMIT $2`, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query unsynced insights: %w", err)
	}
	defer rows.Close()

	var out []model.Insight
	for rows.Next() {
		var in model.Insight
		var blocks []byte
		err := rows.Scan(&in.ID, &in.ConversationID, &in.Type, &in.Category,
			&in.Title, &in.Content, &blocks, &in.Confidence, &in.ExtractedAt)
		if err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		if err := json.Unmarshal(blocks, &in.CodeBlocks); err != nil {
			return nil, fmt.Errorf("unmarshal code blocks: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// MarkInsightSynced records the Notion page created for an insight.
func (s *Store) MarkInsightSynced(ctx context.Context, insightID uuid.UUID, pageID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE insights SET synced_to_notion = TRUE, notion_page_id = $1
		WHERE id = $2`, pageID, insightID,
	)
	if err != nil {
		return fmt.Errorf("mark insight synced: %w", err)
	}
	return nil
}
