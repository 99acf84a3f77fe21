package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/anderson/internal/model"
)

// UpsertConversation writes a conversation and its messages in one
// transaction. The (source, source_id) pair is the identity: if it already
// exists the stored record wins and nothing is written. Returns the stored
// conversation ID and whether this call inserted it.
func (s *Store) UpsertConversation(ctx context.Context, conv model.Conversation) (uuid.UUID, bool, error) {
	var existing uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM conversations WHERE source = $1 AND source_id = $2`,
		conv.Source, conv.SourceID,
	).Scan(&existing)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, fmt.Errorf("lookup conversation: %w", err)
	}

	metadata, err := json.Marshal(conv.Metadata)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("marshal metadata: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO conversations (id, source, source_id, title, start_time, end_time, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source, source_id) DO NOTHING`,
		conv.ID, conv.Source, conv.SourceID, conv.Title, conv.StartTime, conv.EndTime, metadata,
	)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("insert conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// A concurrent writer won the race between our lookup and this
		// insert. Their row stands; writing our messages on top of it would
		// duplicate the whole message set.
		_ = tx.Rollback(ctx)
		err := s.pool.QueryRow(ctx, `
			SELECT id FROM conversations WHERE source = $1 AND source_id = $2`,
			conv.Source, conv.SourceID,
		).Scan(&existing)
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("lookup conversation after conflict: %w", err)
		}
		return existing, false, nil
	}

	for i, msg := range conv.Messages {
		blocks, err := json.Marshal(msg.Blocks)
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("marshal blocks: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO messages (id, conversation_id, position, role, ts, blocks)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			msg.ID, conv.ID, i, msg.Role, msg.Timestamp, blocks,
		)
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("insert message: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, false, fmt.Errorf("commit: %w", err)
	}
	return conv.ID, true, nil
}

// GetConversation loads one conversation with its messages in stored order.
func (s *Store) GetConversation(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, source, source_id, title, start_time, end_time, metadata, processed, processed_at
		FROM conversations WHERE id = $1`, id,
	)
	conv, err := scanConversation(row)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, role, ts, blocks FROM messages
		WHERE conversation_id = $1 ORDER BY position`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg model.Message
		var blocks []byte
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Timestamp, &blocks); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := json.Unmarshal(blocks, &msg.Blocks); err != nil {
			return nil, fmt.Errorf("unmarshal blocks: %w", err)
		}
		conv.Messages = append(conv.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return conv, nil
}

// UnprocessedConversations returns conversations awaiting analysis, oldest
// first, without their messages.
func (s *Store) UnprocessedConversations(ctx context.Context, limit int) ([]model.Conversation, error) {
	return s.queryConversations(ctx, `
		SELECT id, source, source_id, title, start_time, end_time, metadata, processed, processed_at
		FROM conversations
		WHERE processed = FALSE
		ORDER BY start_time
		LIMIT $1`, limit)
}

// StaleProcessedConversations returns conversations processed before cutoff,
// for reprocessing with updated heuristics.
func (s *Store) StaleProcessedConversations(ctx context.Context, cutoff time.Time, limit int) ([]model.Conversation, error) {
	return s.queryConversations(ctx, `
		SELECT id, source, source_id, title, start_time, end_time, metadata, processed, processed_at
		FROM conversations
		WHERE processed = TRUE AND processed_at < $1
		ORDER BY processed_at
		LIMIT $2`, cutoff, limit)
}

// ClaimConversation flips processed FALSE -> TRUE atomically. Returns false
// when another worker already holds the claim.
func (s *Store) ClaimConversation(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations SET processed = TRUE, processed_at = now()
		WHERE id = $1 AND processed = FALSE`, id,
	)
	if err != nil {
		return false, fmt.Errorf("claim conversation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseConversation undoes a claim after a failed analysis so the
// conversation is retried later.
func (s *Store) ReleaseConversation(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE conversations SET processed = FALSE, processed_at = NULL
		WHERE id = $1`, id,
	)
	return err
}

// TouchProcessed refreshes processed_at after a reprocessing run.
func (s *Store) TouchProcessed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE conversations SET processed = TRUE, processed_at = now()
		WHERE id = $1`, id,
	)
	return err
}

// ConversationCounts returns total and processed counts.
func (s *Store) ConversationCounts(ctx context.Context) (total, processed int, err error) {
	err = s.pool.QueryRow(ctx, `
		SELECT count(*), count(*) FILTER (WHERE processed)
		FROM conversations`,
	).Scan(&total, &processed)
	if err != nil {
		return 0, 0, fmt.Errorf("count conversations: %w", err)
	}
	return total, processed, nil
}

func (s *Store) queryConversations(ctx context.Context, query string, args ...any) ([]model.Conversation, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var out []model.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *conv)
	}
	return out, rows.Err()
}

func scanConversation(row pgx.Row) (*model.Conversation, error) {
	var conv model.Conversation
	var metadata []byte
	var processedAt *time.Time
	err := row.Scan(&conv.ID, &conv.Source, &conv.SourceID, &conv.Title,
		&conv.StartTime, &conv.EndTime, &metadata, &conv.Processed, &processedAt)
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &conv.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if processedAt != nil {
		conv.ProcessedAt = *processedAt
	}
	return &conv, nil
}
