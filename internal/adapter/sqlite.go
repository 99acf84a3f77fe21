package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"
)

// ParseSQLite reads conversations out of an embedded sqlite store: one
// conversation table joined to one message table on a conversation_id
// foreign key. Table names are discovered, not assumed, because the IDE
// renames them between releases. Any error skips the file, never the batch.
func ParseSQLite(ctx context.Context, path string, logger *slog.Logger) []RawConversation {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		logger.Warn("cannot open sqlite store", "path", path, "error", err)
		return nil
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	tables, err := listTables(ctx, db)
	if err != nil {
		logger.Warn("cannot list sqlite tables", "path", path, "error", err)
		return nil
	}

	// "message" wins before "chat": a message table may be named
	// chat_messages, but a conversation table never contains "message".
	var convTables, msgTables []string
	for _, t := range tables {
		lower := strings.ToLower(t)
		switch {
		case strings.Contains(lower, "message"):
			msgTables = append(msgTables, t)
		case strings.Contains(lower, "conversation") || strings.Contains(lower, "chat"):
			convTables = append(convTables, t)
		}
	}
	if len(convTables) == 0 || len(msgTables) == 0 {
		logger.Debug("sqlite store has no conversation/message tables", "path", path)
		return nil
	}

	var out []RawConversation
	for _, convTable := range convTables {
		rows, err := queryRowMaps(ctx, db, "SELECT * FROM "+quoteIdent(convTable))
		if err != nil {
			logger.Warn("cannot query conversation table", "table", convTable, "error", err)
			continue
		}
		for _, convRow := range rows {
			convID := stringField(convRow, "id", "conversation_id")
			if convID == "" {
				continue
			}
			msgs := loadMessages(ctx, db, msgTables, convID)
			if len(msgs) == 0 {
				continue
			}
			rc := RawConversation{
				SourceID:  convID,
				Title:     stringField(convRow, "title", "name"),
				StartTime: ParseTimestamp(firstOf(convRow, "created_at", "timestamp", "start_time")),
				EndTime:   ParseTimestamp(firstOf(convRow, "updated_at", "last_message_timestamp", "end_time")),
				Messages:  msgs,
				Origin:    path,
			}
			if !rc.Empty() {
				out = append(out, rc)
			}
		}
	}
	return out
}

// loadMessages tries each candidate message table until one yields rows for
// the conversation. Tables without a conversation_id column error and are
// simply passed over.
func loadMessages(ctx context.Context, db *sql.DB, msgTables []string, convID string) []RawMessage {
	for _, table := range msgTables {
		rows, err := queryRowMaps(ctx, db,
			"SELECT * FROM "+quoteIdent(table)+" WHERE conversation_id = ? ORDER BY timestamp", convID)
		if err != nil || len(rows) == 0 {
			continue
		}
		msgs := make([]RawMessage, 0, len(rows))
		for _, r := range rows {
			content := stringField(r, "content", "text", "body")
			if content == "" {
				continue
			}
			msgs = append(msgs, RawMessage{
				ID:        stringField(r, "id", "message_id"),
				Role:      stringField(r, "role", "sender", "author"),
				Content:   content,
				Timestamp: ParseTimestamp(firstOf(r, "timestamp", "created_at")),
			})
		}
		if len(msgs) > 0 {
			return msgs
		}
	}
	return nil
}

func listTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// queryRowMaps runs a query against tables whose schema is unknown and
// returns each row as a column-name map.
func queryRowMaps(ctx context.Context, db *sql.DB, query string, args ...any) ([]map[string]any, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				m[strings.ToLower(c)] = string(b)
			} else {
				m[strings.ToLower(c)] = vals[i]
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			if s := stringID(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
