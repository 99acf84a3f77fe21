package adapter

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func seedStateDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.vscdb")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	schema := `
	CREATE TABLE chat_conversations (
		id         TEXT PRIMARY KEY,
		title      TEXT,
		created_at INTEGER,
		updated_at INTEGER
	);
	CREATE TABLE chat_messages (
		id              INTEGER PRIMARY KEY,
		conversation_id TEXT,
		role            TEXT,
		content         TEXT,
		timestamp       INTEGER
	);`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	if _, err := db.Exec(
		`INSERT INTO chat_conversations (id, title, created_at, updated_at) VALUES ('conv-1', 'Fix the build', 1770000000, 1770000120)`,
	); err != nil {
		t.Fatalf("insert conversation: %v", err)
	}
	msgs := []struct {
		role, content string
		ts            int64
	}{
		{"user", "the build is broken", 1770000000},
		{"assistant", "add the missing dep", 1770000060},
	}
	for _, m := range msgs {
		if _, err := db.Exec(
			`INSERT INTO chat_messages (conversation_id, role, content, timestamp) VALUES ('conv-1', ?, ?, ?)`,
			m.role, m.content, m.ts,
		); err != nil {
			t.Fatalf("insert message: %v", err)
		}
	}
	return path
}

func TestParseSQLite(t *testing.T) {
	path := seedStateDB(t)

	got := ParseSQLite(context.Background(), path, discard())
	if len(got) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(got))
	}

	rc := got[0]
	if rc.SourceID != "conv-1" {
		t.Errorf("source id = %q", rc.SourceID)
	}
	if rc.Title != "Fix the build" {
		t.Errorf("title = %q", rc.Title)
	}
	if len(rc.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(rc.Messages))
	}
	if rc.Messages[0].Role != "user" || rc.Messages[1].Role != "assistant" {
		t.Errorf("roles = %q, %q", rc.Messages[0].Role, rc.Messages[1].Role)
	}
	if rc.Messages[0].Timestamp.Unix() != 1770000000 {
		t.Errorf("message timestamp = %v", rc.Messages[0].Timestamp)
	}
}

func TestParseSQLite_MissingFile(t *testing.T) {
	got := ParseSQLite(context.Background(), filepath.Join(t.TempDir(), "nope.db"), discard())
	if len(got) != 0 {
		t.Errorf("expected no conversations for missing file, got %d", len(got))
	}
}

func TestParseSQLite_UnrelatedSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE settings (key TEXT, value TEXT)`); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	db.Close()

	got := ParseSQLite(context.Background(), path, discard())
	if len(got) != 0 {
		t.Errorf("expected no conversations, got %d", len(got))
	}
}
