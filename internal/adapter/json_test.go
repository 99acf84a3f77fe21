package adapter

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseJSON_ConversationList(t *testing.T) {
	blob := `[
		{"id": "c1", "title": "First", "messages": [
			{"role": "user", "content": "hello", "timestamp": "2026-03-01T10:00:00Z"},
			{"role": "assistant", "content": "hi", "timestamp": "2026-03-01T10:00:05Z"}
		]},
		{"id": "c2", "messages": [
			{"role": "user", "content": "another", "timestamp": 1770000000}
		]}
	]`

	got := ParseJSON([]byte(blob), "chat.json", discard())
	if len(got) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(got))
	}
	if got[0].SourceID != "c1" || got[0].Title != "First" {
		t.Errorf("conversation 0 = %q/%q", got[0].SourceID, got[0].Title)
	}
	if len(got[0].Messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(got[0].Messages))
	}
	if got[0].Messages[0].Role != "user" || got[0].Messages[0].Content != "hello" {
		t.Errorf("message 0 = %+v", got[0].Messages[0])
	}
}

func TestParseJSON_SingleDictWithMessages(t *testing.T) {
	blob := `{"id": "solo", "messages": [
		{"role": "user", "content": "question"},
		{"role": "assistant", "content": "answer"}
	]}`

	got := ParseJSON([]byte(blob), "solo.json", discard())
	if len(got) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(got))
	}
	if got[0].SourceID != "solo" {
		t.Errorf("source id = %q", got[0].SourceID)
	}
}

func TestParseJSON_KeyedByConversationID(t *testing.T) {
	blob := `{
		"conv-b": {"messages": [{"role": "user", "content": "b text"}]},
		"conv-a": {"messages": [{"role": "user", "content": "a text"}]}
	}`

	got := ParseJSON([]byte(blob), "keyed.json", discard())
	if len(got) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(got))
	}
	// Keys are emitted in sorted order and used as ids.
	if got[0].SourceID != "conv-a" || got[1].SourceID != "conv-b" {
		t.Errorf("source ids = %q, %q", got[0].SourceID, got[1].SourceID)
	}
}

func TestParseJSON_TwoTurnShapes(t *testing.T) {
	for _, blob := range []string{
		`{"user": "how do I sort a slice?", "assistant": "use sort.Slice"}`,
		`{"human": "how do I sort a slice?", "ai": "use sort.Slice"}`,
	} {
		got := ParseJSON([]byte(blob), "pair.json", discard())
		if len(got) != 1 {
			t.Fatalf("blob %s: expected 1 conversation, got %d", blob, len(got))
		}
		rc := got[0]
		if len(rc.Messages) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(rc.Messages))
		}
		if rc.Messages[0].Role != "user" || rc.Messages[1].Role != "assistant" {
			t.Errorf("roles = %q, %q", rc.Messages[0].Role, rc.Messages[1].Role)
		}
		if rc.SourceID == "" {
			t.Error("expected derived source id for id-less record")
		}
		if rc.Messages[1].Timestamp.Before(rc.Messages[0].Timestamp) {
			t.Error("assistant turn sorted before user turn")
		}
	}
}

func TestParseJSON_NumericIDsKeepDigits(t *testing.T) {
	blob := `{"id": 1770000001, "messages": [
		{"id": 9007199254740991, "role": "user", "content": "numeric ids"}
	]}`

	got := ParseJSON([]byte(blob), "numeric.json", discard())
	if len(got) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(got))
	}
	// A float64-decoded id must not come out in scientific notation.
	if got[0].SourceID != "1770000001" {
		t.Errorf("source id = %q, want %q", got[0].SourceID, "1770000001")
	}
	if got[0].Messages[0].ID != "9007199254740991" {
		t.Errorf("message id = %q, want %q", got[0].Messages[0].ID, "9007199254740991")
	}
}

func TestParseJSON_DerivedIDIsDeterministic(t *testing.T) {
	blob := `{"human": "same question", "ai": "same answer"}`

	a := ParseJSON([]byte(blob), "pair.json", discard())
	b := ParseJSON([]byte(blob), "pair.json", discard())
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected 1 conversation each, got %d and %d", len(a), len(b))
	}
	if a[0].SourceID != b[0].SourceID {
		t.Errorf("derived ids differ: %q vs %q", a[0].SourceID, b[0].SourceID)
	}
}

func TestParseJSON_StructuredContentBlocks(t *testing.T) {
	blob := `{"id": "blocks", "messages": [
		{"role": "assistant", "content": [
			{"type": "text", "text": "here is the fix"},
			{"type": "code", "language": "go", "text": "func main() {}"}
		]}
	]}`

	got := ParseJSON([]byte(blob), "blocks.json", discard())
	if len(got) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(got))
	}
	content := got[0].Messages[0].Content
	want := "here is the fix\n```go\nfunc main() {}\n```"
	if content != want {
		t.Errorf("flattened content = %q, want %q", content, want)
	}
}

func TestParseJSON_MalformedInput(t *testing.T) {
	for _, blob := range []string{`{not json`, `42`, `"just a string"`, `{"messages": []}`} {
		got := ParseJSON([]byte(blob), "bad.json", discard())
		if len(got) != 0 {
			t.Errorf("blob %s: expected no conversations, got %d", blob, len(got))
		}
	}
}

func TestIsConversation(t *testing.T) {
	cases := []struct {
		name string
		data map[string]any
		want bool
	}{
		{"messages list", map[string]any{"id": "x", "messages": []any{map[string]any{}}}, true},
		{"empty messages", map[string]any{"id": "x", "messages": []any{}}, false},
		{"user assistant", map[string]any{"user": "q", "assistant": "a"}, true},
		{"human ai", map[string]any{"human": "q", "ai": "a"}, true},
		{"unrelated dict", map[string]any{"foo": "bar"}, false},
	}
	for _, tc := range cases {
		if got := IsConversation(tc.data); got != tc.want {
			t.Errorf("%s: IsConversation = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		in   any
		want time.Time
	}{
		{float64(1770000000), time.Unix(1770000000, 0).UTC()},
		{float64(1770000000000), time.UnixMilli(1770000000000).UTC()},
		{"2026-03-01T10:00:00Z", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"2026-03-01T10:00:00", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := ParseTimestamp(tc.in); !got.Equal(tc.want) {
			t.Errorf("ParseTimestamp(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseTimestamp_FallbackToNow(t *testing.T) {
	before := time.Now().UTC()
	got := ParseTimestamp("not a timestamp")
	after := time.Now().UTC()

	if got.Before(before) || got.After(after) {
		t.Errorf("expected current-time fallback, got %v", got)
	}
}
