package extract

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/anderson/internal/model"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func conv(msgs ...model.Message) model.Conversation {
	return model.Conversation{
		ID:       uuid.New(),
		Source:   model.SourceCursor,
		SourceID: "t1",
		Messages: msgs,
	}
}

func textMsg(role model.Role, text string) model.Message {
	return model.Message{
		ID:        uuid.New(),
		Role:      role,
		Timestamp: time.Now().UTC(),
		Blocks:    []model.ContentBlock{{Type: model.ContentText, Content: text}},
	}
}

func TestProblemSolutionPass(t *testing.T) {
	c := conv(
		textMsg(model.RoleUser, "how do I reverse a slice in place?"),
		textMsg(model.RoleAssistant, "iterate from both ends and swap"),
	)

	got := ProblemSolutionPass{}.Extract(c)
	if len(got) != 1 {
		t.Fatalf("expected 1 insight, got %d", len(got))
	}
	in := got[0]
	if in.Type != model.InsightProblemSolution {
		t.Errorf("type = %v", in.Type)
	}
	if in.Title != "how do I reverse a slice in place?" {
		t.Errorf("title = %q", in.Title)
	}
	wantContent := "Problem:\nhow do I reverse a slice in place?\n\nSolution:\niterate from both ends and swap"
	if in.Content != wantContent {
		t.Errorf("content = %q", in.Content)
	}
	if in.Confidence != ConfidenceProblemPlain {
		t.Errorf("confidence = %v, want %v", in.Confidence, ConfidenceProblemPlain)
	}
	if in.ConversationID != c.ID {
		t.Error("conversation id not propagated")
	}
}

func TestProblemSolutionPass_CodeRaisesConfidence(t *testing.T) {
	c := conv(
		textMsg(model.RoleUser, "why does this error?"),
		model.Message{
			ID: uuid.New(), Role: model.RoleAssistant, Timestamp: time.Now(),
			Blocks: []model.ContentBlock{
				{Type: model.ContentText, Content: "use a pointer receiver"},
				{Type: model.ContentCode, Language: "go", Content: "func (s *S) Fix() {}"},
			},
		},
	)

	got := ProblemSolutionPass{}.Extract(c)
	if len(got) != 1 {
		t.Fatalf("expected 1 insight, got %d", len(got))
	}
	if got[0].Confidence != ConfidenceProblemWithCode {
		t.Errorf("confidence = %v, want %v", got[0].Confidence, ConfidenceProblemWithCode)
	}
	if len(got[0].CodeBlocks) != 1 {
		t.Errorf("code blocks = %d", len(got[0].CodeBlocks))
	}
}

func TestProblemSolutionPass_IgnoresNonProblems(t *testing.T) {
	c := conv(
		textMsg(model.RoleUser, "thanks, looks great"),
		textMsg(model.RoleAssistant, "glad to help"),
	)
	if got := (ProblemSolutionPass{}).Extract(c); len(got) != 0 {
		t.Errorf("expected no insights, got %d", len(got))
	}
}

func TestProblemSolutionPass_UnpairedUserTurns(t *testing.T) {
	// Two user turns in a row: only the latest pairs with the reply.
	c := conv(
		textMsg(model.RoleUser, "what is a goroutine, first try"),
		textMsg(model.RoleUser, "what is a goroutine?"),
		textMsg(model.RoleAssistant, "a lightweight thread managed by the runtime"),
	)
	got := ProblemSolutionPass{}.Extract(c)
	if len(got) != 1 {
		t.Fatalf("expected 1 insight, got %d", len(got))
	}
	if got[0].Title != "what is a goroutine?" {
		t.Errorf("title = %q", got[0].Title)
	}
}

func TestLearningPass(t *testing.T) {
	explanation := "A goroutine is a lightweight thread of execution managed by the Go runtime. " +
		"It works by multiplexing many goroutines onto a small number of operating system threads."
	c := conv(textMsg(model.RoleAssistant, "short intro\n\n"+explanation))

	got := LearningPass{}.Extract(c)
	if len(got) != 1 {
		t.Fatalf("expected 1 insight, got %d", len(got))
	}
	in := got[0]
	if in.Type != model.InsightLearning {
		t.Errorf("type = %v", in.Type)
	}
	if in.Confidence != ConfidenceLearning {
		t.Errorf("confidence = %v", in.Confidence)
	}
	if in.Title != "A goroutine is a lightweight thread of execution managed by the Go runtime" {
		t.Errorf("title = %q", in.Title)
	}
	if in.Content != explanation {
		t.Errorf("content = %q", in.Content)
	}
}

func TestLearningPass_SkipsShortParagraphs(t *testing.T) {
	c := conv(textMsg(model.RoleAssistant, "this is a short note"))
	if got := (LearningPass{}).Extract(c); len(got) != 0 {
		t.Errorf("expected no insights for short paragraph, got %d", len(got))
	}
}

func TestLearningPass_ClassifiesParagraphOnly(t *testing.T) {
	paragraph := "Test coverage is a measure of how much of the code is exercised by the unit test suite, and a regression run keeps that coverage honest over time."
	c := conv(model.Message{
		ID: uuid.New(), Role: model.RoleAssistant, Timestamp: time.Now(),
		Blocks: []model.ContentBlock{
			{Type: model.ContentText, Content: paragraph},
			{Type: model.ContentCode, Language: "sql", Content: "-- schema migration: add index, foreign key and transaction-safe query\nALTER TABLE runs ADD COLUMN note TEXT;"},
		},
	})

	got := (LearningPass{}).Extract(c)
	if len(got) != 1 {
		t.Fatalf("expected 1 insight, got %d", len(got))
	}
	// The sibling code block is full of database keywords; the category
	// must come from the paragraph alone.
	if got[0].Category != model.CategoryTesting {
		t.Errorf("category = %v, want %v", got[0].Category, model.CategoryTesting)
	}
}

func TestCodeReferencePass_CodeCountsTowardCategory(t *testing.T) {
	c := conv(model.Message{
		ID: uuid.New(), Role: model.RoleAssistant, Timestamp: time.Now(),
		Blocks: []model.ContentBlock{
			{Type: model.ContentText, Content: "run this"},
			{Type: model.ContentCode, Language: "go", Content: "// quicksort algorithm for the hot code path\nfunc sortInts(xs []int) {}"},
		},
	})

	got := (CodeReferencePass{}).Extract(c)
	if len(got) != 1 {
		t.Fatalf("expected 1 insight, got %d", len(got))
	}
	if got[0].Category != model.CategoryProgramming {
		t.Errorf("category = %v, want %v", got[0].Category, model.CategoryProgramming)
	}
}

func TestLearningPass_SkipsUserMessages(t *testing.T) {
	long := strings.Repeat("the key concept is something I read about somewhere. ", 4)
	c := conv(textMsg(model.RoleUser, long))
	if got := (LearningPass{}).Extract(c); len(got) != 0 {
		t.Errorf("expected no insights from user turns, got %d", len(got))
	}
}

func TestCodeReferencePass(t *testing.T) {
	c := conv(model.Message{
		ID: uuid.New(), Role: model.RoleAssistant, Timestamp: time.Now(),
		Blocks: []model.ContentBlock{
			{Type: model.ContentText, Content: "two snippets follow"},
			{Type: model.ContentCode, Language: "go", Content: "package main"},
			{Type: model.ContentCode, Content: "SELECT 1;"},
		},
	})

	got := CodeReferencePass{}.Extract(c)
	if len(got) != 2 {
		t.Fatalf("expected 2 insights, got %d", len(got))
	}
	if got[0].Title != "Code snippet: go" {
		t.Errorf("title 0 = %q", got[0].Title)
	}
	if got[1].Title != "Code snippet" {
		t.Errorf("title 1 = %q", got[1].Title)
	}
	for _, in := range got {
		if in.Confidence != ConfidenceCodeReference {
			t.Errorf("confidence = %v", in.Confidence)
		}
		if len(in.CodeBlocks) != 1 {
			t.Errorf("each insight carries exactly its own block, got %d", len(in.CodeBlocks))
		}
		if in.Content != "two snippets follow" {
			t.Errorf("context = %q", in.Content)
		}
	}
}

func TestCodeReferencePass_ContextCapped(t *testing.T) {
	long := strings.Repeat("x", 900)
	c := conv(model.Message{
		ID: uuid.New(), Role: model.RoleAssistant, Timestamp: time.Now(),
		Blocks: []model.ContentBlock{
			{Type: model.ContentText, Content: long},
			{Type: model.ContentCode, Language: "go", Content: "code"},
		},
	})
	got := CodeReferencePass{}.Extract(c)
	if len(got) != 1 {
		t.Fatalf("expected 1 insight, got %d", len(got))
	}
	if len(got[0].Content) != 500 {
		t.Errorf("context length = %d, want 500", len(got[0].Content))
	}
}

func TestProjectReferencePass(t *testing.T) {
	c := conv(
		textMsg(model.RoleUser, "I'm working on the Chronicle project and need help"),
		textMsg(model.RoleAssistant, "sure, tell me about the Chronicle project"),
	)

	got := ProjectReferencePass{}.Extract(c)
	if len(got) != 1 {
		t.Fatalf("expected 1 insight, got %d", len(got))
	}
	in := got[0]
	if in.Title != "Project: Chronicle" {
		t.Errorf("title = %q", in.Title)
	}
	if in.Type != model.InsightProjectReference {
		t.Errorf("type = %v", in.Type)
	}
	if !strings.HasPrefix(in.Content, "Reference to project: Chronicle") {
		t.Errorf("content = %q", in.Content)
	}
}

func TestProjectReferencePass_ShortNamesSkipped(t *testing.T) {
	c := conv(textMsg(model.RoleUser, "my Api project is broken"))
	if got := (ProjectReferencePass{}).Extract(c); len(got) != 0 {
		t.Errorf("expected short names to be skipped, got %d", len(got))
	}
}

func TestRunner_CombinesPassesInOrder(t *testing.T) {
	c := conv(
		textMsg(model.RoleUser, "how do I connect to PostgreSQL?"),
		model.Message{
			ID: uuid.New(), Role: model.RoleAssistant, Timestamp: time.Now(),
			Blocks: []model.ContentBlock{
				{Type: model.ContentText, Content: "open a pool"},
				{Type: model.ContentCode, Language: "go", Content: `pool, err := pgxpool.New(ctx, url)`},
			},
		},
	)

	got := NewRunner(discard()).Run(c)
	if len(got) != 2 {
		t.Fatalf("expected 2 insights, got %d: %+v", len(got), got)
	}
	if got[0].Type != model.InsightProblemSolution || got[1].Type != model.InsightCodeReference {
		t.Errorf("order = %v, %v", got[0].Type, got[1].Type)
	}
}

type panicPass struct{}

func (panicPass) Name() string                               { return "panic" }
func (panicPass) Extract(model.Conversation) []model.Insight { panic("boom") }

func TestRunner_PassPanicIsContained(t *testing.T) {
	r := &Runner{
		passes: []Pass{panicPass{}, CodeReferencePass{}},
		logger: discard(),
	}
	c := conv(model.Message{
		ID: uuid.New(), Role: model.RoleAssistant, Timestamp: time.Now(),
		Blocks: []model.ContentBlock{{Type: model.ContentCode, Language: "go", Content: "ok"}},
	})

	got := r.Run(c)
	if len(got) != 1 {
		t.Fatalf("surviving pass should still run, got %d insights", len(got))
	}
}

func TestFilterConfidence(t *testing.T) {
	in := []model.Insight{
		{Title: "low", Confidence: 0.5},
		{Title: "edge", Confidence: 0.7},
		{Title: "high", Confidence: 0.9},
	}
	got := FilterConfidence(in, 0.7)
	if len(got) != 2 {
		t.Fatalf("expected 2 insights, got %d", len(got))
	}
	if got[0].Title != "edge" || got[1].Title != "high" {
		t.Errorf("kept = %q, %q", got[0].Title, got[1].Title)
	}
}
