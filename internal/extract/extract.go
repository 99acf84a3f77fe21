// Package extract runs heuristic passes over canonical conversations and
// emits typed, confidence-scored insights.
package extract

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/anderson/internal/classify"
	"github.com/MikeSquared-Agency/anderson/internal/model"
)

// Pass is one extraction heuristic. Passes are independent: a failing pass
// costs only its own output.
type Pass interface {
	Name() string
	Extract(conv model.Conversation) []model.Insight
}

// Confidence levels per pass. Declared as variables so a deployment can
// retune them without touching the pass logic.
var (
	ConfidenceProblemWithCode = 0.9
	ConfidenceProblemPlain    = 0.7
	ConfidenceLearning        = 0.8
	ConfidenceCodeReference   = 0.9
	ConfidenceProjectRef      = 0.7
)

const (
	titleMaxLen          = 100
	learningMinParagraph = 100
	contextMaxLen        = 500
	projectNameMinLen    = 4
)

// problemPhrases mark a user turn as a problem statement.
var problemPhrases = []string{
	"how do i", "how to", "what is", "why does", "can you explain",
	"help me", "i'm stuck", "i am stuck", "not working", "error",
	"problem", "issue", "bug", "fix", "solve", "solution",
}

// explanationPhrases mark an assistant paragraph as explanatory.
var explanationPhrases = []string{
	"is a", "are a", "refers to", "means", "is defined as",
	"is used for", "are used for", "is responsible for",
	"works by", "functions by", "operates by",
	"in summary", "to summarize", "in conclusion",
	"the key concept", "the main idea", "the important thing",
}

// projectPatterns pull capitalized project names out of prose. Group 1 is
// the name. The indicator words match any case but the name itself must be
// TitleCase, otherwise the greedy word group swallows trailing prose.
var projectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i:my|our|the)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\s+(?i:project|app|application|website|service|platform|system|tool)`),
	regexp.MustCompile(`(?i:working on|building|developing|creating)\s+(?i:a|an|the)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)`),
	regexp.MustCompile(`(?i:project|app|application|website|service|platform|system|tool)\s+called\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)`),
}

func containsAny(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// newInsight classifies over scope, the pass-specific text the category is
// judged on, which is not always the stored content.
func newInsight(conv model.Conversation, typ model.InsightType, title, content, scope string, blocks []model.CodeBlock, confidence float64) model.Insight {
	category, _ := classify.Classify(scope)
	return model.Insight{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		Type:           typ,
		Category:       category,
		Title:          title,
		Content:        content,
		CodeBlocks:     blocks,
		Confidence:     confidence,
		ExtractedAt:    time.Now().UTC(),
	}
}

func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}

// ProblemSolutionPass pairs each user turn with the assistant reply that
// follows it and keeps pairs whose question reads like a problem statement.
type ProblemSolutionPass struct{}

func (ProblemSolutionPass) Name() string { return "problem_solution" }

func (ProblemSolutionPass) Extract(conv model.Conversation) []model.Insight {
	var insights []model.Insight
	var pending *model.Message

	for i := range conv.Messages {
		msg := &conv.Messages[i]
		switch msg.Role {
		case model.RoleUser:
			pending = msg
		case model.RoleAssistant:
			if pending == nil {
				continue
			}
			user, assistant := *pending, *msg
			pending = nil

			question := strings.TrimSpace(user.Text())
			answer := strings.TrimSpace(assistant.Text())
			if question == "" || answer == "" {
				continue
			}
			if !containsAny(question, problemPhrases) {
				continue
			}

			blocks := assistant.CodeBlocks()
			confidence := ConfidenceProblemPlain
			if len(blocks) > 0 {
				confidence = ConfidenceProblemWithCode
			}
			firstLine, _, _ := strings.Cut(question, "\n")
			content := fmt.Sprintf("Problem:\n%s\n\nSolution:\n%s", question, answer)
			insights = append(insights, newInsight(conv,
				model.InsightProblemSolution, truncate(firstLine, titleMaxLen), content,
				question+" "+answer, blocks, confidence))
		}
	}
	return insights
}

// LearningPass keeps long assistant paragraphs that read like explanations.
type LearningPass struct{}

func (LearningPass) Name() string { return "learning" }

func (LearningPass) Extract(conv model.Conversation) []model.Insight {
	var insights []model.Insight
	for _, msg := range conv.Messages {
		if msg.Role != model.RoleAssistant {
			continue
		}
		text := msg.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		blocks := msg.CodeBlocks()

		for _, paragraph := range strings.Split(text, "\n\n") {
			paragraph = strings.TrimSpace(paragraph)
			if len(paragraph) < learningMinParagraph {
				continue
			}
			if !containsAny(paragraph, explanationPhrases) {
				continue
			}
			firstSentence, _, _ := strings.Cut(paragraph, ".")
			title := firstSentence
			if len(firstSentence) > titleMaxLen {
				title = truncate(firstSentence, titleMaxLen) + "..."
			}
			// Classification reads the paragraph alone; sibling code
			// blocks must not pull the category.
			insights = append(insights, newInsight(conv,
				model.InsightLearning, title, paragraph, paragraph, blocks, ConfidenceLearning))
		}
	}
	return insights
}

// CodeReferencePass emits one insight per code block in assistant turns,
// with the surrounding prose as context.
type CodeReferencePass struct{}

func (CodeReferencePass) Name() string { return "code_reference" }

func (CodeReferencePass) Extract(conv model.Conversation) []model.Insight {
	var insights []model.Insight
	for _, msg := range conv.Messages {
		if msg.Role != model.RoleAssistant {
			continue
		}
		blocks := msg.CodeBlocks()
		if len(blocks) == 0 {
			continue
		}
		text := strings.TrimSpace(msg.Text())
		context := truncate(text, contextMaxLen)

		for _, block := range blocks {
			if strings.TrimSpace(block.Content) == "" {
				continue
			}
			title := "Code snippet"
			if block.Language != "" {
				title = "Code snippet: " + block.Language
			}
			// The code itself counts toward classification, with the full
			// surrounding prose rather than the truncated context.
			insights = append(insights, newInsight(conv,
				model.InsightCodeReference, title, context,
				text+" "+block.Content, []model.CodeBlock{block}, ConfidenceCodeReference))
		}
	}
	return insights
}

// ProjectReferencePass scans the whole conversation for named projects.
type ProjectReferencePass struct{}

func (ProjectReferencePass) Name() string { return "project_reference" }

func (ProjectReferencePass) Extract(conv model.Conversation) []model.Insight {
	var sb strings.Builder
	for _, msg := range conv.Messages {
		if t := msg.Text(); t != "" {
			sb.WriteString(t)
			sb.WriteString("\n")
		}
	}
	allText := sb.String()
	if strings.TrimSpace(allText) == "" {
		return nil
	}

	seen := map[string]bool{}
	var names []string
	for _, pattern := range projectPatterns {
		for _, m := range pattern.FindAllStringSubmatch(allText, -1) {
			name := m[1]
			if len(name) < projectNameMinLen || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var insights []model.Insight
	for _, name := range names {
		content := fmt.Sprintf("Reference to project: %s\n\nContext:\n%s...",
			name, truncate(strings.TrimSpace(allText), contextMaxLen))
		insights = append(insights, newInsight(conv,
			model.InsightProjectReference, "Project: "+name, content, allText, nil, ConfidenceProjectRef))
	}
	return insights
}

// Runner executes every registered pass over one conversation. A panic in a
// pass is contained: it is logged and the remaining passes still run.
type Runner struct {
	passes []Pass
	logger *slog.Logger
}

// NewRunner returns a runner with the standard pass set.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{
		passes: []Pass{
			ProblemSolutionPass{},
			LearningPass{},
			CodeReferencePass{},
			ProjectReferencePass{},
		},
		logger: logger,
	}
}

// Run returns the combined insights of all passes in registration order.
func (r *Runner) Run(conv model.Conversation) []model.Insight {
	var all []model.Insight
	for _, pass := range r.passes {
		all = append(all, r.runPass(pass, conv)...)
	}
	return all
}

func (r *Runner) runPass(pass Pass, conv model.Conversation) (out []model.Insight) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("extraction pass panicked",
				"pass", pass.Name(), "conversation_id", conv.ID, "panic", rec)
			out = nil
		}
	}()
	return pass.Extract(conv)
}

// FilterConfidence drops insights scoring below min.
func FilterConfidence(insights []model.Insight, min float64) []model.Insight {
	out := insights[:0:0]
	for _, in := range insights {
		if in.Confidence >= min {
			out = append(out, in)
		}
	}
	return out
}
