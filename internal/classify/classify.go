// Package classify assigns taxonomy categories and technology tags to
// extracted insights by whole-word keyword scoring.
package classify

import (
	"regexp"
	"sort"

	"github.com/MikeSquared-Agency/anderson/internal/model"
)

// technologyVocabulary is the fixed set of technology names recognized in
// conversation text. Matching is whole-word and case-insensitive; the
// canonical casing here is what gets stored as the tag.
var technologyVocabulary = []string{
	"Python", "JavaScript", "TypeScript", "React", "Vue", "Angular",
	"Node.js", "Express", "Django", "Flask", "FastAPI",
	"SQL", "PostgreSQL", "MySQL", "MongoDB", "Redis",
	"Docker", "Kubernetes", "AWS", "Azure", "GCP",
	"Git", "GitHub", "GitLab", "Bitbucket",
	"HTML", "CSS", "Sass", "Less", "Tailwind",
	"REST", "GraphQL", "gRPC", "WebSockets",
	"TensorFlow", "PyTorch", "scikit-learn", "Pandas", "NumPy",
	"Java", "C#", "C++", "Go", "Rust", "Swift", "Kotlin",
}

// categoryOrder fixes tie-breaking: the first category reaching the maximum
// score wins.
var categoryOrder = []model.Category{
	model.CategoryProgramming,
	model.CategoryDevOps,
	model.CategoryDesign,
	model.CategoryArchitecture,
	model.CategoryDatabase,
	model.CategoryTesting,
}

var categoryKeywords = map[model.Category][]string{
	model.CategoryProgramming: {
		"code", "function", "class", "method", "variable", "algorithm",
		"programming", "syntax", "compiler", "interpreter", "runtime",
	},
	model.CategoryDevOps: {
		"deploy", "pipeline", "ci/cd", "continuous integration", "continuous deployment",
		"infrastructure", "container", "docker", "kubernetes", "orchestration",
		"monitoring", "logging", "alerting", "scaling", "load balancing",
	},
	model.CategoryDesign: {
		"design", "ui", "ux", "user interface", "user experience",
		"wireframe", "mockup", "prototype", "responsive", "accessibility",
		"color", "typography", "layout", "component", "style guide",
	},
	model.CategoryArchitecture: {
		"architecture", "system design", "microservice", "monolith",
		"scalability", "reliability", "availability", "performance",
		"latency", "throughput", "consistency", "eventual consistency",
		"caching", "sharding", "partitioning", "replication",
	},
	model.CategoryDatabase: {
		"database", "sql", "nosql", "query", "index", "transaction",
		"acid", "base", "schema", "migration", "orm", "join",
		"primary key", "foreign key", "constraint", "normalization",
	},
	model.CategoryTesting: {
		"test", "unit test", "integration test", "e2e test", "end-to-end test",
		"mock", "stub", "spy", "assertion", "coverage", "tdd", "bdd",
		"regression", "smoke test", "load test", "stress test",
	},
}

// categoryTechnologies routes a recognized technology tag to the category it
// boosts.
var categoryTechnologies = map[model.Category][]string{
	model.CategoryProgramming:  {"Python", "JavaScript", "TypeScript", "Java", "C#", "C++", "Go", "Rust", "Swift", "Kotlin"},
	model.CategoryDevOps:       {"Docker", "Kubernetes", "AWS", "Azure", "GCP", "Jenkins", "CircleCI", "GitHub Actions"},
	model.CategoryDesign:       {"HTML", "CSS", "Sass", "Less", "Tailwind", "Bootstrap", "Material-UI"},
	model.CategoryArchitecture: {"REST", "GraphQL", "gRPC", "WebSockets", "Kafka", "RabbitMQ"},
	model.CategoryDatabase:     {"SQL", "PostgreSQL", "MySQL", "MongoDB", "Redis", "Elasticsearch"},
	model.CategoryTesting:      {"Jest", "Mocha", "Chai", "Cypress", "Selenium", "JUnit", "pytest"},
}

var (
	wordPatterns  = map[string]*regexp.Regexp{}
	techCategory  = map[string]model.Category{}
	allMatchTerms []string
)

func init() {
	allMatchTerms = append(allMatchTerms, technologyVocabulary...)
	for _, kws := range categoryKeywords {
		allMatchTerms = append(allMatchTerms, kws...)
	}
	for _, term := range allMatchTerms {
		if _, ok := wordPatterns[term]; !ok {
			wordPatterns[term] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`)
		}
	}
	for _, cat := range categoryOrder {
		for _, tech := range categoryTechnologies[cat] {
			techCategory[tech] = cat
		}
	}
}

// Technologies returns the canonical technology tags mentioned in text,
// sorted for deterministic output.
func Technologies(text string) []string {
	var found []string
	for _, tech := range technologyVocabulary {
		if wordPatterns[tech].MatchString(text) {
			found = append(found, tech)
		}
	}
	sort.Strings(found)
	return found
}

// Categorize scores text against each category's keyword list, adds one
// point per routed technology, and returns the highest-scoring category.
// A zero score across the board means OTHER.
func Categorize(text string, technologies []string) model.Category {
	scores := map[model.Category]int{}
	for cat, kws := range categoryKeywords {
		for _, kw := range kws {
			if wordPatterns[kw].MatchString(text) {
				scores[cat]++
			}
		}
	}
	for _, tech := range technologies {
		if cat, ok := techCategory[tech]; ok {
			scores[cat]++
		}
	}

	best := model.CategoryOther
	bestScore := 0
	for _, cat := range categoryOrder {
		if scores[cat] > bestScore {
			best, bestScore = cat, scores[cat]
		}
	}
	return best
}

// Classify is the one-call form: extract tags from text, then categorize
// with them.
func Classify(text string) (model.Category, []string) {
	techs := Technologies(text)
	return Categorize(text, techs), techs
}
