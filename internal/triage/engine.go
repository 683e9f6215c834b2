package triage

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/linnemanlabs/harken/internal/triage/rules"
)

// Engine classifies and routes feedback. It is built once from a RuleSet and
// is safe for concurrent use: the compiled rules are read-only and the valid
// department set is swapped atomically.
type Engine struct {
	version string

	negations map[string]bool
	window    int
	weights   map[string]int

	categories []compiledCategory
	deptFor    map[Category]string
	defaultDpt string

	safety        map[Category]bool
	sensitive     map[Category]bool
	safetyPhrases [][]string

	urgentWords   map[string]bool
	urgentPhrases [][]string
	exclMin       int
	exclRatio     float64
	capsMin       int
	capsRatio     float64

	departments atomic.Pointer[map[string]bool]
}

type compiledCategory struct {
	name    Category
	phrases [][]string
}

// NewEngine compiles rs into an Engine. The valid department set starts as
// the departments listed in rs; callers replace it with SetDepartments once
// the reference data has been loaded from storage.
func NewEngine(rs *rules.RuleSet) (*Engine, error) {
	if rs == nil {
		return nil, fmt.Errorf("triage: nil rule set")
	}
	if err := rs.Validate(); err != nil {
		return nil, fmt.Errorf("triage: invalid rules: %w", err)
	}

	known := make(map[Category]bool, len(Categories))
	for _, c := range Categories {
		known[c] = true
	}

	e := &Engine{
		version:     rs.Version,
		negations:   make(map[string]bool, len(rs.Sentiment.Negations)),
		window:      rs.Sentiment.NegationWindow,
		weights:     make(map[string]int, len(rs.Sentiment.Positive)+len(rs.Sentiment.Negative)),
		deptFor:     make(map[Category]string, len(rs.Categories)),
		defaultDpt:  rs.DefaultDepartment,
		safety:      make(map[Category]bool),
		sensitive:   make(map[Category]bool),
		urgentWords: make(map[string]bool),
		exclMin:     rs.Priority.Urgency.ExclamationMinCount,
		exclRatio:   rs.Priority.Urgency.ExclamationRatio,
		capsMin:     rs.Priority.Urgency.CapsMinWords,
		capsRatio:   rs.Priority.Urgency.CapsRatio,
	}

	for _, n := range rs.Sentiment.Negations {
		for _, tok := range tokenize(n) {
			e.negations[tok] = true
		}
	}
	for w, v := range rs.Sentiment.Positive {
		e.weights[strings.ToLower(w)] = v
	}
	for w, v := range rs.Sentiment.Negative {
		e.weights[strings.ToLower(w)] = -v
	}

	for _, c := range rs.Categories {
		name := Category(c.Name)
		if !known[name] {
			return nil, fmt.Errorf("triage: rules define unsupported category %q", c.Name)
		}
		cc := compiledCategory{name: name}
		for _, kw := range c.Keywords {
			if toks := tokenize(kw); len(toks) > 0 {
				cc.phrases = append(cc.phrases, toks)
			}
		}
		e.categories = append(e.categories, cc)
		e.deptFor[name] = c.Department
	}

	for _, name := range rs.Priority.SensitiveCategories {
		e.sensitive[Category(name)] = true
	}
	for _, name := range rs.Priority.SafetyCategories {
		e.safety[Category(name)] = true
		if !rs.Priority.CrossCategorySafety {
			continue
		}
		for _, cc := range e.categories {
			if cc.name == Category(name) {
				e.safetyPhrases = append(e.safetyPhrases, cc.phrases...)
			}
		}
	}

	for _, w := range rs.Priority.Urgency.Words {
		for _, tok := range tokenize(w) {
			e.urgentWords[tok] = true
		}
	}
	for _, p := range rs.Priority.Urgency.Phrases {
		if toks := tokenize(p); len(toks) > 0 {
			e.urgentPhrases = append(e.urgentPhrases, toks)
		}
	}

	e.SetDepartments(rs.DepartmentNames())
	return e, nil
}

// Version returns the version of the rule table the engine was built from.
func (e *Engine) Version() string { return e.version }

// DefaultDepartment returns the fallback routing target.
func (e *Engine) DefaultDepartment() string { return e.defaultDpt }

// SetDepartments replaces the set of department names the router may return.
func (e *Engine) SetDepartments(names []string) {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	e.departments.Store(&set)
}

// Triage classifies a submission. The only failure is ErrInvalidInput for an
// empty message; every non-empty message yields a complete Classification.
// Only the message text influences the result.
func (e *Engine) Triage(sub Submission) (Classification, error) {
	msg := strings.TrimSpace(sub.Message)
	if msg == "" {
		return Classification{}, fmt.Errorf("%w: message is empty", ErrInvalidInput)
	}

	tokens := tokenize(msg)
	sentiment, score := e.sentiment(tokens)
	category := e.category(tokens)
	urgent := e.urgency(msg, tokens)
	priority := e.priority(sentiment, category, tokens, urgent)

	return Classification{
		Sentiment:      sentiment,
		Category:       category,
		Priority:       priority,
		Department:     e.Route(category),
		Status:         StatusNew,
		SentimentScore: score,
		Urgent:         urgent,
		RulesVersion:   e.version,
	}, nil
}
