// Package matcher associates free-text timetable labels with attendance
// subject codes.
package matcher

import (
	"sort"
	"strings"
	"unicode"
)

// Threshold is the score a match must strictly exceed.
const Threshold = 0.3

// Scores assigned by each heuristic.
const (
	ScoreExact      = 1.0
	ScoreContains   = 0.8
	ScoreKeyword    = 0.7
	MaxScorePartial = 0.6
	scoreUnmatched  = 0.0
	minWordLength   = 3
)

// Override pins labels to a code when every fragment occurs in the label.
type Override struct {
	Fragments []string
	Code      string
}

// DefaultOverrides are the institution-specific pins.
var DefaultOverrides = []Override{
	{Fragments: []string{"skill course"}, Code: "SC3"},
	{Fragments: []string{"data structure", "lab"}, Code: "24CSL306"},
	{Fragments: []string{"hardware lab"}, Code: "24CSL307"},
}

// Keyword maps a canonical subject name to code abbreviations.
type Keyword struct {
	Name          string
	Abbreviations []string
}

// DefaultKeywords is checked in order; the first hit wins.
var DefaultKeywords = []Keyword{
	{"mathematics", []string{"math", "mat", "maths"}},
	{"physics", []string{"phy", "phys"}},
	{"chemistry", []string{"chem", "che"}},
	{"computer science", []string{"cs", "cse", "comp", "computer"}},
	{"english", []string{"eng", "engl"}},
	{"biology", []string{"bio", "biol"}},
	{"history", []string{"hist", "his"}},
	{"economics", []string{"econ", "eco"}},
	{"statistics", []string{"stat", "stats"}},
	{"programming", []string{"prog", "prg"}},
	{"database", []string{"db", "dbms"}},
	{"software engineering", []string{"se", "swe", "software"}},
	{"data structures", []string{"ds", "dsa"}},
	{"algorithms", []string{"algo", "alg"}},
	{"operating system", []string{"os", "opsys"}},
	{"computer networks", []string{"cn", "networks", "net"}},
	{"artificial intelligence", []string{"ai", "artif"}},
	{"machine learning", []string{"ml", "mach"}},
}

// Match is the outcome for one label.
type Match struct {
	Label    string  `json:"label"`
	Code     string  `json:"code"`
	Score    float64 `json:"score"`
	Override bool    `json:"override,omitempty"`
}

// Matcher scores label/code pairs. The zero value is not usable; call New.
type Matcher struct {
	overrides []Override
	keywords  []Keyword
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithOverrides replaces the override table.
func WithOverrides(overrides []Override) Option {
	return func(m *Matcher) {
		m.overrides = overrides
	}
}

// WithKeywords replaces the keyword table.
func WithKeywords(keywords []Keyword) Option {
	return func(m *Matcher) {
		m.keywords = keywords
	}
}

// New creates a Matcher with the default tables.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		overrides: DefaultOverrides,
		keywords:  DefaultKeywords,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match finds the code for label among codes.
//
// An override applies only when its code is a candidate. Otherwise the code
// with the highest score wins, ties going to the earliest candidate, and the
// best score must exceed Threshold.
func (m *Matcher) Match(label string, codes []string) (Match, bool) {
	if code, ok := m.override(label, codes); ok {
		return Match{Label: label, Code: code, Score: ScoreExact, Override: true}, true
	}

	normalized := strings.ToLower(strings.TrimSpace(label))
	best := Match{Label: label}
	for _, code := range codes {
		score := m.score(normalized, code)
		if score > best.Score {
			best.Score = score
			best.Code = code
		}
	}
	if best.Score <= Threshold {
		return Match{Label: label, Score: best.Score}, false
	}
	return best, true
}

func (m *Matcher) override(label string, codes []string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(label))
	for _, o := range m.overrides {
		if !containsAll(lower, o.Fragments) {
			continue
		}
		for _, code := range codes {
			if code == o.Code {
				return o.Code, true
			}
		}
		// Only the first applicable pin is tried.
		return "", false
	}
	return "", false
}

func containsAll(s string, fragments []string) bool {
	for _, f := range fragments {
		if !strings.Contains(s, f) {
			return false
		}
	}
	return true
}

// Score returns the generic score of a label against a code, ignoring
// overrides.
func (m *Matcher) Score(label, code string) float64 {
	return m.score(strings.ToLower(strings.TrimSpace(label)), code)
}

func (m *Matcher) score(label, code string) float64 {
	code = strings.ToLower(code)

	if label == code {
		return ScoreExact
	}
	if strings.Contains(label, code) || strings.Contains(code, label) {
		return ScoreContains
	}

	for _, kw := range m.keywords {
		if !strings.Contains(label, kw.Name) {
			continue
		}
		for _, abbr := range kw.Abbreviations {
			if strings.Contains(code, abbr) {
				return ScoreKeyword
			}
		}
	}

	return partialScore(label, code)
}

// partialScore counts (label word, code word) pairs where one contains the
// other. The denominator is every space-separated label word, short ones
// included.
func partialScore(label, code string) float64 {
	labelWords := strings.Split(label, " ")
	codeWords := splitCode(code)

	matched := 0
	for _, word := range labelWords {
		if len(word) < minWordLength {
			continue
		}
		for _, cw := range codeWords {
			if strings.Contains(word, cw) || strings.Contains(cw, word) {
				matched++
			}
		}
	}
	if matched == 0 {
		return scoreUnmatched
	}
	return min(MaxScorePartial, float64(matched)/float64(len(labelWords)))
}

// splitCode splits on whitespace and digits and keeps words of three or
// more characters.
func splitCode(code string) []string {
	fields := strings.FieldsFunc(code, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsDigit(r)
	})
	words := fields[:0]
	for _, f := range fields {
		if len(f) >= minWordLength {
			words = append(words, f)
		}
	}
	return words
}

// Mapping is the association of a set of labels against a set of codes.
type Mapping struct {
	matches   map[string]Match
	byCode    map[string][]string
	unmatched []string
}

// Map matches every label against codes. codes order is the tie-break order.
func (m *Matcher) Map(labels []string, codes []string) *Mapping {
	mapping := &Mapping{
		matches: make(map[string]Match, len(labels)),
		byCode:  make(map[string][]string),
	}
	sorted := append([]string(nil), labels...)
	sort.Strings(sorted)
	for _, label := range sorted {
		match, ok := m.Match(label, codes)
		if !ok {
			mapping.unmatched = append(mapping.unmatched, label)
			continue
		}
		mapping.matches[label] = match
		mapping.byCode[match.Code] = append(mapping.byCode[match.Code], label)
	}
	return mapping
}

// Code returns the code a label maps to.
func (mp *Mapping) Code(label string) (string, bool) {
	match, ok := mp.matches[label]
	return match.Code, ok
}

// Match returns the full match for a label.
func (mp *Mapping) Match(label string) (Match, bool) {
	match, ok := mp.matches[label]
	return match, ok
}

// LabelsFor returns the labels mapped to code, sorted.
func (mp *Mapping) LabelsFor(code string) []string {
	return mp.byCode[code]
}

// Unmatched returns labels with no code, sorted.
func (mp *Mapping) Unmatched() []string {
	return mp.unmatched
}
