package labelmatch

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/kirillkom/dermafusion/internal/core/domain"
)

const DefaultMinScore = 60

var (
	parentheticalPattern = regexp.MustCompile(`\(([^)]*)\)|\[([^\]]*)\]`)
	secondarySeparators  = regexp.MustCompile(`[,\-]`)
)

type entry struct {
	label  string
	exact  string
	folded string
	sorted string
}

// Matcher reconciles free-form disease names against a fixed canonical list.
type Matcher struct {
	primary   []entry
	secondary []entry
}

func NewMatcher(canonical []string) *Matcher {
	m := &Matcher{
		primary:   make([]entry, 0, len(canonical)),
		secondary: make([]entry, 0),
	}
	for _, label := range canonical {
		if e, ok := newEntry(label, label); ok {
			m.primary = append(m.primary, e)
		}
		for _, term := range secondaryTerms(label) {
			if e, ok := newEntry(label, term); ok {
				m.secondary = append(m.secondary, e)
			}
		}
	}
	return m
}

// FindBestMatch builds a one-shot matcher over canonical and runs it.
func FindBestMatch(query string, canonical []string, minScore int) (domain.MatchResult, bool) {
	return NewMatcher(canonical).FindBestMatch(query, minScore)
}

// FindBestMatch returns the highest scoring canonical label at or above minScore.
// Exact equality wins immediately; ties keep the first candidate found.
func (m *Matcher) FindBestMatch(query string, minScore int) (domain.MatchResult, bool) {
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	q, ok := newEntry("", query)
	if !ok {
		return domain.MatchResult{}, false
	}

	for _, group := range [][]entry{m.primary, m.secondary} {
		for _, e := range group {
			if e.exact == q.exact {
				return domain.MatchResult{MatchedLabel: e.label, ConfidenceScore: 100}, true
			}
		}
	}

	best := domain.MatchResult{}
	found := false
	consider := func(label string, score float64) {
		if score < float64(minScore) {
			return
		}
		if !found || score > best.ConfidenceScore {
			best = domain.MatchResult{MatchedLabel: label, ConfidenceScore: score}
			found = true
		}
	}

	for _, group := range [][]entry{m.primary, m.secondary} {
		for _, e := range group {
			consider(e.label, Ratio(q.folded, e.folded))
			consider(e.label, PartialRatio(q.folded, e.folded))
			consider(e.label, Ratio(q.sorted, e.sorted))
		}
	}
	return best, found
}

func newEntry(label, text string) (entry, bool) {
	exact := NormalizeName(text)
	if exact == "" {
		return entry{}, false
	}
	folded := foldDiacritics(exact)
	return entry{
		label:  label,
		exact:  exact,
		folded: folded,
		sorted: sortTokens(folded),
	}, true
}

// NormalizeName lowercases, drops bracketed segments and punctuation, and collapses whitespace.
func NormalizeName(name string) string {
	name = norm.NFC.String(name)
	name = strings.ToLower(name)
	name = parentheticalPattern.ReplaceAllString(name, " ")

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func secondaryTerms(label string) []string {
	matches := parentheticalPattern.FindAllStringSubmatch(label, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		inner := m[1]
		if inner == "" {
			inner = m[2]
		}
		for _, part := range secondarySeparators.Split(inner, -1) {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

var diacriticFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func foldDiacritics(s string) string {
	folded, _, err := transform.String(diacriticFolder, s)
	if err != nil {
		return s
	}
	return strings.NewReplacer("đ", "d", "Đ", "d").Replace(folded)
}
