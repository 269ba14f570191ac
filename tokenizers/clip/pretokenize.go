package clip

import (
	"sort"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// whitespaceClass lists the characters with the Unicode White_Space property.
const whitespaceClass = `\t\n\v\f\r \u0085\u00A0\u1680\u2000-\u200A\u2028\u2029\u202F\u205F\u3000`

// clusterPattern is the word-splitting grammar that follows the special-token alternatives: contractions,
// runs of letters, single numeric characters and runs of anything that is neither whitespace, letter nor
// number. Whitespace is never matched.
const clusterPattern = `'s|'t|'re|'ve|'m|'ll|'d|\p{L}+|\p{N}|[^` + whitespaceClass + `\p{L}\p{N}]+`

// pretokenizer lowercases text and splits it into clusters, which are then encoded independently.
type pretokenizer struct {
	re *regexp2.Regexp

	// specials maps the (lowercase) special-token substrings to their IDs.
	specials map[string]int
}

// newPretokenizer compiles the splitting grammar. Special-token substrings take precedence over every other
// alternative; when one is a prefix of another, the longest one wins.
func newPretokenizer(specials map[string]int) (*pretokenizer, error) {
	p := &pretokenizer{specials: make(map[string]int, len(specials))}
	keys := make([]string, 0, len(specials))
	for s, id := range specials {
		if s == "" {
			continue
		}
		s = lower(s)
		p.specials[s] = id
		keys = append(keys, s)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	var sb strings.Builder
	for _, key := range keys {
		sb.WriteString(regexp2.Escape(key))
		sb.WriteByte('|')
	}
	sb.WriteString(clusterPattern)
	re, err := regexp2.Compile(sb.String(), regexp2.Unicode)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to compile pre-tokenizer pattern %q", sb.String())
	}
	p.re = re
	return p, nil
}

// lower applies the full Unicode lowercase mapping, including the final sigma rule.
// A Caser is not safe for concurrent use, so one is created per call.
func lower(text string) string {
	return cases.Lower(language.Und).String(text)
}

// split returns the clusters of text, in order. Invalid UTF-8 sequences are replaced by U+FFFD first.
func (p *pretokenizer) split(text string) []string {
	text = lower(strings.ToValidUTF8(text, "\uFFFD"))
	if text == "" {
		return nil
	}
	var clusters []string
	m, err := p.re.FindStringMatch(text)
	for err == nil && m != nil {
		clusters = append(clusters, m.String())
		m, err = p.re.FindNextMatch(m)
	}
	// The pattern has no match timeout, so err is always nil.
	return clusters
}

// special returns the ID of cluster if it is a special-token substring.
func (p *pretokenizer) special(cluster string) (int, bool) {
	id, found := p.specials[cluster]
	return id, found
}
