package pipeline

import (
	"strings"
	"unicode"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"github.com/loqalabs/jarvis/internal/config"
)

// Matcher recognizes short spoken phrases in a transcript despite
// recognition noise.
type Matcher struct {
	ratio int
}

func NewMatcher(ratio int) *Matcher {
	if ratio <= 0 || ratio > 100 {
		ratio = 85
	}
	return &Matcher{ratio: ratio}
}

// Match reports whether every word of phrase appears, approximately, in
// transcript.
func (m *Matcher) Match(phrase, transcript string) bool {
	want := words(phrase)
	have := words(transcript)
	if len(want) == 0 || len(have) == 0 {
		return false
	}
	for _, w := range want {
		if !m.containsWord(have, w) {
			return false
		}
	}
	return fuzzy.TokenSetRatio(strings.Join(want, " "), strings.Join(have, " ")) >= m.ratio
}

func (m *Matcher) containsWord(have []string, w string) bool {
	for _, h := range have {
		if h == w || fuzzy.Ratio(w, h) >= m.ratio {
			return true
		}
	}
	return false
}

// Any reports whether one of phrases matches transcript.
func (m *Matcher) Any(phrases []string, transcript string) bool {
	for _, p := range phrases {
		if m.Match(p, transcript) {
			return true
		}
	}
	return false
}

// MatchWhole is Match with the added condition that the transcript as a
// whole resembles phrase, so a command word inside a longer sentence does
// not count.
func (m *Matcher) MatchWhole(phrase, transcript string) bool {
	if !m.Match(phrase, transcript) {
		return false
	}
	return fuzzy.Ratio(strings.Join(words(phrase), " "), strings.Join(words(transcript), " ")) >= m.ratio
}

// AnyWhole reports whether one of phrases matches transcript as a whole.
func (m *Matcher) AnyWhole(phrases []string, transcript string) bool {
	for _, p := range phrases {
		if m.MatchWhole(p, transcript) {
			return true
		}
	}
	return false
}

// Reply returns the canned answer for the first matching entry.
func (m *Matcher) Reply(replies []config.CannedReply, transcript string) (string, bool) {
	for _, r := range replies {
		if strings.TrimSpace(r.Answer) == "" {
			continue
		}
		if m.Any(r.Phrases, transcript) {
			return r.Answer, true
		}
	}
	return "", false
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
