package services

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/go-llm-chat/internal/domain"
)

const (
	defaultTitleMaxLen   = 60
	defaultTitleUntitled = "Untitled"
	maxTitleWords        = 8
)

// Titler derives and normalizes session titles.
type Titler struct {
	MaxLen int
	Locale language.Tag
}

// isPlaceholder reports whether a title is eligible for auto-generation.
func isPlaceholder(current string) bool {
	t := strings.ToLower(strings.TrimSpace(current))
	return t == "" || t == strings.ToLower(domain.DefaultSessionTitle) || t == strings.ToLower(defaultTitleUntitled)
}

// FromPrompt builds a short title-cased title from the first words of prompt,
// skipping stop words. It returns "" when nothing usable remains.
func (t Titler) FromPrompt(prompt string) string {
	toks := titleWordRE.FindAllString(strings.ToLower(strings.TrimSpace(prompt)), -1)
	if len(toks) == 0 {
		return ""
	}
	loc := t.Locale
	if loc == language.Und {
		loc = language.English
	}
	caser := cases.Title(loc)

	out := make([]string, 0, maxTitleWords)
	for _, w := range toks {
		if _, skip := titleStopWords[w]; skip {
			continue
		}
		out = append(out, caser.String(w))
		if len(out) == maxTitleWords {
			break
		}
	}
	return t.Clip(strings.Join(out, " "))
}

// Clip truncates title to MaxLen runes.
func (t Titler) Clip(title string) string {
	max := t.MaxLen
	if max <= 0 {
		max = defaultTitleMaxLen
	}
	if utf8.RuneCountInString(title) > max {
		return string([]rune(title)[:max])
	}
	return title
}

// Normalize trims and collapses whitespace, then clips.
func (t Titler) Normalize(title string) string {
	return t.Clip(whitespaceRE.ReplaceAllString(strings.TrimSpace(title), " "))
}

var (
	titleWordRE  = regexp.MustCompile(`[\p{L}]+[\p{N}]*`)
	whitespaceRE = regexp.MustCompile(`\s+`)
)

var titleStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {}, "from": {},
	"at": {}, "as": {}, "that": {}, "this": {}, "it": {}, "be": {}, "was": {}, "were": {},
	"what": {}, "how": {}, "can": {}, "you": {}, "me": {}, "i": {}, "do": {}, "does": {},
}
