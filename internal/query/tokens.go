package query

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

type token struct {
	raw   string
	lower string
}

var (
	emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[A-Za-z]{2,}$`)
	dateRegex  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// tokenize splits a question into words, trimming surrounding punctuation
// and possessive suffixes. Characters inside a word (emails, dates, keys)
// are preserved.
func tokenize(q string) []token {
	var out []token
	for _, w := range strings.Fields(q) {
		w = strings.Trim(w, "?,.!;:\"'()[]{}`")
		for _, suf := range []string{"'s", "’s"} {
			if len(w) > len(suf) && strings.HasSuffix(strings.ToLower(w), suf) {
				w = w[:len(w)-len(suf)]
			}
		}
		w = strings.Trim(w, "?,.!;:\"'()[]{}`")
		if w == "" {
			continue
		}
		out = append(out, token{raw: w, lower: strings.ToLower(w)})
	}
	return out
}

func (t token) capitalized() bool {
	r, _ := utf8.DecodeRuneInString(t.raw)
	return unicode.IsUpper(r)
}

func (t token) isEmail() bool { return emailRegex.MatchString(t.raw) }
func (t token) isDate() bool  { return dateRegex.MatchString(t.raw) }

// stopwords never serve as lookup values or identifying tokens.
var stopwords = map[string]bool{
	"a": true, "about": true, "all": true, "an": true, "and": true, "any": true,
	"anyone": true, "are": true, "at": true, "by": true, "did": true, "do": true,
	"does": true, "everything": true, "find": true, "for": true, "from": true,
	"get": true, "has": true, "have": true, "how": true, "i": true, "in": true,
	"is": true, "it": true, "list": true, "me": true, "my": true, "of": true,
	"on": true, "or": true, "show": true, "someone": true, "somebody": true,
	"tell": true, "that": true, "the": true, "there": true, "this": true,
	"to": true, "was": true, "what": true, "when": true, "where": true,
	"which": true, "who": true, "whose": true, "with": true, "you": true,
	"we": true, "our": true, "us": true, "recall": true, "remember": true,
	"whom": true, "why": true, "give": true, "know": true, "can": true,
}

// fillers may sit between an attribute and its value: "email is x",
// "name: x", "date of x".
var fillers = map[string]bool{
	"is": true, "was": true, "are": true, "=": true, ":": true, "of": true,
	"equals": true, "equal": true, "to": true, "called": true, "being": true,
	"as": true, "the": true, "a": true, "an": true, "with": true, "for": true,
}

// attrWords returns the word sequence naming an attribute: "phone_number"
// is mentioned as "phone number".
func attrWords(attr string) []string {
	return strings.FieldsFunc(strings.ToLower(attr), func(r rune) bool {
		return r == '_' || r == '-'
	})
}

// wordMatches reports whether w names base, allowing plural and past forms
// ("emails", "named").
func wordMatches(w, base string) bool {
	switch w {
	case base, base + "s", base + "es", base + "d", base + "ed":
		return true
	}
	return false
}

// mentions returns the token positions just past each mention of attr.
func mentions(toks []token, attr string) []int {
	words := attrWords(attr)
	if len(words) == 0 {
		return nil
	}
	// The joined form ("phone_number") also counts as one word.
	joined := strings.ToLower(attr)

	var ends []int
	for i := range toks {
		if wordMatches(toks[i].lower, joined) {
			ends = append(ends, i+1)
			continue
		}
		if i+len(words) > len(toks) {
			continue
		}
		ok := true
		for j, w := range words {
			tw := toks[i+j].lower
			if j == len(words)-1 {
				ok = ok && wordMatches(tw, w)
			} else {
				ok = ok && tw == w
			}
		}
		if ok && len(words) > 1 {
			ends = append(ends, i+len(words))
		}
	}
	return ends
}

// valueAfter extracts the lookup value that follows position i: the first
// non-filler token, extended over following capitalized words so that
// "named Toby Smith" yields "Toby Smith". owner is set when the value is
// introduced by "of" or "for", as in "the email of Toby".
func valueAfter(toks []token, i int) (value string, owner bool) {
	for i < len(toks) && fillers[toks[i].lower] {
		if toks[i].lower == "of" || toks[i].lower == "for" {
			owner = true
		}
		i++
	}
	if i >= len(toks) {
		return "", false
	}
	first := toks[i]
	if stopwords[first.lower] {
		return "", false
	}
	if first.isEmail() || first.isDate() || !first.capitalized() {
		return first.raw, owner
	}
	parts := []string{first.raw}
	for j := i + 1; j < len(toks); j++ {
		t := toks[j]
		if !t.capitalized() || stopwords[t.lower] {
			break
		}
		parts = append(parts, t.raw)
	}
	return strings.Join(parts, " "), owner
}

const (
	shapeEmail = "email"
	shapeDate  = "date"
)

// attrShape returns the value shape an attribute name implies, or "".
func attrShape(name string) string {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, shapeEmail):
		return shapeEmail
	case strings.Contains(n, shapeDate):
		return shapeDate
	}
	return ""
}

// categoryMentioned reports whether the token names the category, in
// singular or plural form.
func categoryMentioned(t token, category string) bool {
	c := strings.ToLower(category)
	if t.lower == c || wordMatches(t.lower, c) {
		return true
	}
	return strings.TrimSuffix(c, "s") == t.lower || strings.TrimSuffix(c, "es") == t.lower
}
