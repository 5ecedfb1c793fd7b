// Package textmatch holds the tolerant text matching used to compare equipment,
// material and room descriptions that are typed free-hand by different people.
package textmatch

import (
	"strings"
	"unicode"
)

// tokenAliases folds spelling variants and near-synonyms onto one token.
var tokenAliases = map[string]string{
	"prosthesis":  "prosthetic",
	"prostheses":  "prosthetic",
	"xray":        "c-arm",
	"x-ray":       "c-arm",
	"carm":        "c-arm",
	"angiography": "c-arm",
	"fluoroscopy": "c-arm",
	"orthopedic":  "ortho",
	"orthopaedic": "ortho",
	"orthopedics": "ortho",
	"cemented":    "cement",
	"imaging":     "image",
	"displays":    "display",
	"monitor":     "display",
	"monitors":    "display",
	"mounted":     "mount",
	"mounting":    "mount",
	"laminar":     "airflow",
	"radiolucent": "radiology",
	"sutures":     "suture",
	"implants":    "implant",
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "fixed": {},
	"unit": {}, "size": {}, "to": {}, "of": {}, "a": {}, "in": {},
}

// Tokens returns the normalized, de-duplicated tokens of s in order of first appearance.
func Tokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-')
	})

	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "-")
		if f == "" {
			continue
		}
		if alias, ok := tokenAliases[f]; ok {
			f = alias
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}

// Normalize returns the tokens of s joined by single spaces.
func Normalize(s string) string {
	return strings.Join(Tokens(s), " ")
}

// Match reports whether a and b describe the same thing. They match when at least
// two tokens coincide or the shared tokens cover half of the shorter token set.
func Match(a, b string) bool {
	ta, tb := Tokens(a), Tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return false
	}

	set := make(map[string]struct{}, len(tb))
	for _, t := range tb {
		set[t] = struct{}{}
	}

	hits := 0
	for _, t := range ta {
		if _, ok := set[t]; ok {
			hits++
		}
	}

	shorter := len(ta)
	if len(tb) < shorter {
		shorter = len(tb)
	}
	return hits > 0 && (hits >= 2 || hits*2 >= shorter)
}

// MatchAny reports whether text matches any of the candidates.
func MatchAny(text string, candidates []string) bool {
	for _, c := range candidates {
		if Match(text, c) {
			return true
		}
	}
	return false
}

// ContainsToken reports whether any token of needle appears in the token set of haystack.
func ContainsToken(haystack string, needle string) bool {
	set := make(map[string]struct{})
	for _, t := range Tokens(haystack) {
		set[t] = struct{}{}
	}
	for _, t := range Tokens(needle) {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}
