package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes are dropped from the end of a business name before keying.
var legalSuffixes = map[string]bool{
	"llc": true, "inc": true, "co": true, "corp": true, "corporation": true,
	"company": true, "ltd": true, "lp": true, "llp": true, "pllc": true,
	"incorporated": true,
}

// normalizeToken lowercases s, strips diacritics and keeps only letters,
// digits and single spaces.
func normalizeToken(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = cases.Fold().String(out)

	var b strings.Builder
	for _, r := range out {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '&':
			b.WriteString(" and ")
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NaturalKey identifies a business across discovery runs by normalized
// name, city and county. "Smith & Sons Heating, LLC" in "Temple" keys the
// same as "SMITH AND SONS HEATING" in "temple".
func NaturalKey(name, city, county string) string {
	words := strings.Fields(normalizeToken(name))
	for len(words) > 1 && legalSuffixes[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	county = strings.TrimSuffix(normalizeToken(county), " county")
	return strings.Join(words, " ") + "|" + normalizeToken(city) + "|" + county
}

// NaturalKey returns the business's dedupe key.
func (b *Business) NaturalKey() string {
	return NaturalKey(b.Name, b.City, b.County)
}

// NameKey is the name part of NaturalKey, for matching listings that carry
// no city or county.
func NameKey(name string) string {
	k, _, _ := strings.Cut(NaturalKey(name, "", ""), "|")
	return k
}
