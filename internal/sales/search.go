package sales

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeSearchTerm lowercases, trims and strips diacritics so "Peñalolén"
// and "penalolen" match the same rows.
func NormalizeSearchTerm(term string) string {
	term = strings.TrimSpace(term)
	if term == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, term)
	if err != nil {
		folded = term
	}
	folded = strings.ToLower(folded)
	// LIKE wildcards typed by the user are taken literally.
	folded = strings.NewReplacer("%", "", "_", "").Replace(folded)
	return strings.Join(strings.Fields(folded), " ")
}

// NormalizeRut strips formatting dots and spaces and upper-cases the check digit.
func NormalizeRut(rut string) string {
	rut = strings.ToUpper(strings.TrimSpace(rut))
	return strings.NewReplacer(".", "", " ", "", "%", "", "_", "").Replace(rut)
}

// ValidRut checks the "12345678-K" shape and the modulo 11 check digit.
func ValidRut(rut string) bool {
	rut = NormalizeRut(rut)
	body, dv, ok := strings.Cut(rut, "-")
	if !ok || len(body) < 7 || len(body) > 8 || len(dv) != 1 {
		return false
	}
	sum, mul := 0, 2
	for i := len(body) - 1; i >= 0; i-- {
		c := body[i]
		if c < '0' || c > '9' {
			return false
		}
		sum += int(c-'0') * mul
		mul++
		if mul > 7 {
			mul = 2
		}
	}
	var want byte
	switch r := 11 - sum%11; r {
	case 11:
		want = '0'
	case 10:
		want = 'K'
	default:
		want = byte('0' + r)
	}
	return dv[0] == want
}
