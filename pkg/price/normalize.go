// Package price turns locale-formatted price strings such as "12,50 zł" into decimals.
package price

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	pkgerrors "github.com/angelmondragon/cartwatch/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// unitTokens are stripped after folding to ASCII, so "zł" arrives as "zl".
// Other currencies fold to their ISO code and stay unparsable: totals are
// only ever summed in złoty.
var unitTokens = []string{"pln", "zl"}

// currencyGlyphs have no single-letter ASCII form.
var currencyGlyphs = strings.NewReplacer(
	"€", "EUR",
	"$", "USD",
	"£", "GBP",
	"₴", "UAH",
	"₽", "RUB",
)

var (
	numberRe = regexp.MustCompile(`^-?(\d+(\.\d*)?|\.\d+)$`)
	// groupedRe accepts space-separated thousands such as "1 299.00".
	groupedRe = regexp.MustCompile(`^[+-]?\d{1,3}( \d{3})+(\.\d*)?$`)
)

// Letters that carry no combining mark and therefore survive NFD.
var foldRunes = map[rune]rune{
	'ł': 'l', 'Ł': 'L',
	'đ': 'd', 'Đ': 'D',
	'ø': 'o', 'Ø': 'O',
	'\u00a0': ' ', '\u202f': ' ', '\u2009': ' ',
}

func foldRune(r rune) rune {
	if mapped, ok := foldRunes[r]; ok {
		return mapped
	}
	return r
}

// ASCII folds s: currency glyphs become ISO codes, special letters are
// mapped, accents are decomposed and dropped.
func ASCII(s string) (string, error) {
	t := transform.Chain(runes.Map(foldRune), norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, currencyGlyphs.Replace(s))
	if err != nil {
		return "", fmt.Errorf("fold price text: %w", err)
	}
	return out, nil
}

// Normalize parses raw into a decimal. Outer whitespace and a leading or
// trailing unit token are removed and comma separators become dots. Inner
// spaces are only accepted as thousands grouping. Anything else that is not a
// plain number yields a VALIDATION_ERROR.
func Normalize(raw string) (decimal.Decimal, error) {
	folded, err := ASCII(raw)
	if err != nil {
		return decimal.Zero, invalid(raw, "price could not be transliterated")
	}

	s := strings.TrimSpace(strings.ToLower(folded))
	for _, token := range unitTokens {
		if trimmed, ok := strings.CutSuffix(s, token); ok {
			s = strings.TrimSpace(trimmed)
			break
		}
		if trimmed, ok := strings.CutPrefix(s, token); ok {
			s = strings.TrimSpace(trimmed)
			break
		}
	}
	s = strings.ReplaceAll(s, ",", ".")
	if groupedRe.MatchString(s) {
		s = strings.ReplaceAll(s, " ", "")
	}
	s = strings.TrimPrefix(s, "+")

	if !numberRe.MatchString(s) {
		return decimal.Zero, invalid(raw, "price is not a number")
	}
	s = strings.TrimSuffix(s, ".")

	value, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, invalid(raw, "price is not a number")
	}
	return value, nil
}

func invalid(raw, message string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(map[string]any{"price": raw})
}
