package price

import (
	"testing"

	pkgerrors "github.com/angelmondragon/cartwatch/pkg/errors"
	"github.com/shopspring/decimal"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"12,50 zł", "12.50"},
		{"3.14", "3.14"},
		{"10,00 zł", "10"},
		{"  7 ZŁ ", "7"},
		{"99,99 PLN", "99.99"},
		{"1\u00a0299,00\u00a0zł", "1299"},
		{"1 299,00 zł", "1299"},
		{"0,5zl", "0.5"},
		{"PLN 12,00", "12"},
		{"12 345 678,90 zł", "12345678.90"},
		{",75", "0.75"},
		{"5,", "5"},
		{"+4", "4"},
		{"-2,10", "-2.1"},
	}
	for _, tc := range cases {
		got, err := Normalize(tc.raw)
		if err != nil {
			t.Fatalf("Normalize(%q) returned error: %v", tc.raw, err)
		}
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("Normalize(%q) = %s, want %s", tc.raw, got, tc.want)
		}
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	for _, raw := range []string{
		"", "   ", "zł", "1,234.50", "1.2.3", "abc", "12,50 €", "1e3", ".",
		"12 50", "1 2 3 zł", "5zl0", "1 29,00", "1  299", "12 zł 50",
	} {
		_, err := Normalize(raw)
		if err == nil {
			t.Fatalf("Normalize(%q) expected error", raw)
		}
		if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("Normalize(%q) expected validation error, got %v", raw, err)
		}
	}
}

func TestNormalizeErrorCarriesRawPrice(t *testing.T) {
	_, err := Normalize("twelve")
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected typed error, got %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok || details["price"] != "twelve" {
		t.Fatalf("unexpected details %#v", typed.Details())
	}
}

func TestNormalizeRejectsForeignCurrency(t *testing.T) {
	_, err := Normalize("12,50 €")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestASCII(t *testing.T) {
	cases := map[string]string{
		"zł":         "zl",
		"Łódź":       "Lodz",
		"żółć":       "zolc",
		"crème":      "creme",
		"a\u00a0b":   "a b",
		"12,50 €":    "12,50 EUR",
		"£3":         "GBP3",
		"plain text": "plain text",
	}
	for in, want := range cases {
		got, err := ASCII(in)
		if err != nil {
			t.Fatalf("ASCII(%q) error: %v", in, err)
		}
		if got != want {
			t.Fatalf("ASCII(%q) = %q, want %q", in, got, want)
		}
	}
}
