package models

import (
	"strings"

	"golang.org/x/text/language"
)

// Canton is a two-letter Swiss canton code.
type Canton string

// Cantons is the fixed enumeration of accepted canton codes.
var Cantons = []Canton{
	"AG", "AI", "AR", "BE", "BL", "BS", "FR", "GE", "GL", "GR", "JU", "LU", "NE",
	"NW", "OW", "SG", "SH", "SO", "SZ", "TG", "TI", "UR", "VD", "VS", "ZG", "ZH",
}

var cantonSet = func() map[Canton]struct{} {
	m := make(map[Canton]struct{}, len(Cantons))
	for _, c := range Cantons {
		m[c] = struct{}{}
	}
	return m
}()

// ParseCanton validates s against the canton enumeration. Matching is exact:
// lowercase codes and anything that is not two letters are rejected.
func ParseCanton(s string) (Canton, error) {
	c := Canton(s)
	if _, ok := cantonSet[c]; !ok {
		return "", NewValidationError("canton", "%q is not a valid canton code", s)
	}
	return c, nil
}

// Valid reports whether c is in the enumeration.
func (c Canton) Valid() bool {
	_, ok := cantonSet[c]
	return ok
}

// Language is a decision language.
type Language string

const (
	LanguageGerman  Language = "de"
	LanguageFrench  Language = "fr"
	LanguageItalian Language = "it"
	LanguageRomansh Language = "rm"
	LanguageEnglish Language = "en"
)

// Languages lists the supported decision languages.
var Languages = []Language{LanguageGerman, LanguageFrench, LanguageItalian, LanguageRomansh, LanguageEnglish}

// Valid reports whether l is a supported language.
func (l Language) Valid() bool {
	switch l {
	case LanguageGerman, LanguageFrench, LanguageItalian, LanguageRomansh, LanguageEnglish:
		return true
	}
	return false
}

// ParseLanguage accepts a BCP 47 tag ("de", "de-CH", "FR") and reduces it to a
// supported base language.
func ParseLanguage(s string) (Language, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", NewValidationError("language", "is required")
	}
	tag, err := language.Parse(s)
	if err != nil {
		return "", NewValidationError("language", "%q is not a language tag", s)
	}
	base, _ := tag.Base()
	l := Language(base.String())
	if !l.Valid() {
		return "", NewValidationError("language", "unsupported language %q", s)
	}
	return l, nil
}
