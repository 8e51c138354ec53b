package usecase

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mkravets/consultrag/internal/core/domain"
)

var legalCitationPattern = regexp.MustCompile(
	`(?i)\b(article|section|clause|paragraph)\s+\d+|\benforcement decree\b`)

var factualLeadPattern = regexp.MustCompile(
	`(?i)^(what|when|where|who|which|how much|how many)\b`)

// AnalyzeQuery derives retrieval-relevant attributes from the raw query text.
// Pure function: rules are applied in priority order and the result is
// computed once per request.
func AnalyzeQuery(text string, registry *domain.Registry) domain.QueryCharacteristics {
	trimmed := strings.TrimSpace(text)
	length := utf8.RuneCountInString(trimmed)
	words := strings.Fields(trimmed)
	wordCount := len(words)

	density := keywordDensity(trimmed, wordCount, registry)

	chars := domain.QueryCharacteristics{
		Length:            length,
		WordCount:         wordCount,
		HasLegalCitation:  legalCitationPattern.MatchString(trimmed),
		HasNumericContent: containsDigit(trimmed),
		KeywordDensity:    density,
	}
	chars.IsFactual = factualLeadPattern.MatchString(trimmed) && wordCount <= 8
	chars.IsComplex = length >= 50 || wordCount >= 10
	chars.IsVague = wordCount >= 3 && density < 0.1 && !chars.HasLegalCitation

	switch {
	case chars.HasLegalCitation:
		chars.Mode = domain.SearchModeExactMatchPlusVector
		chars.TopK = 5
	case length <= 20 && density >= 0.3:
		chars.Mode = domain.SearchModeLexicalHeavy
		chars.TopK = 3
	case length >= 50 || wordCount >= 10:
		chars.Mode = domain.SearchModeVectorHeavy
		chars.TopK = 7
	case length >= 15 && density < 0.1:
		chars.Mode = domain.SearchModeDiversity
		chars.TopK = 7
	default:
		chars.Mode = domain.SearchModeHybrid
		chars.TopK = 5
	}
	return chars
}

func keywordDensity(text string, wordCount int, registry *domain.Registry) float64 {
	if wordCount == 0 || registry == nil {
		return 0
	}
	hits := 0
	for _, matched := range registry.MatchKeywords(text) {
		hits += len(matched)
	}
	return float64(hits) / float64(wordCount)
}

func containsDigit(text string) bool {
	for _, r := range text {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
