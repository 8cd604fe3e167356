package paperscraper

import (
	"regexp"
	"strings"
)

var (
	ellipsisRe  = regexp.MustCompile(`\.{2,}`)
	sentenceEnd = regexp.MustCompile(`[?!.。！？．]+`)
)

// ellipsisMask stands in for each period of an ellipsis while splitting.
const ellipsisMask = "\uE000"

// SplitSentences splits cleaned text after runs of sentence-final punctuation
// (?, !, . and their full-width forms). Runs of two or more periods are not
// sentence ends. Each delimiter stays with the sentence it closes; fragments
// are trimmed and empty ones dropped, so joining the result with single
// spaces restores the input only where sentences were separated by exactly
// one space.
func SplitSentences(text string) []string {
	masked := ellipsisRe.ReplaceAllStringFunc(text, func(dots string) string {
		return strings.Repeat(ellipsisMask, len(dots))
	})

	var sentences []string
	add := func(s string) {
		s = strings.TrimSpace(strings.ReplaceAll(s, ellipsisMask, "."))
		if s != "" {
			sentences = append(sentences, s)
		}
	}

	prev := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(masked, -1) {
		add(masked[prev:loc[1]])
		prev = loc[1]
	}
	add(masked[prev:])
	return sentences
}
