package paperscraper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"This is a sentence. Another one!", []string{"This is a sentence.", "Another one!"}},
		{"Really?! Yes.", []string{"Really?!", "Yes."}},
		{"Wait... what? Fine.", []string{"Wait... what?", "Fine."}},
		{"No terminal punctuation", []string{"No terminal punctuation"}},
		{"Full width。Second！", []string{"Full width。", "Second！"}},
		{"", nil},
		{"  .  ", []string{"."}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SplitSentences(tt.in), "input %q", tt.in)
	}
}

func TestSplitSentencesRoundTrip(t *testing.T) {
	inputs := []string{
		"This is a sentence. Another one!",
		"One. Two? Three! Four",
		"Ellipses... keep going. Done?!",
		CleanText(`\section{Intro} We show that $x$ holds. See \cite{a} for more!`),
	}
	for _, in := range inputs {
		assert.Equal(t, in, strings.Join(SplitSentences(in), " "), "input %q", in)
	}
}

func TestSplitSentencesJoinsWithOneSpace(t *testing.T) {
	assert.Equal(t, []string{"b?", "ax"}, SplitSentences("b?ax"))
	assert.Equal(t, "One. Two.", strings.Join(SplitSentences("One.   Two."), " "))
}
