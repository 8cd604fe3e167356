package paperscraper

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pemistahl/lingua-go"
	"github.com/sajari/fuzzy"
)

// Predicate decides whether an extracted document belongs to a class.
type Predicate interface {
	Match(sentences, institutes []string, rec Record, isMain bool) bool
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(sentences, institutes []string, rec Record, isMain bool) bool

// Match implements Predicate.
func (f PredicateFunc) Match(sentences, institutes []string, rec Record, isMain bool) bool {
	return f(sentences, institutes, rec, isMain)
}

// AcceptAll accepts every document.
var AcceptAll Predicate = PredicateFunc(func([]string, []string, Record, bool) bool { return true })

// RejectAll accepts nothing.
var RejectAll Predicate = PredicateFunc(func([]string, []string, Record, bool) bool { return false })

// MainFileOnly accepts only the file holding \documentclass.
var MainFileOnly Predicate = PredicateFunc(func(_, _ []string, _ Record, isMain bool) bool { return isMain })

// KeywordMatch accepts a document when any of Fields contains any of
// Keywords, ignoring case. Fields are "sentences", "institutes" or a record
// field name; an empty Fields searches institutes.
//
// With MaxEdits > 0 a keyword also matches any run of as many words that is
// within MaxEdits byte edits of it, so "institute" finds "insitute".
type KeywordMatch struct {
	Fields   []string
	Keywords []string
	MaxEdits int
}

// Match implements Predicate.
func (k KeywordMatch) Match(sentences, institutes []string, rec Record, _ bool) bool {
	fields := k.Fields
	if len(fields) == 0 {
		fields = []string{"institutes"}
	}
	for _, field := range fields {
		var values []string
		switch field {
		case "sentences":
			values = sentences
		case "institutes":
			values = institutes
		default:
			values = []string{rec.Field(field)}
		}
		for _, v := range values {
			v = strings.ToLower(v)
			for _, kw := range k.Keywords {
				if kw == "" {
					continue
				}
				kw = strings.ToLower(kw)
				if strings.Contains(v, kw) || k.near(v, kw) {
					return true
				}
			}
		}
	}
	return false
}

// near reports whether some window of words in text is within MaxEdits of kw.
func (k KeywordMatch) near(text, kw string) bool {
	if k.MaxEdits <= 0 {
		return false
	}
	words := strings.Fields(text)
	n := len(strings.Fields(kw))
	for i := 0; i+n <= len(words); i++ {
		window := strings.Join(words[i:i+n], " ")
		if fuzzy.Levenshtein(&window, &kw) <= k.MaxEdits {
			return true
		}
	}
	return false
}

// LanguageDetector is the part of lingua.LanguageDetector LanguageMatch uses.
type LanguageDetector interface {
	DetectLanguageOf(text string) (lingua.Language, bool)
}

// LanguageMatch accepts a document when at least MinShare of its sentences
// are detected as one of Languages. Documents without sentences are rejected.
type LanguageMatch struct {
	Languages []lingua.Language
	MinShare  float64
	Detector  LanguageDetector
}

// NewLanguageMatch builds a LanguageMatch for ISO 639-1 codes such as "en".
// The detector distinguishes the wanted languages from English and each other.
func NewLanguageMatch(codes []string, minShare float64) (*LanguageMatch, error) {
	if len(codes) == 0 {
		return nil, fmt.Errorf("language match: no languages")
	}
	var langs []lingua.Language
	for _, code := range codes {
		lang := lingua.GetLanguageFromIsoCode639_1(lingua.GetIsoCode639_1FromValue(strings.ToUpper(code)))
		if lang == lingua.Unknown {
			return nil, fmt.Errorf("language match: unknown language %q", code)
		}
		langs = append(langs, lang)
	}

	candidates := append([]lingua.Language{}, langs...)
	if !slices.Contains(candidates, lingua.English) {
		candidates = append(candidates, lingua.English)
	}
	var builder lingua.LanguageDetectorBuilder
	if len(candidates) < 2 {
		builder = lingua.NewLanguageDetectorBuilder().FromAllLanguages()
	} else {
		builder = lingua.NewLanguageDetectorBuilder().FromLanguages(candidates...)
	}
	if minShare <= 0 {
		minShare = 0.5
	}
	return &LanguageMatch{
		Languages: langs,
		MinShare:  minShare,
		Detector:  builder.Build(),
	}, nil
}

// Match implements Predicate.
func (l *LanguageMatch) Match(sentences, _ []string, _ Record, _ bool) bool {
	if len(sentences) == 0 {
		return false
	}
	hits := 0
	for _, s := range sentences {
		if lang, ok := l.Detector.DetectLanguageOf(s); ok && slices.Contains(l.Languages, lang) {
			hits++
		}
	}
	return float64(hits)/float64(len(sentences)) >= l.MinShare
}

// PredicateConfig describes a predicate in the config file.
type PredicateConfig struct {
	// Type is one of all, none, main, keyword, language
	Type     string   `yaml:"type"`
	Fields   []string `yaml:"fields,omitempty"`
	Keywords []string `yaml:"keywords,omitempty"`
	// MaxEdits enables typo-tolerant keyword matching
	MaxEdits int `yaml:"max_edits,omitempty"`
	// Languages are ISO 639-1 codes for the language type
	Languages []string `yaml:"languages,omitempty"`
	MinShare  float64  `yaml:"min_share,omitempty"`
}

// Build returns the predicate described by c.
func (c PredicateConfig) Build() (Predicate, error) {
	switch strings.ToLower(c.Type) {
	case "", "all":
		return AcceptAll, nil
	case "none":
		return RejectAll, nil
	case "main":
		return MainFileOnly, nil
	case "keyword":
		if len(c.Keywords) == 0 {
			return nil, fmt.Errorf("keyword predicate: no keywords")
		}
		return KeywordMatch{Fields: c.Fields, Keywords: c.Keywords, MaxEdits: c.MaxEdits}, nil
	case "language":
		return NewLanguageMatch(c.Languages, c.MinShare)
	}
	return nil, fmt.Errorf("unknown predicate type %q", c.Type)
}
