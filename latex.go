package paperscraper

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxParagraphLength is the length (in characters) above which a paragraph is
// treated as non-prose and dropped during cleaning.
const MaxParagraphLength = 2000

// Document is the text extracted from one source file.
type Document struct {
	// Path of the source file
	Path string

	// Sentences in file order
	Sentences []string

	// Institutes found in the front matter of a main file, lower-cased
	Institutes []string

	// IsMain is set for the file holding \documentclass
	IsMain bool
}

// cleanRules are applied in order until none matches.
var cleanRules = []*regexp.Regexp{
	regexp.MustCompile(`~?\\.*?\{.*?\}[\s$]+`), // \cmd{arg}
	regexp.MustCompile(`~?\\.*?\[.*?\][\s$]+`), // \cmd[opt]
	regexp.MustCompile(`~?\\.*?[\s$]+`),        // \cmd
	regexp.MustCompile(`\$\$.*?\$\$`),
	regexp.MustCompile(`\$.*?\$`),
	regexp.MustCompile(`\[.*?\]`),
	regexp.MustCompile(`\{.*?\}`),
	regexp.MustCompile(`(?m)%.*$`),
}

var (
	beginRe = regexp.MustCompile(`\\begin\s*\{([^}]*)\}`)
	endRe   = regexp.MustCompile(`\\end\s*\{([^}]*)\}`)
)

// proseEnvironments hold running text and do not open a skipped block.
var proseEnvironments = map[string]bool{
	"document": true,
	"abstract": true,
}

// CleanText strips LaTeX markup from a paragraph. Commands, math, bracket and
// brace groups and comments are removed by a fixed-point loop over
// cleanRules, each removal restarting the search from the start of the text.
// Paragraphs longer than MaxParagraphLength yield "".
func CleanText(text string) string {
	text = normalizeSpace(text) + "\n"
	for {
		removed := false
		for _, re := range cleanRules {
			for {
				if utf8.RuneCountInString(text) > MaxParagraphLength {
					return ""
				}
				loc := re.FindStringIndex(text)
				if loc == nil {
					break
				}
				text = text[:loc[0]] + text[loc[1]:]
				removed = true
			}
		}
		if !removed {
			break
		}
	}
	return normalizeSpace(text)
}

var instituteTitles = []string{"University", "Institute", "College"}

var institutePatterns = func() []*regexp.Regexp {
	var res []*regexp.Regexp
	for _, title := range instituteTitles {
		res = append(res,
			regexp.MustCompile(`\{([^{,]*?`+title+`.*?)[,}]`), // {...title..., or {...title...}
			regexp.MustCompile(`,([^{,]*?`+title+`.*?)[,}]`),  // ,...title..., or ,...title...}
		)
	}
	return res
}()

// FindInstitutes returns the affiliation-like spans of a raw LaTeX paragraph:
// short brace or comma delimited spans naming a University, Institute or
// College. Results are cleaned and lower-cased, in match order.
func FindInstitutes(text string) []string {
	text = normalizeSpace(text)
	var institutes []string
	for _, re := range institutePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			institutes = append(institutes, strings.ToLower(CleanText(m[1])))
		}
	}
	return institutes
}

// ExtractFile extracts the document at path. PDF files go through ExtractPDF,
// everything else is read as LaTeX.
func ExtractFile(path string) (*Document, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return ExtractPDF(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := ExtractLaTeX(f)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}
	doc.Path = path
	return doc, nil
}

// ExtractLaTeX reads LaTeX source and returns its prose as sentences.
//
// Lines inside \begin{...}/\end{...} blocks (figures, tables, equations and
// the like) are skipped, as are the lines opening and closing them. The
// remaining lines are grouped into paragraphs at blank lines, cleaned with
// CleanText and split with SplitSentences. Once a paragraph containing
// \documentclass is seen the file is the main file and the raw paragraphs
// from there on are searched for institutes.
func ExtractLaTeX(r io.Reader) (*Document, error) {
	doc := &Document{}
	var (
		buf   strings.Builder
		depth int
	)

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		raw := buf.String()
		buf.Reset()

		doc.IsMain = doc.IsMain || strings.Contains(raw, `\documentclass`)
		if doc.IsMain {
			doc.Institutes = append(doc.Institutes, FindInstitutes(raw)...)
		}
		if cleaned := CleanText(raw); cleaned != "" {
			doc.Sentences = append(doc.Sentences, SplitSentences(cleaned)...)
		}
	}

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			opens, closes := blockDelta(line)
			switch {
			case opens > 0 || closes > 0:
				depth += opens - closes
				if depth < 0 {
					depth = 0
				}
			case depth > 0:
			case strings.TrimSpace(line) == "":
				flush()
			default:
				buf.WriteString(line)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	flush()
	return doc, nil
}

// blockDelta counts the nesting \begin and \end markers on a line.
func blockDelta(line string) (opens, closes int) {
	if !strings.Contains(line, `\begin`) && !strings.Contains(line, `\end`) {
		return 0, 0
	}
	for _, m := range beginRe.FindAllStringSubmatch(line, -1) {
		if !proseEnvironments[strings.TrimSpace(m[1])] {
			opens++
		}
	}
	for _, m := range endRe.FindAllStringSubmatch(line, -1) {
		if !proseEnvironments[strings.TrimSpace(m[1])] {
			closes++
		}
	}
	return opens, closes
}
