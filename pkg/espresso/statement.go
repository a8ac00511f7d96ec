package espresso

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// StatementKind is the class of a program line.
type StatementKind int

const (
	StmtInput StatementKind = iota + 1
	StmtAssignment
	StmtOutput
	StmtIf
	StmtGoto
)

func (k StatementKind) String() string {
	switch k {
	case StmtInput:
		return "INPUT"
	case StmtAssignment:
		return "ASSIGNMENT"
	case StmtOutput:
		return "OUTPUT"
	case StmtIf:
		return "IF"
	case StmtGoto:
		return "GOTO"
	}
	return "UNRECOGNIZED"
}

// Statement is a classified line. Target is the variable written by INPUT and
// ASSIGNMENT; Expr is the expression text for the other kinds.
type Statement struct {
	Kind   StatementKind
	Target rune
	Expr   string
}

var keywords = []string{"input", "print", "if", "goto"}

var assignmentPattern = regexp.MustCompile(`^([A-Za-z])\s*=([^=].*|)$`)

// Classify determines the statement kind of a depth-stripped line.
func Classify(line string) (Statement, error) {
	text := strings.TrimRight(line, " \t")

	if m := assignmentPattern.FindStringSubmatch(text); m != nil {
		target, _ := utf8.DecodeRuneInString(m[1])
		return Statement{Kind: StmtAssignment, Target: target, Expr: strings.TrimSpace(m[2])}, nil
	}

	word, rest := splitKeyword(text)
	switch word {
	case "input":
		if rest == "" {
			return Statement{}, syntaxError("input needs a variable name")
		}
		if utf8.RuneCountInString(rest) != 1 {
			return Statement{}, syntaxError("input takes one single-letter variable, got %q", rest)
		}
		target, _ := utf8.DecodeRuneInString(rest)
		return Statement{Kind: StmtInput, Target: target}, nil
	case "print":
		return keywordStatement(StmtOutput, word, rest)
	case "if":
		return keywordStatement(StmtIf, word, rest)
	case "goto":
		return keywordStatement(StmtGoto, word, rest)
	}

	return Statement{}, unrecognized(text, word)
}

func keywordStatement(kind StatementKind, word, rest string) (Statement, error) {
	if rest == "" {
		return Statement{}, syntaxError("%s needs an expression", word)
	}
	return Statement{Kind: kind, Expr: rest}, nil
}

func splitKeyword(text string) (string, string) {
	i := strings.IndexAny(text, " \t")
	if i < 0 {
		return text, ""
	}
	return text[:i], strings.TrimSpace(text[i+1:])
}

func unrecognized(text, word string) *ScriptError {
	if text == "" {
		return syntaxError("empty statement")
	}
	err := syntaxError("unrecognized statement %q", text)
	if kw := gluedKeyword(word); kw != "" {
		err.Message += ", did you mean " + kw + " " + strings.TrimSpace(text[len(kw):]) + "?"
		return err
	}
	if hint := closestKeyword(word); hint != "" {
		err.Message += ", did you mean " + hint + "?"
	}
	return err
}

// gluedKeyword returns the keyword word starts with when the operand follows
// it without a space, as in "print(2)".
func gluedKeyword(word string) string {
	for _, kw := range keywords {
		if len(word) <= len(kw) || !strings.HasPrefix(word, kw) {
			continue
		}
		next, _ := utf8.DecodeRuneInString(word[len(kw):])
		if !unicode.IsLetter(next) && !unicode.IsDigit(next) {
			return kw
		}
	}
	return ""
}

// closestKeyword suggests a keyword for a misspelled or mis-cased first word.
func closestKeyword(word string) string {
	if len(word) < 2 {
		return ""
	}
	ranks := fuzzy.RankFindFold(word, keywords)
	if len(ranks) == 0 {
		// The word may be longer than the keyword ("prnt" vs "print" is
		// matched above; "printx" is matched here).
		for _, kw := range keywords {
			if fuzzy.MatchFold(kw, word) {
				return kw
			}
		}
		return ""
	}
	best := ranks[0]
	for _, r := range ranks[1:] {
		if r.Distance < best.Distance {
			best = r
		}
	}
	return best.Target
}
