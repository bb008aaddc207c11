package shell

import (
	"errors"
	"strings"
)

// ErrUnterminatedQuote is returned for a line with an unbalanced quote.
var ErrUnterminatedQuote = errors.New("unterminated quote")

type tokenKind int

const (
	tokWord tokenKind = iota
	tokPipe
	tokRedirect
	tokAppend
)

type token struct {
	kind tokenKind
	text string
	// quoted is set when any part of the word came from a quoted span.
	quoted bool
}

// tokenize splits a command line into words and the operators `|`, `>` and
// `>>`. Quoted spans are part of the surrounding word with the quotes
// removed, and operators inside quotes are literal text.
func tokenize(line string) ([]token, error) {
	var (
		tokens []token
		cur    strings.Builder
		inWord bool
		quoted bool
		quote  rune
	)
	flush := func() {
		if inWord {
			tokens = append(tokens, token{kind: tokWord, text: cur.String(), quoted: quoted})
		}
		cur.Reset()
		inWord, quoted = false, false
	}

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if quote != 0 {
			if r == quote {
				quote = 0
				continue
			}
			cur.WriteRune(r)
			continue
		}
		switch {
		case r == '"' || r == '\'':
			quote = r
			inWord, quoted = true, true
		case r == ' ' || r == '\t' || r == '\n':
			flush()
		case r == '|':
			flush()
			tokens = append(tokens, token{kind: tokPipe, text: "|"})
		case r == '>':
			flush()
			if i+1 < len(runes) && runes[i+1] == '>' {
				tokens = append(tokens, token{kind: tokAppend, text: ">>"})
				i++
			} else {
				tokens = append(tokens, token{kind: tokRedirect, text: ">"})
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, ErrUnterminatedQuote
	}
	flush()
	return tokens, nil
}

// splitPipeline groups tokens into pipeline stages.
func splitPipeline(tokens []token) [][]token {
	var stages [][]token
	var cur []token
	for _, t := range tokens {
		if t.kind == tokPipe {
			stages = append(stages, cur)
			cur = nil
			continue
		}
		cur = append(cur, t)
	}
	return append(stages, cur)
}
