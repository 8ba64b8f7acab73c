package bot

import "unicode"

// token is one whitespace-delimited word of a command line, together with
// its byte offsets into the original text. Offsets matter because the
// message body of a !tell is the raw tail of the line, not a re-join of
// tokens: internal runs of spaces in the message must survive.
type token struct {
	Text  string
	Start int
	End   int
}

// lexLine splits s on Unicode whitespace, keeping byte offsets.
func lexLine(s string) []token {
	var toks []token
	start := -1
	for i, r := range s {
		if unicode.IsSpace(r) {
			if start >= 0 {
				toks = append(toks, token{Text: s[start:i], Start: start, End: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		toks = append(toks, token{Text: s[start:], Start: start, End: len(s)})
	}
	return toks
}
