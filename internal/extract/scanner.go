// Package extract turns free-form assistant replies into structured domain
// objects. The assistant service emits prose interleaved with zero or more
// JSON payloads: sometimes inside fenced code blocks, sometimes as bare
// braces, sometimes nested. The scanner locates candidates, the classifier
// types them, and the splitter reassembles the surrounding prose.
package extract

import "regexp"

// Span is a half-open byte range [Start, End) into the original text.
type Span struct {
	Start int
	End   int
}

// Candidate is a substring that looks like JSON, together with the span it
// occupies in the original text. The span covers the full matched region
// (including code fences) so the splitter can remove it from the prose.
type Candidate struct {
	Span Span
	Raw  string
}

var fencedJSONRe = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// ScanCandidates finds candidate JSON substrings in priority order: fenced
// ```json blocks first, then brace-matched bare objects and arrays as a
// fallback. Candidates are returned in document order; whether they actually
// parse is the classifier's problem.
func ScanCandidates(text string) []Candidate {
	if matches := fencedJSONRe.FindAllStringSubmatchIndex(text, -1); len(matches) > 0 {
		candidates := make([]Candidate, 0, len(matches))
		for _, m := range matches {
			candidates = append(candidates, Candidate{
				Span: Span{Start: m[0], End: m[1]},
				Raw:  text[m[2]:m[3]],
			})
		}
		return candidates
	}
	return scanBalanced(text)
}

// scanBalanced extracts each balanced top-level {...} object or [...] array
// by tracking nesting depth. Unlike a non-greedy regex it keeps nested
// objects (a limitation's date-range value, say) intact, and it is aware of
// string literals so braces inside quoted text do not confuse the count.
func scanBalanced(text string) []Candidate {
	var candidates []Candidate
	for i := 0; i < len(text); {
		c := text[i]
		if c != '{' && c != '[' {
			i++
			continue
		}
		end, ok := matchBracket(text, i)
		if !ok {
			i++
			continue
		}
		candidates = append(candidates, Candidate{
			Span: Span{Start: i, End: end},
			Raw:  text[i:end],
		})
		i = end
	}
	return candidates
}

// matchBracket returns the index just past the bracket that closes the one at
// start, or false if the text ends before the bracket is balanced.
func matchBracket(text string, start int) (int, bool) {
	depth := 0
	inString := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch c {
			case '\\':
				i++ // skip escaped character
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}
