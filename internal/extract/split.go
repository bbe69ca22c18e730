package extract

import (
	"regexp"
	"strings"
)

// ParsedTurn is an assistant reply decomposed for display: the prose before
// the first structured payload, the classified payloads themselves, and any
// trailing prose after the last one.
type ParsedTurn struct {
	BeforeText string     `json:"beforeText,omitempty"`
	Fragments  []Fragment `json:"fragments,omitempty"`
	AfterText  string     `json:"afterText,omitempty"`
}

// ParseTurn splits raw assistant text around its embedded JSON payloads.
// It is a pure function of the text: parsing the same reply twice yields the
// same result, so stored turns can be re-rendered at any time.
//
// When a payload carries its own "conversation" field, that prose wins over
// whatever literal text surrounded the payload: the service tends to repeat
// itself in both places, and the embedded copy is the authoritative one.
func ParseTurn(text string) ParsedTurn {
	candidates := ScanCandidates(text)
	if len(candidates) == 0 {
		return ParsedTurn{BeforeText: strings.TrimSpace(text)}
	}

	var fragments []Fragment
	first, last := len(text), 0
	for _, c := range candidates {
		// Malformed candidates are dropped but their spans are still cut
		// out of the prose, so the user never sees half-parsed JSON noise.
		if c.Span.Start < first {
			first = c.Span.Start
		}
		if c.Span.End > last {
			last = c.Span.End
		}
		fragments = append(fragments, parseCandidate(c)...)
	}
	if len(fragments) == 0 {
		// Candidates existed but none parsed: show the reply untouched.
		return ParsedTurn{BeforeText: strings.TrimSpace(text)}
	}

	before := cleanResidue(text[:first])
	after := cleanResidue(text[last:])

	// Embedded conversation prose replaces the literal leading text.
	for _, f := range fragments {
		if f.Conversation != "" {
			before = strings.TrimSpace(f.Conversation)
			break
		}
	}

	return ParsedTurn{
		BeforeText: before,
		Fragments:  fragments,
		AfterText:  after,
	}
}

var (
	bracketResidueRe = regexp.MustCompile(`\[\s*(?:,\s*)*\]`)
	danglingCommaRe  = regexp.MustCompile(`(?m)^\s*,\s*$`)
	blankRunRe       = regexp.MustCompile(`\n{3,}`)
)

// cleanResidue removes the syntactic debris left behind once payloads are cut
// out of the prose: emptied array brackets, dangling commas, and runs of blank
// lines where a fragment used to be.
func cleanResidue(s string) string {
	s = bracketResidueRe.ReplaceAllString(s, "")
	s = danglingCommaRe.ReplaceAllString(s, "")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
