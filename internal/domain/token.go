package domain

import (
	"sort"
	"strings"
)

// TokenKind tags a parsed demand token. Classification is longest-prefix:
// "AN Entrou" and "AN Saiu" are checked before the bare "AN" family so the
// exit marker is never mistaken for an open-ended token.
type TokenKind int

const (
	KindPlain TokenKind = iota
	KindConvivencia               // "C" or "C (HH:mm-HH:mm)"
	KindOpenEnded                 // "AN"
	KindOpenEndedEntry            // "AN Entrou"
	KindOpenEndedExit             // "AN Saiu"
	KindReferral                  // "AI" / "REA"
)

// Token is one parsed demand token.
type Token struct {
	Raw  string // trimmed original text
	Code string // filter key: leading word, convivência collapsed to "C"
	Kind TokenKind
	// Convivência interval, when the token carries one ("C (10:00-12:30)").
	Start string
	End   string
}

// DemandCodes lists every demand code the desk registers.
var DemandCodes = []string{
	"A", "R", "M", "AN", "AN Entrou", "AN Saiu", "C",
	"RM", "Grupos/Eventos", "Outros",
	"AI", "REA",
}

// ParseDemands splits a comma-separated demand set into classified tokens.
// Empty segments are dropped.
func ParseDemands(text string) []Token {
	var out []Token
	for _, part := range strings.Split(text, ",") {
		raw := strings.TrimSpace(part)
		if raw == "" {
			continue
		}
		out = append(out, classify(raw))
	}
	return out
}

func classify(raw string) Token {
	switch {
	case strings.HasPrefix(raw, "AN Entrou"):
		return Token{Raw: raw, Code: "AN Entrou", Kind: KindOpenEndedEntry}
	case strings.HasPrefix(raw, "AN Saiu"):
		return Token{Raw: raw, Code: "AN Saiu", Kind: KindOpenEndedExit}
	case strings.HasPrefix(raw, "AN"):
		return Token{Raw: raw, Code: firstWord(raw), Kind: KindOpenEnded}
	case strings.HasPrefix(raw, "AI"), strings.HasPrefix(raw, "REA"):
		return Token{Raw: raw, Code: firstWord(raw), Kind: KindReferral}
	case strings.HasPrefix(raw, "C"):
		tok := Token{Raw: raw, Code: "C", Kind: KindConvivencia}
		tok.Start, tok.End = convivenciaInterval(raw)
		return tok
	default:
		return Token{Raw: raw, Code: firstWord(raw), Kind: KindPlain}
	}
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}

// convivenciaInterval extracts start/end from "C (HH:mm-HH:mm)".
func convivenciaInterval(raw string) (string, string) {
	i := strings.IndexByte(raw, '(')
	j := strings.IndexByte(raw, ')')
	if i < 0 || j < i {
		return "", ""
	}
	start, end, ok := strings.Cut(raw[i+1:j], "-")
	if !ok {
		return "", ""
	}
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if !ValidClock(start) || !ValidClock(end) {
		return "", ""
	}
	return start, end
}

// JoinTokens renders tokens back into the stored comma-separated form.
func JoinTokens(tokens []Token) string {
	raws := make([]string, len(tokens))
	for i, t := range tokens {
		raws[i] = t.Raw
	}
	return strings.Join(raws, ", ")
}

// ReferralTokens returns the raw text of every AI/REA token in the set.
func ReferralTokens(text string) []string {
	var out []string
	for _, t := range ParseDemands(text) {
		if t.Kind == KindReferral {
			out = append(out, t.Raw)
		}
	}
	return out
}

// MatchesCode implements the demand filter semantics: "C" and "AN" match
// their whole prefix families, every other code requires an exact token.
func MatchesCode(text, code string) bool {
	for _, t := range ParseDemands(text) {
		switch code {
		case "C":
			if strings.HasPrefix(t.Raw, "C") {
				return true
			}
		case "AN":
			if strings.HasPrefix(t.Raw, "AN") {
				return true
			}
		}
		if t.Raw == code {
			return true
		}
	}
	return false
}

// CountsForCode reports whether a token contributes to the metric bucket of
// code. "AN Saiu" tokens never count; the "AN" bucket covers the open-ended
// family ("AN" and "AN Entrou"); all other buckets match on the token code.
func (t Token) CountsForCode(code string) bool {
	if t.Kind == KindOpenEndedExit {
		return false
	}
	switch code {
	case "C":
		return t.Kind == KindConvivencia
	case "AN":
		return t.Kind == KindOpenEnded || t.Kind == KindOpenEndedEntry
	default:
		return t.Code == code
	}
}

// HasOpenEnded reports whether the demand set contains any AN-family token,
// which makes the record a rollover candidate.
func HasOpenEnded(text string) bool {
	for _, t := range ParseDemands(text) {
		switch t.Kind {
		case KindOpenEnded, KindOpenEndedEntry, KindOpenEndedExit:
			return true
		}
	}
	return false
}

// NormalizeForRollover rewrites a demand set for the next-day copy:
// "AN Entrou" and bare "AN" tokens become plain "AN", the "AN Saiu" exit
// marker is preserved as-is, everything else is untouched.
func NormalizeForRollover(text string) string {
	tokens := ParseDemands(text)
	out := make([]string, len(tokens))
	for i, t := range tokens {
		switch t.Kind {
		case KindOpenEndedEntry, KindOpenEnded:
			out[i] = "AN"
		default:
			out[i] = t.Raw
		}
	}
	return strings.Join(out, ", ")
}

// MergeDemandSets unions two comma-separated demand sets into a sorted,
// deduplicated set (the merge rule applied by the workbook importer).
func MergeDemandSets(current, incoming string) string {
	seen := map[string]struct{}{}
	for _, part := range append(strings.Split(current, ","), strings.Split(incoming, ",")...) {
		tok := strings.TrimSpace(part)
		if tok == "" {
			continue
		}
		seen[tok] = struct{}{}
	}
	merged := make([]string, 0, len(seen))
	for tok := range seen {
		merged = append(merged, tok)
	}
	sort.Strings(merged)
	return strings.Join(merged, ", ")
}

// FilterKey maps a token to the key shown in the demand filter list:
// convivência collapses to "C", entry/exit markers stay distinct, every
// other token is identified by its leading word.
func (t Token) FilterKey() string { return t.Code }

// Selection is the outcome of resolving a raw checkbox selection.
type Selection struct {
	Tokens    []string
	Conflicts []string
}

// ResolveSelection applies the desk's exclusivity rules to a raw selection
// before it reaches the repository:
//   - AI/REA cannot be combined with other demands; when mixed, the
//     non-referral demands win and the referral tokens are dropped.
//   - R and M together (or either combined with RM) collapse to a single RM.
func ResolveSelection(selected []string) Selection {
	var sel Selection
	referral := map[string]bool{"AI": true, "REA": true}

	hasReferral, hasOther := false, false
	for _, s := range selected {
		if referral[s] {
			hasReferral = true
		} else {
			hasOther = true
		}
	}

	tokens := make([]string, 0, len(selected))
	if hasReferral && hasOther {
		sel.Conflicts = append(sel.Conflicts, "AI/REA cannot be combined with other demands")
		for _, s := range selected {
			if !referral[s] {
				tokens = append(tokens, s)
			}
		}
	} else {
		tokens = append(tokens, selected...)
	}

	rm := 0
	for _, s := range tokens {
		if s == "R" || s == "M" || s == "RM" {
			rm++
		}
	}
	if rm >= 2 {
		sel.Conflicts = append(sel.Conflicts, "use RM instead of combining R and M")
		collapsed := tokens[:0]
		added := false
		for _, s := range tokens {
			switch s {
			case "R", "M", "RM":
				if !added {
					collapsed = append(collapsed, "RM")
					added = true
				}
			default:
				collapsed = append(collapsed, s)
			}
		}
		tokens = collapsed
	}

	sel.Tokens = tokens
	return sel
}
