package revert

import (
	"regexp"
	"strings"
)

// Pattern is one entry of the revert-tool pattern library.
//
// Signature entries are anchored at the start of the summary and identify a
// revert tool. Non-signature entries only clean up what tools leave behind
// (version tags, "(talk)" link residue).
//
// A Fallback entry is consulted only when no non-fallback signature matches
// the text, so a loose catch-all never eats into a summary that a precise
// signature already recognizes.
type Pattern struct {
	ID        string
	Expr      *regexp.Regexp
	Signature bool
	Fallback  bool
}

// Library is an ordered, read-only set of patterns.
type Library []Pattern

var defaultPatterns = []Pattern{
	{
		// MediaWiki rollback and Twinkle rollback:
		// "Reverted 2 edits by X (talk) to last revision by Y: reason"
		ID:        "rollback",
		Expr:      regexp.MustCompile(`^Reverted (?:\d+ )?edits? by .+? \(talk\)(?: to last (?:revision|version) by .+?(?: \(talk\))?)?(?::\s*|\s*$)`),
		Signature: true,
	},
	{
		ID:        "rollback-agf",
		Expr:      regexp.MustCompile(`^Reverted good faith edits? by .+? \(talk\)(?::\s*|\s*$)`),
		Signature: true,
	},
	{
		// "Undid revision 12345 by X (talk) reason"
		ID:        "undo",
		Expr:      regexp.MustCompile(`^Undid revision \d+ by .+? \(talk\)\s*:?\s*`),
		Signature: true,
	},
	{
		ID:        "twinkle-restore",
		Expr:      regexp.MustCompile(`^Restored revision \d+ by .+?(?: \(talk\))?(?::\s*|\s*$)`),
		Signature: true,
	},
	{
		ID:        "revert-to-revision",
		Expr:      regexp.MustCompile(`^Revert(?:ed)? to revision \d+ by .+?(?: \(talk\))?(?::\s*|\s*$)`),
		Signature: true,
	},
	{
		// RedWarn and Ultraviolet:
		// "Reverting edit(s) by X (talk) to rev. 12345 by Y: reason (RW 16.1)"
		ID:        "redwarn",
		Expr:      regexp.MustCompile(`^(?:Reverting|Rollback) edit\(s\) by .+? \(talk\)(?: to rev\. \d+ by .+?(?: \(talk\))?)?(?::\s*|\s*$)`),
		Signature: true,
	},
	{
		ID:        "generic-revert",
		Expr:      regexp.MustCompile(`^Revert(?:ed|ing)?\b.*? \(talk\)(?::\s*|\s*$)`),
		Signature: true,
		Fallback:  true,
	},
	{
		ID:   "twinkle-tag",
		Expr: regexp.MustCompile(`\s*(?:\(TW\)|using TW)\s*$`),
	},
	{
		ID:   "redwarn-tag",
		Expr: regexp.MustCompile(`\s*\((?:RW|UV) [\w.\-]+\)\s*$`),
	},
	{
		ID:   "talk-residue",
		Expr: regexp.MustCompile(`\s*\(talk\)`),
	},
}

// DefaultLibrary returns the built-in pattern set.
func DefaultLibrary() Library {
	return append(Library(nil), defaultPatterns...)
}

// MatchPrefix reports whether text starts with a known revert-tool signature.
func (l Library) MatchPrefix(text string) bool {
	_, ok := l.Match(text)
	return ok
}

// Match returns the id of the signature that recognizes text.
func (l Library) Match(text string) (string, bool) {
	fallback := ""
	for _, p := range l {
		if !p.Signature || p.Expr == nil {
			continue
		}
		if !p.Expr.MatchString(text) {
			continue
		}
		if !p.Fallback {
			return p.ID, true
		}
		if fallback == "" {
			fallback = p.ID
		}
	}
	return fallback, fallback != ""
}

// StripAll removes every tool signature and cleanup artifact from text and
// returns the trimmed remainder. Passes repeat until nothing changes, so
// StripAll(StripAll(s)) == StripAll(s).
func (l Library) StripAll(text string) string {
	s := collapseSpace(text)
	for {
		next := l.stripPass(s)
		if next == s {
			return s
		}
		s = next
	}
}

func (l Library) stripPass(s string) string {
	primary := l.matchesPrimary(s)
	for _, p := range l {
		if p.Expr == nil || (p.Fallback && primary) {
			continue
		}
		s = p.Expr.ReplaceAllString(s, "")
	}
	return collapseSpace(s)
}

func (l Library) matchesPrimary(s string) bool {
	for _, p := range l {
		if p.Signature && !p.Fallback && p.Expr != nil && p.Expr.MatchString(s) {
			return true
		}
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
