package revert

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultKeywordPattern matches the short revert/vandalism tokens editors put
// in the summary of the vandalism edit itself.
const DefaultKeywordPattern = `(?i)\b(?:rvv|rv|vand|vandal|vandals|vandalism|vandalized|vandalised)\b`

var (
	// DefaultExemptEditors are automated anti-vandalism accounts whose reverts
	// are already actioned.
	DefaultExemptEditors = []string{"ClueBot NG"}
	// DefaultExemptMarkers are summary fragments left by tools whose reverts
	// are already actioned.
	DefaultExemptMarkers = []string{"([[WP:HG|HG]])"}
)

// ClassifierConfig configures a Classifier. Empty lists fall back to the defaults.
type ClassifierConfig struct {
	Wiki           string
	ExemptEditors  []string
	ExemptMarkers  []string
	KeywordPattern string
}

// Verdict names the step that decided a classification.
type Verdict string

const (
	VerdictQualifying   Verdict = "qualifying"
	VerdictWrongType    Verdict = "wrong_type"
	VerdictWrongWiki    Verdict = "wrong_wiki"
	VerdictUnmonitored  Verdict = "unmonitored"
	VerdictExempt       Verdict = "exempt"
	VerdictKeyword      Verdict = "keyword"
	VerdictNoSignature  Verdict = "no_signature"
	VerdictNormFallback Verdict = "normalize_fallback"
)

// Classifier decides whether a change event is an in-scope revert.
// It holds no per-event state and is safe for concurrent use.
type Classifier struct {
	wiki          string
	exemptEditors map[string]struct{}
	markers       []string
	keywords      *regexp.Regexp
	lib           Library
}

// NewClassifier builds a classifier over lib. A nil lib uses DefaultLibrary.
func NewClassifier(cfg ClassifierConfig, lib Library) (*Classifier, error) {
	wiki := strings.TrimSpace(cfg.Wiki)
	if wiki == "" {
		return nil, errors.New("classifier: target wiki is required")
	}
	if lib == nil {
		lib = DefaultLibrary()
	}

	editors := cfg.ExemptEditors
	if len(editors) == 0 {
		editors = DefaultExemptEditors
	}
	exempt := make(map[string]struct{}, len(editors))
	for _, e := range editors {
		if e = strings.TrimSpace(e); e != "" {
			exempt[e] = struct{}{}
		}
	}

	markers := make([]string, 0, len(cfg.ExemptMarkers))
	for _, m := range cfg.ExemptMarkers {
		if m = strings.TrimSpace(m); m != "" {
			markers = append(markers, m)
		}
	}
	if len(markers) == 0 {
		markers = append(markers, DefaultExemptMarkers...)
	}

	expr := strings.TrimSpace(cfg.KeywordPattern)
	if expr == "" {
		expr = DefaultKeywordPattern
	}
	kw, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("classifier: keyword pattern: %w", err)
	}

	return &Classifier{
		wiki:          wiki,
		exemptEditors: exempt,
		markers:       markers,
		keywords:      kw,
		lib:           lib,
	}, nil
}

// Wiki returns the target wiki id.
func (c *Classifier) Wiki() string { return c.wiki }

// Eligible runs the cheap pre-filter: event type and wiki id.
func (c *Classifier) Eligible(ev ChangeEvent) bool {
	return ev.Type == EventEdit && ev.Wiki == c.wiki
}

// Classify returns a qualifying result when ev is a reported revert.
func (c *Classifier) Classify(ev ChangeEvent, pages Membership) Result {
	r, _ := c.Decide(ev, pages)
	return r
}

// Decide is Classify plus the verdict of the deciding step.
func (c *Classifier) Decide(ev ChangeEvent, pages Membership) (Result, Verdict) {
	if ev.Type != EventEdit {
		return NotQualifying, VerdictWrongType
	}
	if ev.Wiki != c.wiki {
		return NotQualifying, VerdictWrongWiki
	}
	if pages == nil || !pages.Contains(ev.Title) {
		return NotQualifying, VerdictUnmonitored
	}
	if c.exempt(ev) {
		return NotQualifying, VerdictExempt
	}
	if c.keywords.MatchString(ev.Comment) {
		return NotQualifying, VerdictKeyword
	}

	verdict := VerdictQualifying
	var plain string
	if strings.TrimSpace(ev.ParsedComment) == "" {
		plain = NormalizeComment(ev.Comment)
	} else if p, err := NormalizeParsed(ev.ParsedComment); err == nil {
		plain = p
	} else {
		verdict = VerdictNormFallback
		plain = NormalizeComment(ev.Comment)
		if strings.TrimSpace(plain) == "" {
			plain = p
		}
	}
	plain = strings.TrimSpace(plain)
	if !c.lib.MatchPrefix(plain) {
		return NotQualifying, VerdictNoSignature
	}

	return Result{
		Qualifying: true,
		Editor:     ev.Editor,
		Title:      ev.Title,
		RevisionID: ev.RevisionID,
		Reason:     strings.TrimSpace(c.lib.StripAll(plain)),
	}, verdict
}

func (c *Classifier) exempt(ev ChangeEvent) bool {
	if _, ok := c.exemptEditors[strings.TrimSpace(ev.Editor)]; ok {
		return true
	}
	for _, m := range c.markers {
		if strings.Contains(ev.Comment, m) {
			return true
		}
	}
	return false
}
