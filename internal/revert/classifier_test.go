package revert

import (
	"errors"
	"testing"
)

type pageList map[string]bool

func (p pageList) Contains(title string) bool { return p[title] }

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewClassifier(ClassifierConfig{Wiki: "enwiki"}, nil)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	return c
}

func editEvent(title, editor, comment string) ChangeEvent {
	return ChangeEvent{
		Wiki:       "enwiki",
		Type:       EventEdit,
		Title:      title,
		Editor:     editor,
		Comment:    comment,
		RevisionID: 1001,
	}
}

func TestNewClassifierRequiresWiki(t *testing.T) {
	t.Parallel()
	if _, err := NewClassifier(ClassifierConfig{}, nil); err == nil {
		t.Fatal("expected error for empty wiki")
	}
	if _, err := NewClassifier(ClassifierConfig{Wiki: "enwiki", KeywordPattern: "("}, nil); err == nil {
		t.Fatal("expected error for bad keyword pattern")
	}
}

func TestClassifyQualifying(t *testing.T) {
	t.Parallel()
	c := newTestClassifier(t)
	pages := pageList{"Bar": true}

	r, v := c.Decide(editEvent("Bar", "Foo", "Reverted 1 edit by Foo (talk) to last version by Bar (talk): unsourced claim"), pages)
	if !r.Qualifying || v != VerdictQualifying {
		t.Fatalf("expected qualifying, got %+v (%s)", r, v)
	}
	if r.Reason != "unsourced claim" {
		t.Fatalf("reason = %q", r.Reason)
	}
	if r.Editor != "Foo" || r.Title != "Bar" || r.RevisionID != 1001 {
		t.Fatalf("unexpected payload %+v", r)
	}

	r = c.Classify(editEvent("Bar", "Foo", "Undid revision 12345 by Foo (talk)"), pages)
	if !r.Qualifying || r.Reason != "" {
		t.Fatalf("undo: expected qualifying with empty reason, got %+v", r)
	}
}

func TestClassifyPrefersParsedComment(t *testing.T) {
	t.Parallel()
	c := newTestClassifier(t)
	ev := editEvent("Bar", "Foo", "Reverted edits by [[Special:Contributions/X|X]] ([[User talk:X|talk]]): rm spam link")
	ev.ParsedComment = `Reverted edits by <a href="/wiki/Special:Contributions/X">X</a> (<a href="/wiki/User_talk:X">talk</a>): rm spam &amp; junk`
	r := c.Classify(ev, pageList{"Bar": true})
	if !r.Qualifying || r.Reason != "rm spam & junk" {
		t.Fatalf("got %+v", r)
	}

	ev.ParsedComment = ""
	r = c.Classify(ev, pageList{"Bar": true})
	if !r.Qualifying || r.Reason != "rm spam link" {
		t.Fatalf("wikitext fallback: got %+v", r)
	}
}

func TestClassifyRejects(t *testing.T) {
	t.Parallel()
	c := newTestClassifier(t)
	pages := pageList{"Bar": true}
	revert := "Reverted 1 edit by Foo (talk) to last version by Bar (talk): unsourced claim"

	other := editEvent("Bar", "Foo", revert)
	other.Type = EventOther
	wrongWiki := editEvent("Bar", "Foo", revert)
	wrongWiki.Wiki = "dewiki"

	tests := []struct {
		name string
		ev   ChangeEvent
		want Verdict
	}{
		{name: "not an edit", ev: other, want: VerdictWrongType},
		{name: "other wiki", ev: wrongWiki, want: VerdictWrongWiki},
		{name: "unmonitored page", ev: editEvent("Baz", "Foo", revert), want: VerdictUnmonitored},
		{name: "huggle marker", ev: editEvent("Bar", "Foo", "Reverted edits by X (talk) to last revision by Y ([[WP:HG|HG]])"), want: VerdictExempt},
		{name: "exempt bot", ev: editEvent("Bar", "ClueBot NG", revert), want: VerdictExempt},
		{name: "vandalism keyword", ev: editEvent("Bar", "Foo", "Reverted 1 edit by Foo (talk) to last version by Bar (talk): vandalism"), want: VerdictKeyword},
		{name: "rvv token", ev: editEvent("Bar", "Foo", "rvv"), want: VerdictKeyword},
		{name: "no signature", ev: editEvent("Bar", "Foo", "copyedit"), want: VerdictNoSignature},
		{name: "signature mid-sentence", ev: editEvent("Bar", "Foo", "fixed typo. Undid revision 1 by Foo (talk)"), want: VerdictNoSignature},
		// Keyword check runs on the raw comment, so a quoted reason trips it too.
		{name: "keyword inside reason", ev: editEvent("Bar", "Foo", "Undid revision 9 by Foo (talk): not vandalism, just rv of test"), want: VerdictKeyword},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, v := c.Decide(tt.ev, pages)
			if r.Qualifying {
				t.Fatalf("expected not qualifying, got %+v", r)
			}
			if v != tt.want {
				t.Fatalf("verdict = %s, want %s", v, tt.want)
			}
		})
	}
}

func TestClassifyNilMembership(t *testing.T) {
	t.Parallel()
	c := newTestClassifier(t)
	if r := c.Classify(editEvent("Bar", "Foo", "Undid revision 1 by Foo (talk)"), nil); r.Qualifying {
		t.Fatal("nil page set must not qualify")
	}
}

func TestClassifyCustomExemptions(t *testing.T) {
	t.Parallel()
	c, err := NewClassifier(ClassifierConfig{
		Wiki:          "enwiki",
		ExemptEditors: []string{"AntiSpamBot"},
		ExemptMarkers: []string{"[[WP:STiki|STiki]]"},
	}, nil)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	pages := pageList{"Bar": true}
	if r := c.Classify(editEvent("Bar", "AntiSpamBot", "Undid revision 1 by X (talk)"), pages); r.Qualifying {
		t.Fatal("custom exempt editor qualified")
	}
	if r := c.Classify(editEvent("Bar", "Foo", "Undid revision 1 by X (talk) using [[WP:STiki|STiki]]"), pages); r.Qualifying {
		t.Fatal("custom marker qualified")
	}
	if r := c.Classify(editEvent("Bar", "ClueBot NG", "Undid revision 1 by X (talk)"), pages); !r.Qualifying {
		t.Fatal("overridden default exemption should no longer apply")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	ev := editEvent("Bar", "Foo", "x")
	if err := ev.Validate(); err != nil {
		t.Fatalf("valid event: %v", err)
	}
	ev.Title = ""
	if err := ev.Validate(); !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("Validate() = %v, want ErrMalformedEvent", err)
	}
}

func TestClassifyKeepsLiteralLessThan(t *testing.T) {
	t.Parallel()
	c := newTestClassifier(t)
	pages := pageList{"Bar": true}

	raw := editEvent("Bar", "Foo", "Undid revision 5 by X (talk): per talk, x<y and 3<4 are fine")
	if r := c.Classify(raw, pages); !r.Qualifying || r.Reason != "per talk, x<y and 3<4 are fine" {
		t.Fatalf("raw comment: got %+v", r)
	}

	parsed := raw
	parsed.ParsedComment = `Undid revision 5 by <a href="/wiki/User:X">X</a> (<a href="/wiki/User_talk:X">talk</a>): per talk, x&lt;y and 3&lt;4 are fine`
	if r := c.Classify(parsed, pages); !r.Qualifying || r.Reason != "per talk, x<y and 3<4 are fine" {
		t.Fatalf("parsed comment: got %+v", r)
	}
}
