package revert

import (
	"errors"
	"strings"
)

var (
	// ErrMalformedEvent marks an event with missing or unexpected fields.
	// The driver skips such events and keeps going.
	ErrMalformedEvent = errors.New("malformed change event")

	// ErrNormalization is returned together with the raw text when markup
	// could not be parsed. Callers treat the raw text as already plain.
	ErrNormalization = errors.New("summary normalization failed")
)

// EventType is the recent-changes event kind. Only edits are eligible.
type EventType string

const (
	EventEdit  EventType = "edit"
	EventOther EventType = "other"
)

// ParseEventType maps a feed "type" value onto EventType.
func ParseEventType(s string) EventType {
	if strings.EqualFold(strings.TrimSpace(s), string(EventEdit)) {
		return EventEdit
	}
	return EventOther
}

// ChangeEvent is one record from the recent-changes feed.
//
// Comment is the wikitext summary as typed (or generated by a tool).
// ParsedComment is the wiki's HTML rendering of the same summary; it is
// optional and preferred as normalizer input when present.
type ChangeEvent struct {
	Wiki          string
	Type          EventType
	Title         string
	Editor        string
	Comment       string
	ParsedComment string
	RevisionID    int64
	Namespace     int
	Bot           bool
}

// Validate reports ErrMalformedEvent for edits that cannot be classified.
func (e ChangeEvent) Validate() error {
	if strings.TrimSpace(e.Wiki) == "" {
		return errors.Join(ErrMalformedEvent, errors.New("wiki is empty"))
	}
	if e.Type != EventEdit {
		return nil
	}
	if strings.TrimSpace(e.Title) == "" {
		return errors.Join(ErrMalformedEvent, errors.New("title is empty"))
	}
	if strings.TrimSpace(e.Editor) == "" {
		return errors.Join(ErrMalformedEvent, errors.New("editor is empty"))
	}
	if e.RevisionID <= 0 {
		return errors.Join(ErrMalformedEvent, errors.New("revision id missing"))
	}
	return nil
}

// Membership is the read side of the monitored-page set.
type Membership interface {
	Contains(title string) bool
}

// Result is the classifier outcome. The zero value is "not qualifying".
type Result struct {
	Qualifying bool

	Editor     string
	Title      string
	RevisionID int64
	// Reason is the human reason left after tool boilerplate is stripped.
	// It may be empty.
	Reason string
}

// NotQualifying is returned for every event that must not be reported.
var NotQualifying = Result{}

// Message is a rendered notification, ready for the publisher.
type Message struct {
	Text       string
	Link       string
	RevisionID int64
	// Length is the counted length of Text: its rune count, or with a fixed
	// link width the rune count with the link counted at that width.
	Length int
}
