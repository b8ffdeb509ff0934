package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	"revertbot/internal/revert"
)

// recentChange is the subset of the mediawiki.recentchange schema we read.
type recentChange struct {
	Wiki          string `json:"wiki"`
	Type          string `json:"type"`
	Title         string `json:"title"`
	User          string `json:"user"`
	Comment       string `json:"comment"`
	ParsedComment string `json:"parsedcomment"`
	Namespace     int    `json:"namespace"`
	Bot           bool   `json:"bot"`
	Revision      *struct {
		New int64 `json:"new"`
		Old int64 `json:"old"`
	} `json:"revision"`
}

// Decode turns one SSE data payload into a ChangeEvent. Payloads that are
// not JSON objects, or edits missing required fields, wrap ErrMalformedEvent.
func Decode(data []byte) (revert.ChangeEvent, error) {
	var rc recentChange
	if err := json.Unmarshal(data, &rc); err != nil {
		return revert.ChangeEvent{}, errors.Join(revert.ErrMalformedEvent, fmt.Errorf("decode: %w", err))
	}
	ev := revert.ChangeEvent{
		Wiki:          rc.Wiki,
		Type:          revert.ParseEventType(rc.Type),
		Title:         rc.Title,
		Editor:        rc.User,
		Comment:       rc.Comment,
		ParsedComment: rc.ParsedComment,
		Namespace:     rc.Namespace,
		Bot:           rc.Bot,
	}
	if rc.Revision != nil {
		ev.RevisionID = rc.Revision.New
	}
	if err := ev.Validate(); err != nil {
		return revert.ChangeEvent{}, err
	}
	return ev, nil
}
