package revert

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ShortenedLinkLength is what feeds that wrap links (t.co) count every link as.
const ShortenedLinkLength = 23

// widestRevision is the longest revision id a link can carry.
const widestRevision = "9223372036854775807"

const (
	DefaultLimit        = 280
	DefaultLinkTemplate = "https://en.wikipedia.org/w/index.php?diff={revision}"

	TemplateReason   = `{editor} reverted an edit on {title}: "{reason}" {link}`
	TemplateNoReason = `{editor} reverted an edit on {title} with no given reason. {link}`
)

var (
	ErrNotQualifying = errors.New("format: result is not qualifying")
	ErrOverBudget    = errors.New("format: message does not fit the length limit")
)

// FormatConfig configures a Formatter. Zero fields use the defaults.
//
// LinkLength, when positive, is the fixed width every link counts for against
// Limit, for feeds that shorten links (see ShortenedLinkLength). Zero counts
// the link at its real rendered width, so Text itself stays within Limit.
type FormatConfig struct {
	Limit        int
	LinkLength   int
	LinkTemplate string
}

// Formatter renders qualifying results into bounded-length messages.
type Formatter struct {
	limit        int
	linkLength   int
	linkTemplate string
	filler       string
}

// NewFormatter validates cfg and checks that both templates fit the limit.
func NewFormatter(cfg FormatConfig) (*Formatter, error) {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.LinkLength < 0 {
		cfg.LinkLength = 0
	}
	if strings.TrimSpace(cfg.LinkTemplate) == "" {
		cfg.LinkTemplate = DefaultLinkTemplate
	}
	if !strings.Contains(cfg.LinkTemplate, "{revision}") {
		return nil, fmt.Errorf("format: link template %q has no {revision} placeholder", cfg.LinkTemplate)
	}
	f := &Formatter{
		limit:        cfg.Limit,
		linkLength:   cfg.LinkLength,
		linkTemplate: strings.TrimSpace(cfg.LinkTemplate),
	}
	if cfg.LinkLength > 0 {
		f.filler = strings.Repeat("x", cfg.LinkLength)
	}
	// The bare skeletons (no editor/title) plus one reason rune must fit.
	widest := f.link(widestRevision)
	if f.weigh(TemplateReason, "", "", "x", widest) > f.limit || f.weigh(TemplateNoReason, "", "", "", widest) > f.limit {
		return nil, fmt.Errorf("format: limit %d is too small for the templates", f.limit)
	}
	return f, nil
}

// Limit returns the length ceiling every message honors.
func (f *Formatter) Limit() int { return f.limit }

// Format renders r. The message's Length never exceeds Limit: the
// reason is cut to the remaining budget, and if the fixed part alone is too
// long the title and then the editor name are shortened.
func (f *Formatter) Format(r Result) (Message, error) {
	if !r.Qualifying {
		return Message{}, ErrNotQualifying
	}
	editor := oneLine(r.Editor)
	title := oneLine(r.Title)
	reason := oneLine(r.Reason)

	tmpl := TemplateReason
	room := 1
	if reason == "" {
		tmpl = TemplateNoReason
		room = 0
	}

	link := f.link(strconv.FormatInt(r.RevisionID, 10))

	// Fixed part: everything except the reason, link at its counted width.
	fixed := f.weigh(tmpl, editor, title, "", link)
	if over := fixed + room - f.limit; over > 0 {
		cut := min(over, utf8.RuneCountInString(title))
		title = truncateRunes(title, utf8.RuneCountInString(title)-cut)
		over -= cut
		if over > 0 {
			editor = truncateRunes(editor, utf8.RuneCountInString(editor)-over)
		}
		fixed = f.weigh(tmpl, editor, title, "", link)
		if fixed+room > f.limit {
			return Message{}, ErrOverBudget
		}
	}
	reason = truncateRunes(reason, f.limit-fixed)

	return Message{
		Text:       render(tmpl, editor, title, reason, link),
		Link:       link,
		RevisionID: r.RevisionID,
		Length:     f.weigh(tmpl, editor, title, reason, link),
	}, nil
}

// Weigh returns the counted length of text whose link is link. Without a
// fixed link width this is the rune count of text.
func (f *Formatter) Weigh(text, link string) int {
	n := utf8.RuneCountInString(text)
	if f.linkLength > 0 && link != "" && strings.Contains(text, link) {
		n += f.linkLength - utf8.RuneCountInString(link)
	}
	return n
}

func (f *Formatter) link(revision string) string {
	return strings.ReplaceAll(f.linkTemplate, "{revision}", revision)
}

func (f *Formatter) weigh(tmpl, editor, title, reason, link string) int {
	if f.filler != "" {
		link = f.filler
	}
	return utf8.RuneCountInString(render(tmpl, editor, title, reason, link))
}

func render(tmpl, editor, title, reason, link string) string {
	return strings.NewReplacer(
		"{editor}", editor,
		"{title}", title,
		"{reason}", reason,
		"{link}", link,
	).Replace(tmpl)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
