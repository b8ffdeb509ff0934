package revert

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	reWikiLink     = regexp.MustCompile(`\[\[([^\[\]|]*)(?:\|([^\[\]]*))?\]\]`)
	reExternalLink = regexp.MustCompile(`\[(?:https?:)?//[^\s\]]+\s+([^\]]+)\]`)
	reQuoteRun     = regexp.MustCompile(`'{2,5}`)
)

// NormalizeComment turns a raw wikitext summary into plain text. Entities are
// resolved and simple wikitext (internal links, labelled external links,
// bold/italic quote runs) is reduced to its visible text. A bare "<" is
// ordinary text here, never markup. Casing, punctuation and whitespace are
// left alone.
func NormalizeComment(s string) string {
	if strings.Contains(s, "&") {
		s = html.UnescapeString(s)
	}
	return resolveWikitext(s)
}

// NormalizeParsed turns the wiki's HTML rendering of a summary into plain
// text: tags are dropped and entities resolved, then any leftover wikitext
// goes through the same rules as NormalizeComment.
//
// If the HTML cannot be tokenized, the raw input is returned together with an
// error wrapping ErrNormalization.
func NormalizeParsed(s string) (string, error) {
	if !strings.ContainsAny(s, "<&") {
		return resolveWikitext(s), nil
	}
	plain, err := stripHTML(s)
	if err != nil {
		return s, fmt.Errorf("%w: %v", ErrNormalization, err)
	}
	return resolveWikitext(plain), nil
}

func stripHTML(s string) (string, error) {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	b.Grow(len(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return b.String(), nil
			}
			return "", z.Err()
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			if name, _ := z.TagName(); string(name) == "br" {
				b.WriteByte('\n')
			}
		}
	}
}

func resolveWikitext(s string) string {
	if strings.Contains(s, "[[") {
		s = reWikiLink.ReplaceAllStringFunc(s, func(m string) string {
			sub := reWikiLink.FindStringSubmatch(m)
			if len(sub) == 3 && strings.Contains(m, "|") {
				return sub[2]
			}
			return strings.TrimPrefix(sub[1], ":")
		})
	}
	if strings.Contains(s, "//") {
		s = reExternalLink.ReplaceAllString(s, "$1")
	}
	if strings.Contains(s, "''") {
		s = reQuoteRun.ReplaceAllString(s, "")
	}
	return s
}
