package pages

import (
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

// Set is the monitored-page set.
//
// Readers always see one complete snapshot: Replace builds a new immutable
// snapshot and swaps the pointer, it never mutates the current one.
type Set struct {
	cur atomic.Pointer[snapshot]
}

type snapshot struct {
	titles   map[string]struct{}
	loadedAt time.Time
}

var emptySnapshot = &snapshot{titles: map[string]struct{}{}}

// NewSet returns an empty set; Contains is false until the first Replace.
func NewSet() *Set {
	s := &Set{}
	s.cur.Store(emptySnapshot)
	return s
}

// Contains reports whether title is monitored.
func (s *Set) Contains(title string) bool {
	if s == nil {
		return false
	}
	_, ok := s.load().titles[NormalizeTitle(title)]
	return ok
}

// Replace swaps in a new snapshot built from titles.
func (s *Set) Replace(titles []string, at time.Time) int {
	m := make(map[string]struct{}, len(titles))
	for _, t := range titles {
		if t = NormalizeTitle(t); t != "" {
			m[t] = struct{}{}
		}
	}
	s.cur.Store(&snapshot{titles: m, loadedAt: at})
	return len(m)
}

func (s *Set) Len() int { return len(s.load().titles) }

// LoadedAt is the time of the last Replace (zero before the first load).
func (s *Set) LoadedAt() time.Time { return s.load().loadedAt }

// Titles returns a sorted copy of the current snapshot.
func (s *Set) Titles() []string {
	cur := s.load()
	out := make([]string, 0, len(cur.titles))
	for t := range cur.titles {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (s *Set) load() *snapshot {
	if p := s.cur.Load(); p != nil {
		return p
	}
	return emptySnapshot
}

// NormalizeTitle maps the underscore form used in URLs onto the display
// form the feed and the API use. Casing is kept.
func NormalizeTitle(t string) string {
	return strings.TrimSpace(strings.ReplaceAll(t, "_", " "))
}
