package pages

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptySource is returned when a page-list source yields no titles.
// An empty monitored set would silently drop every event.
var ErrEmptySource = errors.New("page source returned no titles")

// Source returns the complete current list of monitored titles.
type Source interface {
	Titles(ctx context.Context) ([]string, error)
}

// Lister is the wiki API surface the category and embeddedin sources need.
// Implementations page through results internally.
type Lister interface {
	CategoryMembers(ctx context.Context, category string, namespaces []int) ([]string, error)
	EmbeddedIn(ctx context.Context, template string, namespaces []int) ([]string, error)
}

const (
	KindStatic     = "static"
	KindCategory   = "category"
	KindEmbeddedIn = "embeddedin"
)

// SourceConfig selects and configures a Source.
type SourceConfig struct {
	Kind       string
	Titles     []string
	Category   string
	Template   string
	Namespaces []int
}

// NewSource builds the source named by cfg.Kind. api may be nil for "static".
func NewSource(cfg SourceConfig, api Lister) (Source, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	if kind == "" {
		kind = KindStatic
	}
	switch kind {
	case KindStatic:
		return Static(cfg.Titles), nil
	case KindCategory:
		if strings.TrimSpace(cfg.Category) == "" {
			return nil, fmt.Errorf("pages: category source needs a category")
		}
		if api == nil {
			return nil, fmt.Errorf("pages: category source needs an api client")
		}
		return &categorySource{api: api, category: cfg.Category, ns: cfg.Namespaces}, nil
	case KindEmbeddedIn:
		if strings.TrimSpace(cfg.Template) == "" {
			return nil, fmt.Errorf("pages: embeddedin source needs a template")
		}
		if api == nil {
			return nil, fmt.Errorf("pages: embeddedin source needs an api client")
		}
		return &embeddedInSource{api: api, template: cfg.Template, ns: cfg.Namespaces}, nil
	default:
		return nil, fmt.Errorf("pages: unknown source %q", cfg.Kind)
	}
}

// Static is a fixed title list.
type Static []string

func (s Static) Titles(context.Context) ([]string, error) {
	if len(s) == 0 {
		return nil, ErrEmptySource
	}
	return append([]string(nil), s...), nil
}

type categorySource struct {
	api      Lister
	category string
	ns       []int
}

func (s *categorySource) Titles(ctx context.Context) ([]string, error) {
	titles, err := s.api.CategoryMembers(ctx, s.category, s.ns)
	if err != nil {
		return nil, fmt.Errorf("pages: category %q: %w", s.category, err)
	}
	if len(titles) == 0 {
		return nil, fmt.Errorf("pages: category %q: %w", s.category, ErrEmptySource)
	}
	return titles, nil
}

type embeddedInSource struct {
	api      Lister
	template string
	ns       []int
}

func (s *embeddedInSource) Titles(ctx context.Context) ([]string, error) {
	titles, err := s.api.EmbeddedIn(ctx, s.template, s.ns)
	if err != nil {
		return nil, fmt.Errorf("pages: embeddedin %q: %w", s.template, err)
	}
	if len(titles) == 0 {
		return nil, fmt.Errorf("pages: embeddedin %q: %w", s.template, ErrEmptySource)
	}
	return titles, nil
}
