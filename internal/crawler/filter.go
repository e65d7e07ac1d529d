package crawler

import (
	"fmt"
	"regexp"

	"sitecloner/internal/config"
)

// Filter applies the include and exclude URL patterns. Exclusions win; an
// empty include list admits everything.
type Filter struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// NewFilter compiles the pattern lists.
func NewFilter(include, exclude []string) (*Filter, error) {
	inc, err := config.CompilePatterns(include)
	if err != nil {
		return nil, fmt.Errorf("invalid include pattern: %w", err)
	}
	exc, err := config.CompilePatterns(exclude)
	if err != nil {
		return nil, fmt.Errorf("invalid exclude pattern: %w", err)
	}
	return &Filter{include: inc, exclude: exc}, nil
}

// Allow reports whether rawURL passes the filter.
func (f *Filter) Allow(rawURL string) bool {
	if f == nil {
		return true
	}
	for _, pat := range f.exclude {
		if pat.MatchString(rawURL) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, pat := range f.include {
		if pat.MatchString(rawURL) {
			return true
		}
	}
	return false
}
