// Package match selects queue names with doublestar globs.
//
// Queue names are flat strings, so "*" and "**" behave the same unless a
// deployment uses "/" inside names. Patterns are trimmed and compiled once.
package match

import (
	"errors"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrInvalidPattern is returned when a pattern cannot be compiled.
var ErrInvalidPattern = errors.New("invalid glob pattern")

// PatternError names the pattern that failed to compile.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// Config configures a Matcher.
type Config struct {
	// Includes select names; a name must match at least one. Empty selects
	// every name.
	Includes []string

	// Excludes reject names matched by any pattern, after Includes.
	Excludes []string
}

// Matcher is safe for concurrent use after creation.
type Matcher struct {
	includes []string
	excludes []string
}

// New compiles cfg. Blank patterns are dropped.
func New(cfg Config) (*Matcher, error) {
	includes, err := compile(cfg.Includes)
	if err != nil {
		return nil, err
	}
	excludes, err := compile(cfg.Excludes)
	if err != nil {
		return nil, err
	}
	return &Matcher{includes: includes, excludes: excludes}, nil
}

func compile(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: p, Err: ErrInvalidPattern}
		}
		out = append(out, p)
	}
	return out, nil
}

// Match reports whether name is selected.
func (m *Matcher) Match(name string) bool {
	if len(m.includes) > 0 && !anyMatch(m.includes, name) {
		return false
	}
	return !anyMatch(m.excludes, name)
}

// Empty reports whether the matcher selects every name.
func (m *Matcher) Empty() bool {
	return len(m.includes) == 0 && len(m.excludes) == 0
}

// Filter returns the names that match, preserving order.
func (m *Matcher) Filter(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if m.Match(n) {
			out = append(out, n)
		}
	}
	return out
}

// IncludePatterns returns the compiled include patterns.
func (m *Matcher) IncludePatterns() []string {
	return append([]string(nil), m.includes...)
}

// ExcludePatterns returns the compiled exclude patterns.
func (m *Matcher) ExcludePatterns() []string {
	return append([]string(nil), m.excludes...)
}

func anyMatch(patterns []string, name string) bool {
	for _, p := range patterns {
		// validated in New
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}
