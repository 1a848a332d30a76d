// Package filter narrows catalog listings with expressions such as
//
//	Rating >= 7 and isMovie() and releasedAfter(yearsAgo(5))
//
// or the shorthand form
//
//	kind:movie AND rating:>=7
//
// The string helpers hasText, hasPrefix and hasSuffix ignore case. The
// names contains, startsWith and endsWith belong to expr's infix operators,
// e.g. Title contains "Dune".
package filter

import (
	"github.com/s0up4200/movieflix/tmdb"
)

// Filter decides whether a catalog item is kept
type Filter interface {
	Evaluate(item tmdb.MediaItem) bool
}

// CompiledFilter is a pre-compiled filter ready for evaluation
type CompiledFilter interface {
	Filter

	// Expression returns the source expression
	Expression() string
}

// Compiler compiles filter expressions
type Compiler interface {
	Compile(expression string) (CompiledFilter, error)
}

// CachingCompiler is a Compiler that keeps compiled programs
type CachingCompiler interface {
	Compiler

	// Clear removes all cached filters
	Clear()

	// Size returns the number of cached filters
	Size() int
}

// Apply returns the items f keeps, in order. A nil filter keeps everything.
func Apply(f Filter, items []tmdb.MediaItem) []tmdb.MediaItem {
	if f == nil {
		return items
	}

	matches := make([]tmdb.MediaItem, 0, len(items))
	for _, item := range items {
		if f.Evaluate(item) {
			matches = append(matches, item)
		}
	}
	return matches
}
