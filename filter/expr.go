package filter

import (
	"maps"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/s0up4200/movieflix/tmdb"
)

const dateLayout = "2006-01-02"

// exprFilter implements CompiledFilter using the expr language
type exprFilter struct {
	expression string
	program    *vm.Program
	extra      map[string]any
	now        func() time.Time
	logger     zerolog.Logger
}

// ExprCompilerOption configures an expr compiler
type ExprCompilerOption func(*exprCompiler)

// WithCache enables filter caching with the specified size
func WithCache(size int) ExprCompilerOption {
	return func(c *exprCompiler) {
		if size <= 0 {
			return
		}
		if cache, err := lru.New[string, CompiledFilter](size); err == nil {
			c.cache = cache
		}
	}
}

// WithCustomFunctions adds custom helper functions
func WithCustomFunctions(funcs map[string]any) ExprCompilerOption {
	return func(c *exprCompiler) {
		maps.Copy(c.extra, funcs)
	}
}

// WithClock overrides the time source of the date helpers
func WithClock(now func() time.Time) ExprCompilerOption {
	return func(c *exprCompiler) {
		c.now = now
	}
}

// WithLogger logs evaluation failures at debug level
func WithLogger(logger zerolog.Logger) ExprCompilerOption {
	return func(c *exprCompiler) {
		c.logger = logger.With().Str("component", "filter").Logger()
	}
}

// NewExprCompiler creates a new expr-based filter compiler
func NewExprCompiler(opts ...ExprCompilerOption) CachingCompiler {
	c := &exprCompiler{
		extra:  make(map[string]any),
		now:    time.Now,
		logger: zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// exprCompiler implements CachingCompiler for expr-based filters
type exprCompiler struct {
	extra  map[string]any
	cache  *lru.Cache[string, CompiledFilter]
	now    func() time.Time
	logger zerolog.Logger
}

// Compile compiles an expression into an executable filter. Shorthand
// expressions are converted first.
func (c *exprCompiler) Compile(expression string) (CompiledFilter, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, &CompilationError{
			Expression: expression,
			Reason:     "empty expression",
		}
	}

	if c.cache != nil {
		if cached, ok := c.cache.Get(expression); ok {
			return cached, nil
		}
	}

	source := expression
	if IsShorthand(expression) {
		converted, err := ConvertShorthand(expression)
		if err != nil {
			return nil, &CompilationError{Expression: expression, Reason: "invalid shorthand", Err: err}
		}
		source = converted
	}

	// Compile against a zero item so field and helper types are checked
	program, err := expr.Compile(source,
		expr.Env(createEnvironment(tmdb.MediaItem{}, c.now, c.extra)),
		expr.AsBool(),
	)
	if err != nil {
		return nil, &CompilationError{
			Expression: expression,
			Reason:     "failed to compile expression",
			Err:        err,
		}
	}

	filter := &exprFilter{
		expression: expression,
		program:    program,
		extra:      c.extra,
		now:        c.now,
		logger:     c.logger,
	}

	if c.cache != nil {
		c.cache.Add(expression, filter)
	}

	return filter, nil
}

// Clear removes all cached filters
func (c *exprCompiler) Clear() {
	if c.cache != nil {
		c.cache.Purge()
	}
}

// Size returns the number of cached filters
func (c *exprCompiler) Size() int {
	if c.cache != nil {
		return c.cache.Len()
	}
	return 0
}

// Evaluate evaluates the filter against an item. Items that fail evaluation
// are not kept.
func (f *exprFilter) Evaluate(item tmdb.MediaItem) bool {
	env := createEnvironment(item, f.now, f.extra)

	result, err := expr.Run(f.program, env)
	if err != nil {
		f.logger.Debug().
			Err(&EvaluationError{Expression: f.expression, ItemTitle: item.DisplayName(), Err: err}).
			Msg("Filter evaluation failed")
		return false
	}

	// AsBool guarantees the result type
	return result.(bool)
}

// Expression returns the original expression
func (f *exprFilter) Expression() string {
	return f.expression
}

// createEnvironment builds the evaluation environment for one item
func createEnvironment(item tmdb.MediaItem, now func() time.Time, extra map[string]any) map[string]any {
	env := make(map[string]any, 32+len(extra))

	addHelperFunctions(env, now)

	released := parseDate(item.Date())
	rating := 0.0
	if item.HasRating() {
		rating = *item.VoteAverage
	}
	stars, _ := item.Stars()

	env["Item"] = item
	env["Title"] = item.DisplayName()
	env["Kind"] = string(item.Kind())
	env["Year"] = item.Year()
	env["Rating"] = rating
	env["Stars"] = stars
	env["HasRating"] = item.HasRating()
	env["Votes"] = item.VoteCount
	env["Popularity"] = item.Popularity
	env["ReleaseDate"] = item.Date()
	env["Released"] = released
	env["Overview"] = item.Overview
	env["GenreIDs"] = item.GenreIDs

	kind := item.Kind()
	env["isMovie"] = func() bool { return kind == tmdb.KindMovie }
	env["isTV"] = func() bool { return kind == tmdb.KindTV }
	env["hasGenre"] = func(id int) bool {
		for _, g := range item.GenreIDs {
			if g == id {
				return true
			}
		}
		return false
	}
	env["releasedAfter"] = func(date any) bool {
		bound, ok := toTime(date)
		return ok && !released.IsZero() && released.After(bound)
	}
	env["releasedBefore"] = func(date any) bool {
		bound, ok := toTime(date)
		return ok && !released.IsZero() && released.Before(bound)
	}

	maps.Copy(env, extra)
	return env
}

// addHelperFunctions adds the item-independent helpers
func addHelperFunctions(env map[string]any, now func() time.Time) {
	// Date helpers
	env["daysAgo"] = func(days int) time.Time {
		return now().AddDate(0, 0, -days)
	}
	env["monthsAgo"] = func(months int) time.Time {
		return now().AddDate(0, -months, 0)
	}
	env["yearsAgo"] = func(years int) time.Time {
		return now().AddDate(-years, 0, 0)
	}
	env["parseDate"] = parseDate
	env["now"] = now
	// String helpers. contains, startsWith and endsWith are expr operators,
	// so the case-insensitive versions use other names.
	env["hasText"] = func(str, substr string) bool {
		return strings.Contains(strings.ToLower(str), strings.ToLower(substr))
	}
	env["hasPrefix"] = func(str, prefix string) bool {
		return strings.HasPrefix(strings.ToLower(str), strings.ToLower(prefix))
	}
	env["hasSuffix"] = func(str, suffix string) bool {
		return strings.HasSuffix(strings.ToLower(str), strings.ToLower(suffix))
	}
	env["lower"] = strings.ToLower
	env["upper"] = strings.ToUpper
}

func parseDate(s string) time.Time {
	t, _ := time.Parse(dateLayout, strings.TrimSpace(s))
	return t
}

func toTime(v any) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return d, !d.IsZero()
	case string:
		t := parseDate(d)
		return t, !t.IsZero()
	default:
		return time.Time{}, false
	}
}
