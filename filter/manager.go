package filter

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// Manager holds named filter presets and compiles ad-hoc expressions
type Manager struct {
	compiler CachingCompiler
	presets  map[string]CompiledFilter
	mu       sync.RWMutex
}

// ManagerOption configures a filter manager
type ManagerOption func(*Manager)

// WithCompiler sets a custom compiler
func WithCompiler(compiler CachingCompiler) ManagerOption {
	return func(m *Manager) {
		m.compiler = compiler
	}
}

// NewManager creates a new filter manager
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		compiler: NewExprCompiler(WithCache(100)),
		presets:  make(map[string]CompiledFilter),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// RegisterPresets compiles and registers presets. Nothing is registered if
// any preset fails to compile.
func (m *Manager) RegisterPresets(presets map[string]string) error {
	compiled := make(map[string]CompiledFilter, len(presets))

	for name, expression := range presets {
		f, err := m.compiler.Compile(expression)
		if err != nil {
			return fmt.Errorf("failed to compile preset '%s': %w", name, err)
		}
		compiled[strings.ToLower(name)] = f
	}

	m.mu.Lock()
	maps.Copy(m.presets, compiled)
	m.mu.Unlock()

	return nil
}

// Preset returns a registered preset by name
func (m *Manager) Preset(name string) (CompiledFilter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.presets[strings.ToLower(name)]
	return f, ok
}

// Presets returns the registered preset names, sorted
func (m *Manager) Presets() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.presets))
}

// Resolve returns the filter for a preset name or an expression. The preset
// wins when both are given. It returns nil when neither is set.
func (m *Manager) Resolve(preset, expression string) (CompiledFilter, error) {
	if preset = strings.TrimSpace(preset); preset != "" {
		f, ok := m.Preset(preset)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPreset, preset)
		}
		return f, nil
	}

	if strings.TrimSpace(expression) == "" {
		return nil, nil
	}

	return m.compiler.Compile(expression)
}

// CacheSize returns the number of compiled expressions held by the compiler
func (m *Manager) CacheSize() int {
	return m.compiler.Size()
}
