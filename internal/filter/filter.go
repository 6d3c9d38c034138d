// Package filter decides which clusters auroratag acts on.
package filter

import (
	"fmt"

	"github.com/gobwas/glob"

	"github.com/yairfalse/auroratag/pkg/resource"
)

// Options configures a Filter. Identifier and engine entries are glob
// patterns (e.g. "prod-*", "aurora*").
type Options struct {
	IncludeIDs  []string
	ExcludeIDs  []string
	Engines     []string
	IncludeTags map[string]string
	ExcludeTags map[string]string
}

// Filter controls which clusters are tagged.
type Filter struct {
	includeIDs  []glob.Glob
	excludeIDs  []glob.Glob
	engines     []glob.Glob
	includeTags map[string]string
	excludeTags map[string]string
}

// New compiles the filter patterns.
func New(opts Options) (*Filter, error) {
	f := &Filter{
		includeTags: opts.IncludeTags,
		excludeTags: opts.ExcludeTags,
	}

	var err error
	if f.includeIDs, err = compile(opts.IncludeIDs); err != nil {
		return nil, fmt.Errorf("include_ids: %w", err)
	}
	if f.excludeIDs, err = compile(opts.ExcludeIDs); err != nil {
		return nil, fmt.Errorf("exclude_ids: %w", err)
	}
	if f.engines, err = compile(opts.Engines); err != nil {
		return nil, fmt.Errorf("engines: %w", err)
	}
	return f, nil
}

func compile(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// ShouldIncludeCluster reports whether the cluster passes the filter and,
// when it does not, why.
func (f *Filter) ShouldIncludeCluster(c resource.Cluster) (bool, string) {
	if f == nil {
		return true, ""
	}

	if len(f.includeIDs) > 0 && !matchAny(f.includeIDs, c.ID) {
		return false, "identifier not in include list"
	}
	if matchAny(f.excludeIDs, c.ID) {
		return false, "identifier excluded"
	}
	if len(f.engines) > 0 && !matchAny(f.engines, c.Engine) {
		return false, fmt.Sprintf("engine %q not selected", c.Engine)
	}

	// Include tags - ALL must match
	for k, v := range f.includeTags {
		if !c.Tags.Has(k, v) {
			return false, fmt.Sprintf("missing required tag %s=%s", k, v)
		}
	}

	// Exclude tags - ANY match excludes
	for k, v := range f.excludeTags {
		if c.Tags.Has(k, v) {
			return false, fmt.Sprintf("excluded by tag %s=%s", k, v)
		}
	}

	return true, ""
}

// IsEmpty returns true if no filters are configured.
func (f *Filter) IsEmpty() bool {
	return f == nil || (len(f.includeIDs) == 0 && len(f.excludeIDs) == 0 && len(f.engines) == 0 &&
		len(f.includeTags) == 0 && len(f.excludeTags) == 0)
}

func matchAny(globs []glob.Glob, s string) bool {
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}
