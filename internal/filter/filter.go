// Package filter decides which walked entries an operation acts on.
package filter

import "github.com/bamsammich/widepath/internal/entry"

// Rule represents a single include or exclude filter rule.
type Rule struct {
	Pattern *compiledPattern
	Include bool // true=include, false=exclude
}

// Chain holds an ordered list of filter rules plus size filters.
type Chain struct {
	rules      []Rule
	minSize    int64
	maxSize    int64
	skipHidden bool
}

// NewChain creates an empty filter chain.
func NewChain() *Chain {
	return &Chain{}
}

// AddExclude adds an exclude rule for the given pattern.
func (c *Chain) AddExclude(pattern string) error {
	cp, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, Rule{Pattern: cp, Include: false})
	return nil
}

// AddInclude adds an include rule for the given pattern.
func (c *Chain) AddInclude(pattern string) error {
	cp, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, Rule{Pattern: cp, Include: true})
	return nil
}

// SetMinSize sets the minimum file size filter.
func (c *Chain) SetMinSize(n int64) {
	c.minSize = n
}

// SetMaxSize sets the maximum file size filter.
func (c *Chain) SetMaxSize(n int64) {
	c.maxSize = n
}

// SetSkipHidden excludes entries carrying the hidden attribute.
func (c *Chain) SetSkipHidden(skip bool) {
	c.skipHidden = skip
}

// Empty reports whether the chain has no rules and no attribute filters.
func (c *Chain) Empty() bool {
	return len(c.rules) == 0 && c.minSize == 0 && c.maxSize == 0 && !c.skipHidden
}

// Entry applies the chain to a walked entry. It has the shape of an
// inclusion filter.
func (c *Chain) Entry(info entry.Info) bool {
	if c.skipHidden && info.IsHidden {
		return false
	}
	return c.Match(info.RelPath, info.IsDirectory, info.Size)
}

// Match returns true if the path should be INCLUDED (not filtered out).
// relPath is relative to the walk root, isDir indicates directories,
// and size is the file size (ignored for directories).
func (c *Chain) Match(relPath string, isDir bool, size int64) bool {
	// Size filters apply only to regular files.
	if !isDir {
		if c.minSize > 0 && size < c.minSize {
			return false
		}
		if c.maxSize > 0 && size > c.maxSize {
			return false
		}
	}

	// Walk rules in order; the first match wins.
	for _, rule := range c.rules {
		if rule.Pattern.match(relPath, isDir) {
			return rule.Include
		}
	}

	// No match → include (default).
	return true
}
