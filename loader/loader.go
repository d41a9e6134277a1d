// Package loader reads rule scripts into a types.RuleSet. Two formats are
// understood: RiveScript-style ".rs" scripts and ".lua" rule files that
// describe the same records through a small sandboxed Lua API. The Lua VM
// is discarded after loading.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nathoo/rivecore/types"
)

// Result is a loaded rule set and the warnings raised while reading it.
type Result struct {
	Rules    *types.RuleSet
	Warnings []string
}

// collector accumulates definitions from every file of a load.
type collector struct {
	globals  map[string]string
	botVars  map[string]string
	arrays   map[string][]string
	subs     []types.SubstEntry
	person   []types.SubstEntry
	post     []types.SubstEntry
	topics   map[string]*types.TopicDef
	names    []string // topics in first-seen order
	objects  []types.ObjectDef
	order    int
	errors   []string
	warnings []string

	// Lua rule files.
	luaTriggers []rawTrigger
	luaTopics   []rawTopic
}

func newCollector() *collector {
	return &collector{
		globals: map[string]string{},
		botVars: map[string]string{},
		arrays:  map[string][]string{},
		topics:  map[string]*types.TopicDef{},
	}
}

func (c *collector) nextSourceOrder() int {
	c.order++
	return c.order
}

func (c *collector) errorf(source, format string, args ...any) {
	c.errors = append(c.errors, source+": "+fmt.Sprintf(format, args...))
}

func (c *collector) warnf(source, format string, args ...any) {
	c.warnings = append(c.warnings, source+": "+fmt.Sprintf(format, args...))
}

// topic returns the named topic, creating it on first use.
func (c *collector) topic(name string) *types.TopicDef {
	name = strings.ToLower(name)
	t, ok := c.topics[name]
	if !ok {
		t = &types.TopicDef{Name: name}
		c.topics[name] = t
		c.names = append(c.names, name)
	}
	return t
}

// Load reads all .rs and .lua files from dir in name order, compiles them
// into one rule set and validates it.
func Load(dir string) (*Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading rule directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".rs", ".lua":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .rs or .lua files found in %s", dir)
	}
	sort.Strings(files)
	return LoadFiles(files...)
}

// LoadFiles reads the given files in order.
func LoadFiles(paths ...string) (*Result, error) {
	coll := newCollector()
	for _, path := range paths {
		switch filepath.Ext(path) {
		case ".lua":
			if err := runLua(coll, path); err != nil {
				return nil, fmt.Errorf("executing %s: %w", filepath.Base(path), err)
			}
		default:
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", path, err)
			}
			parseScript(coll, filepath.Base(path), string(data))
		}
	}
	return finish(coll)
}

// Parse reads a single .rs script held in memory.
func Parse(name, src string) (*Result, error) {
	coll := newCollector()
	parseScript(coll, name, src)
	return finish(coll)
}

func finish(coll *collector) (*Result, error) {
	rs, err := compile(coll)
	if err != nil {
		return nil, fmt.Errorf("compiling rules: %w", err)
	}
	if err := validate(rs, coll); err != nil {
		return nil, err
	}
	return &Result{Rules: rs, Warnings: coll.warnings}, nil
}
