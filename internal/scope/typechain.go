package scope

import (
	"sort"

	"github.com/pankcuf/ferment-sub004/internal/model"
	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

// TypeChain maps the types written in one scope to the objects they name.
// Types are compared by their lifetime-free rendering.
type TypeChain struct {
	keys    []string
	types   map[string]*syntax.Type
	objects map[string]model.ObjectKind
}

func newTypeChain() *TypeChain {
	return &TypeChain{
		types:   make(map[string]*syntax.Type),
		objects: make(map[string]model.ObjectKind),
	}
}

func (c *TypeChain) put(key string, ty *syntax.Type, o model.ObjectKind) {
	if _, ok := c.objects[key]; !ok {
		c.keys = append(c.keys, key)
		c.types[key] = ty
	}
	c.objects[key] = o
}

func (c *TypeChain) clone() *TypeChain {
	out := newTypeChain()
	for _, k := range c.keys {
		out.put(k, c.types[k], c.objects[k])
	}
	return out
}

// Len returns the number of entries.
func (c *TypeChain) Len() int { return len(c.keys) }

// Get returns the object recorded for ty.
func (c *TypeChain) Get(ty *syntax.Type) (model.ObjectKind, bool) {
	o, ok := c.objects[ty.Key()]
	return o, ok
}

// Entries returns the entries ordered by type key.
func (c *TypeChain) Entries() []Entry {
	keys := make([]string, len(c.keys))
	copy(keys, c.keys)
	sort.Strings(keys)
	out := make([]Entry, len(keys))
	for i, k := range keys {
		out[i] = Entry{Type: c.types[k], Object: c.objects[k]}
	}
	return out
}

// Entry is one type-chain entry.
type Entry struct {
	Scope  *model.ScopeChain
	Type   *syntax.Type
	Object model.ObjectKind
}
