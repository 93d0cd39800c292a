package engine

import (
	"fmt"
	"sync"

	"github.com/wippyai/autodispose/il"
	"github.com/wippyai/autodispose/module"
)

// resolvers searches each resolver in turn.
type resolvers []module.TypeResolver

func (rs resolvers) ResolveType(name string) (*module.TypeDef, bool) {
	for _, r := range rs {
		if r == nil {
			continue
		}
		if t, ok := r.ResolveType(name); ok {
			return t, true
		}
	}
	return nil, false
}

// capabilities answers whether locals of a type get disposed. Answers are
// cached by type name for the lifetime of one run and safe for concurrent
// use. Each unresolvable type is reported once.
type capabilities struct {
	res   module.TypeResolver
	warn  func(string)
	known map[string]bool
	iface string
	mu    sync.Mutex
}

func newCapabilities(res module.TypeResolver, iface string, warn func(string)) *capabilities {
	return &capabilities{res: res, iface: iface, warn: warn, known: make(map[string]bool)}
}

// eligible reports whether l holds a reference to something exposing the
// capability interface.
func (c *capabilities) eligible(l *il.Local) bool {
	if l == nil || l.Synthetic || l.Type == nil {
		return false
	}
	name := l.Type.Name

	c.mu.Lock()
	defer c.mu.Unlock()
	if ok, seen := c.known[name]; seen {
		return ok
	}
	ok := c.check(name)
	c.known[name] = ok
	return ok
}

func (c *capabilities) check(name string) bool {
	if module.IsBuiltin(name) {
		return false
	}
	def, found := c.res.ResolveType(name)
	if !found {
		if name == c.iface {
			return true
		}
		c.warn(fmt.Sprintf("type %s cannot be resolved, its locals are not disposed", name))
		return false
	}
	if def.IsValueType {
		return false
	}
	ok, err := module.Implements(c.res, name, c.iface)
	if err != nil {
		c.warn(fmt.Sprintf("type %s: %v", name, err))
		return false
	}
	return ok
}
