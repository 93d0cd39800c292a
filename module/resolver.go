package module

import "github.com/wippyai/autodispose/errors"

// TypeResolver finds type definitions by full name.
type TypeResolver interface {
	ResolveType(name string) (*TypeDef, bool)
}

// Resolver searches a module and its references in order; the first
// definition wins.
type Resolver struct {
	modules []*Module
}

// NewResolver creates a resolver over the given modules.
func NewResolver(mods ...*Module) *Resolver {
	return &Resolver{modules: mods}
}

// Add appends modules to the search path.
func (r *Resolver) Add(mods ...*Module) {
	r.modules = append(r.modules, mods...)
}

// ResolveType implements TypeResolver.
func (r *Resolver) ResolveType(name string) (*TypeDef, bool) {
	for _, m := range r.modules {
		if t, ok := m.Type(name); ok {
			return t, true
		}
	}
	return nil, false
}

var builtins = map[string]bool{
	"void": true, "bool": true, "char": true, "object": true, "string": true,
	"int8": true, "uint8": true, "int16": true, "uint16": true,
	"int32": true, "uint32": true, "int64": true, "uint64": true,
	"float32": true, "float64": true, "native int": true, "native uint": true,
	"System.Object": true, "System.String": true, "System.ValueType": true,
}

// IsBuiltin reports whether name is a primitive or core runtime type.
func IsBuiltin(name string) bool {
	return builtins[name]
}

// Implements reports whether the named type exposes iface through its
// declared interfaces (followed transitively) or its base type chain. A
// type implements itself. An unresolvable root type is an error;
// unresolvable types further up the hierarchy are skipped.
func Implements(res TypeResolver, typeName, iface string) (bool, error) {
	if typeName == iface {
		return true, nil
	}
	root, ok := res.ResolveType(typeName)
	if !ok {
		return false, errors.NotFound(errors.PhaseAnalyze, "type", typeName)
	}

	visited := map[string]bool{typeName: true}
	queue := []*TypeDef{root}
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]

		next := append([]string(nil), t.Interfaces...)
		if t.BaseType != "" {
			next = append(next, t.BaseType)
		}
		for _, name := range next {
			if name == iface {
				return true, nil
			}
			if visited[name] {
				continue
			}
			visited[name] = true
			if def, ok := res.ResolveType(name); ok {
				queue = append(queue, def)
			}
		}
	}
	return false, nil
}
