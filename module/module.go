package module

import "github.com/wippyai/autodispose/il"

// Module is a unit of compiled types.
type Module struct {
	Name       string
	References []string
	Types      []*TypeDef
}

// TypeDef is a class, interface or value type definition.
type TypeDef struct {
	Name        string
	BaseType    string
	Interfaces  []string
	Methods     []*MethodDef
	Properties  []*PropertyDef
	IsInterface bool
	IsValueType bool
}

// MethodDef is a method definition. Body is nil for abstract and external
// methods.
type MethodDef struct {
	DeclaringType *TypeDef
	Body          *il.MethodBody
	Name          string
	ReturnType    string
	Params        []string
	IsStatic      bool
	IsAbstract    bool
}

// PropertyDef groups a property's accessor methods.
type PropertyDef struct {
	Getter *MethodDef
	Setter *MethodDef
	Name   string
}

// Type finds a type by full name.
func (m *Module) Type(name string) (*TypeDef, bool) {
	for _, t := range m.Types {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// AddType appends a type definition.
func (m *Module) AddType(t *TypeDef) *TypeDef {
	m.Types = append(m.Types, t)
	return t
}

// AddMethod attaches a method to t and names its body after it.
func (t *TypeDef) AddMethod(md *MethodDef) *MethodDef {
	md.DeclaringType = t
	if md.Body != nil {
		md.Body.Name = md.FullName()
		if md.Body.ReturnType == nil {
			ret := md.ReturnType
			if ret == "" {
				ret = il.Void
			}
			md.Body.ReturnType = &il.TypeRef{Name: ret}
		}
	}
	t.Methods = append(t.Methods, md)
	return md
}

// Method finds a method by name.
func (t *TypeDef) Method(name string) (*MethodDef, bool) {
	for _, md := range t.Methods {
		if md.Name == name {
			return md, true
		}
	}
	return nil, false
}

// FullName returns "Type::Name".
func (md *MethodDef) FullName() string {
	if md.DeclaringType == nil {
		return md.Name
	}
	return md.DeclaringType.Name + "::" + md.Name
}

// HasBody reports whether the method carries instructions.
func (md *MethodDef) HasBody() bool {
	return md != nil && !md.IsAbstract && md.Body != nil
}

// MethodsWithBody returns the type's concrete methods.
func (t *TypeDef) MethodsWithBody() []*MethodDef {
	var out []*MethodDef
	for _, md := range t.Methods {
		if md.HasBody() {
			out = append(out, md)
		}
	}
	return out
}

// ConcreteProperties returns properties with at least one concrete accessor.
func (t *TypeDef) ConcreteProperties() []*PropertyDef {
	var out []*PropertyDef
	for _, p := range t.Properties {
		if p.Getter.HasBody() || p.Setter.HasBody() {
			out = append(out, p)
		}
	}
	return out
}

// BodiedMethods returns every method with a body in declaration order:
// plain methods first, then property accessors not already listed.
func (m *Module) BodiedMethods() []*MethodDef {
	seen := make(map[*MethodDef]bool)
	var out []*MethodDef
	add := func(md *MethodDef) {
		if md.HasBody() && !seen[md] {
			seen[md] = true
			out = append(out, md)
		}
	}
	for _, t := range m.Types {
		for _, md := range t.MethodsWithBody() {
			add(md)
		}
		for _, p := range t.ConcreteProperties() {
			add(p.Getter)
			add(p.Setter)
		}
	}
	return out
}
