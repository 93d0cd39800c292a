package module

import (
	"fmt"

	"github.com/wippyai/autodispose/errors"
	"github.com/wippyai/autodispose/il"
)

// Token tables, stored in the high byte of a metadata token. The low 24
// bits are a 1-based row index.
const (
	TableType   uint32 = 0x01
	TableField  uint32 = 0x04
	TableMethod uint32 = 0x0A
	TableString uint32 = 0x70
)

// MethodRecord is a method reference row.
type MethodRecord struct {
	DeclaringType string   `cbor:"type"`
	Name          string   `cbor:"name"`
	ReturnType    string   `cbor:"ret"`
	Params        []string `cbor:"params,omitempty"`
	HasThis       bool     `cbor:"this,omitempty"`
}

// FieldRecord is a field reference row.
type FieldRecord struct {
	DeclaringType string `cbor:"type"`
	Name          string `cbor:"name"`
	FieldType     string `cbor:"ftype"`
}

// TokenTable interns operands into metadata tokens and resolves them back.
// Resolving the same token twice yields the same object, and every type
// reference with a given name is shared.
type TokenTable struct {
	index    map[string]uint32
	typeRefs map[string]*il.TypeRef
	resolved map[uint32]any
	Types    []string       `cbor:"types,omitempty"`
	Fields   []FieldRecord  `cbor:"fields,omitempty"`
	Methods  []MethodRecord `cbor:"methods,omitempty"`
	Strings  []string       `cbor:"strings,omitempty"`
}

// NewTokenTable creates an empty table.
func NewTokenTable() *TokenTable {
	return &TokenTable{}
}

func (tt *TokenTable) init() {
	if tt.index == nil {
		tt.index = make(map[string]uint32)
		tt.typeRefs = make(map[string]*il.TypeRef)
		tt.resolved = make(map[uint32]any)
	}
}

// Token implements il.TokenEncoder.
func (tt *TokenTable) Token(operand any) (uint32, error) {
	tt.init()
	var key string
	switch op := operand.(type) {
	case *il.TypeRef:
		key = "t:" + op.Name
	case *il.FieldRef:
		key = "f:" + op.String()
	case *il.MethodRef:
		key = "m:" + op.String()
	case string:
		key = "s:" + op
	default:
		return 0, errors.Unsupported(errors.PhaseEncode, fmt.Sprintf("token operand %T", operand))
	}
	if tok, ok := tt.index[key]; ok {
		return tok, nil
	}

	var tok uint32
	switch op := operand.(type) {
	case *il.TypeRef:
		tt.Types = append(tt.Types, op.Name)
		tok = TableType<<24 | uint32(len(tt.Types))
	case *il.FieldRef:
		tt.Fields = append(tt.Fields, FieldRecord{
			DeclaringType: il.TypeName(op.DeclaringType),
			Name:          op.Name,
			FieldType:     il.TypeName(op.FieldType),
		})
		tok = TableField<<24 | uint32(len(tt.Fields))
	case *il.MethodRef:
		rec := MethodRecord{
			DeclaringType: il.TypeName(op.DeclaringType),
			Name:          op.Name,
			ReturnType:    il.TypeName(op.ReturnType),
			HasThis:       op.HasThis,
		}
		for _, p := range op.Params {
			rec.Params = append(rec.Params, il.TypeName(p))
		}
		tt.Methods = append(tt.Methods, rec)
		tok = TableMethod<<24 | uint32(len(tt.Methods))
	case string:
		tt.Strings = append(tt.Strings, op)
		tok = TableString<<24 | uint32(len(tt.Strings))
	}
	tt.index[key] = tok
	return tok, nil
}

// Resolve implements il.TokenDecoder.
func (tt *TokenTable) Resolve(tok uint32) (any, error) {
	tt.init()
	if op, ok := tt.resolved[tok]; ok {
		return op, nil
	}
	table, row := tok>>24, int(tok&0xFFFFFF)-1

	var op any
	switch {
	case table == TableType && row >= 0 && row < len(tt.Types):
		op = tt.TypeRef(tt.Types[row])
	case table == TableField && row >= 0 && row < len(tt.Fields):
		rec := tt.Fields[row]
		op = &il.FieldRef{
			DeclaringType: tt.TypeRef(rec.DeclaringType),
			FieldType:     tt.TypeRef(rec.FieldType),
			Name:          rec.Name,
		}
	case table == TableMethod && row >= 0 && row < len(tt.Methods):
		rec := tt.Methods[row]
		m := &il.MethodRef{
			DeclaringType: tt.TypeRef(rec.DeclaringType),
			ReturnType:    tt.TypeRef(rec.ReturnType),
			Name:          rec.Name,
			HasThis:       rec.HasThis,
		}
		for _, p := range rec.Params {
			m.Params = append(m.Params, tt.TypeRef(p))
		}
		op = m
	case table == TableString && row >= 0 && row < len(tt.Strings):
		op = tt.Strings[row]
	default:
		return nil, errors.New(errors.PhaseDecode, errors.KindNotFound).
			Detail("token 0x%08x does not resolve", tok).
			Value(tok).
			Build()
	}
	tt.resolved[tok] = op
	return op, nil
}

// TypeRef returns the shared reference for a type name.
func (tt *TokenTable) TypeRef(name string) *il.TypeRef {
	tt.init()
	if t, ok := tt.typeRefs[name]; ok {
		return t
	}
	t := &il.TypeRef{Name: name}
	tt.typeRefs[name] = t
	return t
}
