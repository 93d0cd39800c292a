package module

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/wippyai/autodispose/errors"
	"github.com/wippyai/autodispose/il"
)

// ImageFormat identifies a serialized module.
const (
	ImageFormat  = "autodispose-module"
	ImageVersion = 1
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("module: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type image struct {
	Tokens     *TokenTable  `cbor:"tokens"`
	Format     string       `cbor:"format"`
	Name       string       `cbor:"name"`
	References []string     `cbor:"refs,omitempty"`
	Types      []typeRecord `cbor:"types"`
	Version    int          `cbor:"version"`
}

type typeRecord struct {
	Name        string           `cbor:"name"`
	BaseType    string           `cbor:"base,omitempty"`
	Interfaces  []string         `cbor:"ifaces,omitempty"`
	Methods     []methodRecord   `cbor:"methods,omitempty"`
	Properties  []propertyRecord `cbor:"props,omitempty"`
	IsInterface bool             `cbor:"iface,omitempty"`
	IsValueType bool             `cbor:"valuetype,omitempty"`
}

type methodRecord struct {
	Body       *bodyRecord `cbor:"body,omitempty"`
	Name       string      `cbor:"name"`
	ReturnType string      `cbor:"ret"`
	Params     []string    `cbor:"params,omitempty"`
	IsStatic   bool        `cbor:"static,omitempty"`
	IsAbstract bool        `cbor:"abstract,omitempty"`
}

type propertyRecord struct {
	Name   string `cbor:"name"`
	Getter string `cbor:"get,omitempty"`
	Setter string `cbor:"set,omitempty"`
}

type bodyRecord struct {
	Code       []byte          `cbor:"code"`
	Locals     []localRecord   `cbor:"locals,omitempty"`
	Handlers   []handlerRecord `cbor:"handlers,omitempty"`
	MaxStack   int             `cbor:"maxstack"`
	InitLocals bool            `cbor:"initlocals,omitempty"`
}

type localRecord struct {
	Type      string `cbor:"type"`
	Name      string `cbor:"name,omitempty"`
	Synthetic bool   `cbor:"synthetic,omitempty"`
}

type handlerRecord struct {
	CatchType    string `cbor:"catch,omitempty"`
	Kind         uint8  `cbor:"kind"`
	TryStart     int    `cbor:"ts"`
	TryEnd       int    `cbor:"te"`
	HandlerStart int    `cbor:"hs"`
	HandlerEnd   int    `cbor:"he"`
}

// Encode serializes a module to its CBOR image. Offsets of every body are
// recomputed as a side effect.
func Encode(m *Module) ([]byte, error) {
	img := image{
		Format:     ImageFormat,
		Version:    ImageVersion,
		Name:       m.Name,
		References: m.References,
		Tokens:     NewTokenTable(),
	}
	for _, t := range m.Types {
		tr := typeRecord{
			Name:        t.Name,
			BaseType:    t.BaseType,
			Interfaces:  t.Interfaces,
			IsInterface: t.IsInterface,
			IsValueType: t.IsValueType,
		}
		for _, md := range t.Methods {
			mr := methodRecord{
				Name:       md.Name,
				ReturnType: md.ReturnType,
				Params:     md.Params,
				IsStatic:   md.IsStatic,
				IsAbstract: md.IsAbstract,
			}
			if md.Body != nil {
				br, err := encodeBody(md.Body, img.Tokens)
				if err != nil {
					return nil, fmt.Errorf("encode %s: %w", md.FullName(), err)
				}
				mr.Body = br
			}
			tr.Methods = append(tr.Methods, mr)
		}
		for _, p := range t.Properties {
			pr := propertyRecord{Name: p.Name}
			if p.Getter != nil {
				pr.Getter = p.Getter.Name
			}
			if p.Setter != nil {
				pr.Setter = p.Setter.Name
			}
			tr.Properties = append(tr.Properties, pr)
		}
		img.Types = append(img.Types, tr)
	}
	return cborEncMode.Marshal(&img)
}

func encodeBody(body *il.MethodBody, tokens *TokenTable) (*bodyRecord, error) {
	code, err := il.EncodeBody(body, tokens)
	if err != nil {
		return nil, err
	}
	br := &bodyRecord{Code: code, MaxStack: body.MaxStack, InitLocals: body.InitLocals}
	for _, l := range body.Locals {
		br.Locals = append(br.Locals, localRecord{Type: il.TypeName(l.Type), Name: l.Name, Synthetic: l.Synthetic})
	}
	for _, h := range il.HandlerRecords(body) {
		br.Handlers = append(br.Handlers, handlerRecord{
			CatchType:    h.CatchType,
			Kind:         uint8(h.Kind),
			TryStart:     h.TryStart,
			TryEnd:       h.TryEnd,
			HandlerStart: h.HandlerStart,
			HandlerEnd:   h.HandlerEnd,
		})
	}
	return br, nil
}

// Decode parses a CBOR module image.
func Decode(data []byte) (*Module, error) {
	var img image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, errors.Load("unmarshal module image", err)
	}
	if img.Format != ImageFormat {
		return nil, errors.InvalidData(errors.PhaseLoad, nil, fmt.Sprintf("unknown image format %q", img.Format))
	}
	if img.Version != ImageVersion {
		return nil, errors.InvalidData(errors.PhaseLoad, nil, fmt.Sprintf("unsupported image version %d", img.Version))
	}
	if img.Tokens == nil {
		img.Tokens = NewTokenTable()
	}

	m := &Module{Name: img.Name, References: img.References}
	for _, tr := range img.Types {
		t := m.AddType(&TypeDef{
			Name:        tr.Name,
			BaseType:    tr.BaseType,
			Interfaces:  tr.Interfaces,
			IsInterface: tr.IsInterface,
			IsValueType: tr.IsValueType,
		})
		for _, mr := range tr.Methods {
			md := &MethodDef{
				Name:       mr.Name,
				ReturnType: mr.ReturnType,
				Params:     mr.Params,
				IsStatic:   mr.IsStatic,
				IsAbstract: mr.IsAbstract,
			}
			if mr.Body != nil {
				body, err := decodeBody(mr.Body, mr.ReturnType, img.Tokens)
				if err != nil {
					return nil, fmt.Errorf("decode %s::%s: %w", tr.Name, mr.Name, err)
				}
				md.Body = body
			}
			t.AddMethod(md)
		}
		for _, pr := range tr.Properties {
			p := &PropertyDef{Name: pr.Name}
			if pr.Getter != "" {
				if p.Getter, _ = t.Method(pr.Getter); p.Getter == nil {
					return nil, errors.NotFound(errors.PhaseLoad, "accessor", tr.Name+"::"+pr.Getter)
				}
			}
			if pr.Setter != "" {
				if p.Setter, _ = t.Method(pr.Setter); p.Setter == nil {
					return nil, errors.NotFound(errors.PhaseLoad, "accessor", tr.Name+"::"+pr.Setter)
				}
			}
			t.Properties = append(t.Properties, p)
		}
	}
	return m, nil
}

func decodeBody(br *bodyRecord, returnType string, tokens *TokenTable) (*il.MethodBody, error) {
	if returnType == "" {
		returnType = il.Void
	}
	body := &il.MethodBody{
		ReturnType: tokens.TypeRef(returnType),
		MaxStack:   br.MaxStack,
		InitLocals: br.InitLocals,
	}
	for _, lr := range br.Locals {
		body.AddLocal(tokens.TypeRef(lr.Type), lr.Name, lr.Synthetic)
	}
	instrs, err := il.DecodeBody(br.Code, body.Locals, tokens)
	if err != nil {
		return nil, err
	}
	body.Instructions = instrs

	recs := make([]il.HandlerRecord, len(br.Handlers))
	for n, h := range br.Handlers {
		recs[n] = il.HandlerRecord{
			CatchType:    h.CatchType,
			Kind:         il.HandlerKind(h.Kind),
			TryStart:     h.TryStart,
			TryEnd:       h.TryEnd,
			HandlerStart: h.HandlerStart,
			HandlerEnd:   h.HandlerEnd,
		}
	}
	if body.Handlers, err = il.BindHandlers(instrs, recs, len(br.Code)); err != nil {
		return nil, err
	}
	return body, nil
}

// Load reads a module image from disk.
func Load(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load(fmt.Sprintf("read %s", path), err)
	}
	m, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Save writes a module image to disk.
func Save(path string, m *Module) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
