package asm

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/autodispose/asm/internal/token"
	"github.com/wippyai/autodispose/errors"
	"github.com/wippyai/autodispose/il"
	"github.com/wippyai/autodispose/module"
)

// EndLabel names the end of a method body in .try directives.
const EndLabel = "end"

// Parse assembles source text into a module.
func Parse(source string) (*module.Module, error) {
	p := &parser{
		refs:  module.NewTokenTable(),
		lines: splitLines(token.Tokenize(source)),
	}
	if err := p.parse(); err != nil {
		return nil, err
	}
	return p.mod, nil
}

func splitLines(tokens []token.Token) [][]token.Token {
	var lines [][]token.Token
	for i := 0; i < len(tokens); {
		j := i
		for j < len(tokens) && tokens[j].Line == tokens[i].Line {
			j++
		}
		lines = append(lines, tokens[i:j])
		i = j
	}
	return lines
}

type parser struct {
	refs  *module.TokenTable
	mod   *module.Module
	lines [][]token.Token
	pos   int
}

// cursor walks the tokens of one line.
type cursor struct {
	toks []token.Token
	i    int
}

func (c *cursor) line() int {
	if len(c.toks) == 0 {
		return 0
	}
	return c.toks[0].Line
}

func (c *cursor) done() bool {
	return c.i >= len(c.toks)
}

func (c *cursor) peek() (token.Token, bool) {
	if c.done() {
		return token.Token{}, false
	}
	return c.toks[c.i], true
}

func (c *cursor) is(typ token.Type) bool {
	t, ok := c.peek()
	return ok && t.Type == typ
}

func (c *cursor) expect(typ token.Type, what string) (string, error) {
	t, ok := c.peek()
	if !ok {
		return "", fmt.Errorf("expected %s, got end of line", what)
	}
	if t.Type != typ {
		return "", fmt.Errorf("expected %s, got %s %q", what, t.Type, t.Value)
	}
	c.i++
	return t.Value, nil
}

func (c *cursor) ident(what string) (string, error) {
	return c.expect(token.Ident, what)
}

func (c *cursor) end() error {
	if t, ok := c.peek(); ok {
		return fmt.Errorf("unexpected %s %q", t.Type, t.Value)
	}
	return nil
}

func (p *parser) next() (*cursor, bool) {
	if p.pos >= len(p.lines) {
		return nil, false
	}
	c := &cursor{toks: p.lines[p.pos]}
	p.pos++
	return c, true
}

func (p *parser) fail(what string, c *cursor, err error) error {
	return errors.ParseFailed(what, c.line(), err)
}

func (p *parser) parse() error {
	for {
		c, ok := p.next()
		if !ok {
			break
		}
		kw, err := c.ident("directive")
		if err != nil {
			return p.fail("directive", c, err)
		}
		switch kw {
		case "module":
			if p.mod != nil {
				return p.fail("module", c, stderrors.New("module declared twice"))
			}
			name, err := c.ident("module name")
			if err != nil {
				return p.fail("module", c, err)
			}
			if err := c.end(); err != nil {
				return p.fail("module", c, err)
			}
			p.mod = &module.Module{Name: name}
		case "reference":
			if err := p.needModule(c); err != nil {
				return err
			}
			name, err := c.ident("reference name")
			if err != nil {
				return p.fail("reference", c, err)
			}
			p.mod.References = append(p.mod.References, name)
		case "type":
			if err := p.needModule(c); err != nil {
				return err
			}
			if err := p.parseType(c); err != nil {
				return err
			}
		default:
			return p.fail("directive", c, fmt.Errorf("unknown top-level directive %q", kw))
		}
	}
	if p.mod == nil {
		return errors.ParseFailed("module", 0, stderrors.New("no module declaration"))
	}
	return nil
}

func (p *parser) needModule(c *cursor) error {
	if p.mod == nil {
		return p.fail("directive", c, stderrors.New("declaration before module"))
	}
	return nil
}

// type NAME [extends BASE] [implements I, ...] [interface] [valuetype]
func (p *parser) parseType(c *cursor) error {
	name, err := c.ident("type name")
	if err != nil {
		return p.fail("type", c, err)
	}
	if _, dup := p.mod.Type(name); dup {
		return p.fail("type", c, fmt.Errorf("type %s declared twice", name))
	}
	t := &module.TypeDef{Name: name}
	for !c.done() {
		kw, err := c.ident("type attribute")
		if err != nil {
			return p.fail("type", c, err)
		}
		switch kw {
		case "extends":
			if t.BaseType, err = c.ident("base type"); err != nil {
				return p.fail("type", c, err)
			}
		case "implements":
			for {
				iface, err := c.ident("interface name")
				if err != nil {
					return p.fail("type", c, err)
				}
				t.Interfaces = append(t.Interfaces, iface)
				if !c.is(token.Comma) {
					break
				}
				c.i++
			}
		case "interface":
			t.IsInterface = true
		case "valuetype":
			t.IsValueType = true
		default:
			return p.fail("type", c, fmt.Errorf("unknown type attribute %q", kw))
		}
	}
	p.mod.AddType(t)

	type accessor struct {
		prop *module.PropertyDef
		get  string
		set  string
		line int
	}
	var props []accessor

	for {
		c, ok := p.next()
		if !ok {
			return errors.ParseFailed("type", 0, fmt.Errorf("type %s is not closed with end", name))
		}
		kw, err := c.ident("member")
		if err != nil {
			return p.fail("member", c, err)
		}
		switch kw {
		case "end":
			for _, a := range props {
				if a.get != "" {
					if a.prop.Getter, _ = t.Method(a.get); a.prop.Getter == nil {
						return errors.ParseFailed("property", a.line, fmt.Errorf("getter %s not declared", a.get))
					}
				}
				if a.set != "" {
					if a.prop.Setter, _ = t.Method(a.set); a.prop.Setter == nil {
						return errors.ParseFailed("property", a.line, fmt.Errorf("setter %s not declared", a.set))
					}
				}
				t.Properties = append(t.Properties, a.prop)
			}
			return nil
		case "method":
			if err := p.parseMethod(t, c); err != nil {
				return err
			}
		case "property":
			pname, err := c.ident("property name")
			if err != nil {
				return p.fail("property", c, err)
			}
			a := accessor{prop: &module.PropertyDef{Name: pname}, line: c.line()}
			for !c.done() {
				which, err := c.ident("get or set")
				if err != nil {
					return p.fail("property", c, err)
				}
				m, err := c.ident("accessor name")
				if err != nil {
					return p.fail("property", c, err)
				}
				switch which {
				case "get":
					a.get = m
				case "set":
					a.set = m
				default:
					return p.fail("property", c, fmt.Errorf("unknown accessor %q", which))
				}
			}
			props = append(props, a)
		default:
			return p.fail("member", c, fmt.Errorf("unknown member directive %q", kw))
		}
	}
}

// method RET NAME(PARAMS) [static] [abstract]
func (p *parser) parseMethod(t *module.TypeDef, c *cursor) error {
	ret, err := c.ident("return type")
	if err != nil {
		return p.fail("method", c, err)
	}
	name, err := c.ident("method name")
	if err != nil {
		return p.fail("method", c, err)
	}
	params, err := p.paramList(c)
	if err != nil {
		return p.fail("method", c, err)
	}
	md := &module.MethodDef{Name: name, ReturnType: ret}
	for _, prm := range params {
		md.Params = append(md.Params, prm.Name)
	}
	for !c.done() {
		kw, err := c.ident("method attribute")
		if err != nil {
			return p.fail("method", c, err)
		}
		switch kw {
		case "static":
			md.IsStatic = true
		case "abstract":
			md.IsAbstract = true
		default:
			return p.fail("method", c, fmt.Errorf("unknown method attribute %q", kw))
		}
	}
	if !md.IsAbstract {
		bp := &bodyParser{
			p:      p,
			body:   &il.MethodBody{ReturnType: p.refs.TypeRef(ret), Name: t.Name + "::" + name},
			locals: make(map[string]*il.Local),
			labels: make(map[string]*il.Instruction),
		}
		if err := bp.parse(); err != nil {
			return err
		}
		md.Body = bp.body
	}
	t.AddMethod(md)
	return nil
}

func (p *parser) paramList(c *cursor) ([]*il.TypeRef, error) {
	if _, err := c.expect(token.LParen, "'('"); err != nil {
		return nil, err
	}
	var params []*il.TypeRef
	for !c.is(token.RParen) {
		if len(params) > 0 {
			if _, err := c.expect(token.Comma, "','"); err != nil {
				return nil, err
			}
		}
		name, err := c.ident("parameter type")
		if err != nil {
			return nil, err
		}
		params = append(params, p.refs.TypeRef(name))
	}
	c.i++
	return params, nil
}

type fixup struct {
	ins   *il.Instruction
	names []string
	multi bool
	line  int
}

type tryLine struct {
	catch  string
	labels [4]string
	kind   il.HandlerKind
	line   int
}

type bodyParser struct {
	p       *parser
	body    *il.MethodBody
	locals  map[string]*il.Local
	labels  map[string]*il.Instruction
	pending []string
	fixups  []fixup
	tries   []tryLine
}

func (bp *bodyParser) parse() error {
	for {
		c, ok := bp.p.next()
		if !ok {
			return errors.ParseFailed("method", 0, fmt.Errorf("method %s is not closed with end", bp.body.Name))
		}
		first, _ := c.peek()
		if first.Type == token.Ident {
			switch first.Value {
			case "end":
				c.i++
				if err := c.end(); err != nil {
					return bp.p.fail("method", c, err)
				}
				return bp.finish()
			case "local":
				c.i++
				if err := bp.local(c); err != nil {
					return bp.p.fail("local", c, err)
				}
				continue
			case ".try":
				c.i++
				if err := bp.try(c); err != nil {
					return bp.p.fail(".try", c, err)
				}
				continue
			case ".maxstack":
				c.i++
				v, err := c.expect(token.Number, "stack size")
				if err == nil {
					bp.body.MaxStack, err = strconv.Atoi(v)
				}
				if err != nil {
					return bp.p.fail(".maxstack", c, err)
				}
				continue
			case ".initlocals":
				bp.body.InitLocals = true
				continue
			}
		}
		if err := bp.instruction(c); err != nil {
			return bp.p.fail("instruction", c, err)
		}
	}
}

// local TYPE NAME
func (bp *bodyParser) local(c *cursor) error {
	typ, err := c.ident("local type")
	if err != nil {
		return err
	}
	name, err := c.ident("local name")
	if err != nil {
		return err
	}
	if err := c.end(); err != nil {
		return err
	}
	if _, dup := bp.locals[name]; dup {
		return fmt.Errorf("local %s declared twice", name)
	}
	l := bp.body.AddLocal(bp.p.refs.TypeRef(typ), name, strings.HasPrefix(name, "<>"))
	bp.locals[name] = l
	return nil
}

// .try START END KIND [CATCHTYPE] HSTART HEND
func (bp *bodyParser) try(c *cursor) error {
	tl := tryLine{line: c.line()}
	var err error
	for i := 0; i < 2; i++ {
		if tl.labels[i], err = c.ident("label"); err != nil {
			return err
		}
	}
	kind, err := c.ident("handler kind")
	if err != nil {
		return err
	}
	switch kind {
	case "catch":
		tl.kind = il.HandlerCatch
		if tl.catch, err = c.ident("catch type"); err != nil {
			return err
		}
	case "finally":
		tl.kind = il.HandlerFinally
	case "fault":
		tl.kind = il.HandlerFault
	default:
		return fmt.Errorf("unknown handler kind %q", kind)
	}
	for i := 2; i < 4; i++ {
		if tl.labels[i], err = c.ident("label"); err != nil {
			return err
		}
	}
	if err := c.end(); err != nil {
		return err
	}
	bp.tries = append(bp.tries, tl)
	return nil
}

// [LABEL:] [MNEMONIC [OPERAND]]
func (bp *bodyParser) instruction(c *cursor) error {
	if len(c.toks) >= 2 && c.toks[0].Type == token.Ident && c.toks[1].Type == token.Colon {
		label := c.toks[0].Value
		if label == EndLabel {
			return fmt.Errorf("label %q is reserved", label)
		}
		if _, dup := bp.labels[label]; dup || bp.isPending(label) {
			return fmt.Errorf("label %s defined twice", label)
		}
		bp.pending = append(bp.pending, label)
		c.i = 2
	}
	if c.done() {
		return nil
	}

	mnemonic, err := c.ident("operation")
	if err != nil {
		return err
	}
	code, ok := il.LookupCode(mnemonic)
	if !ok {
		return fmt.Errorf("unknown operation %q", mnemonic)
	}
	ins := il.NewInstruction(code, nil)
	if err := bp.operand(c, ins); err != nil {
		return fmt.Errorf("%s: %w", mnemonic, err)
	}
	if err := c.end(); err != nil {
		return err
	}
	for _, label := range bp.pending {
		bp.labels[label] = ins
	}
	bp.pending = bp.pending[:0]
	bp.body.Append(ins)
	return nil
}

func (bp *bodyParser) isPending(label string) bool {
	for _, l := range bp.pending {
		if l == label {
			return true
		}
	}
	return false
}

func (bp *bodyParser) operand(c *cursor, ins *il.Instruction) error {
	switch ins.Code.OperandKind() {
	case il.OperandNone:
		return il.BindImplicitOperand(ins, bp.localAt)

	case il.OperandShortBranch, il.OperandBranch:
		label, err := c.ident("label")
		if err != nil {
			return err
		}
		bp.fixups = append(bp.fixups, fixup{ins: ins, names: []string{label}, line: c.line()})

	case il.OperandSwitch:
		if _, err := c.expect(token.LParen, "'('"); err != nil {
			return err
		}
		var names []string
		for !c.is(token.RParen) {
			if len(names) > 0 {
				if _, err := c.expect(token.Comma, "','"); err != nil {
					return err
				}
			}
			label, err := c.ident("label")
			if err != nil {
				return err
			}
			names = append(names, label)
		}
		c.i++
		bp.fixups = append(bp.fixups, fixup{ins: ins, names: names, multi: true, line: c.line()})

	case il.OperandShortVar, il.OperandVar:
		t, ok := c.peek()
		if !ok {
			return stderrors.New("expected local, got end of line")
		}
		c.i++
		var l *il.Local
		if t.Type == token.Number {
			n, err := strconv.Atoi(t.Value)
			if err != nil {
				return err
			}
			if l, err = bp.localAt(n); err != nil {
				return err
			}
		} else if l = bp.locals[t.Value]; l == nil {
			return fmt.Errorf("unknown local %q", t.Value)
		}
		ins.Operand = l

	case il.OperandShortArg, il.OperandArg, il.OperandShortInt, il.OperandInt:
		v, err := c.expect(token.Number, "integer")
		if err != nil {
			return err
		}
		n, err := strconv.ParseInt(v, 0, 32)
		if err != nil {
			return err
		}
		ins.Operand = int(n)

	case il.OperandInt64:
		v, err := c.expect(token.Number, "integer")
		if err != nil {
			return err
		}
		n, err := strconv.ParseInt(v, 0, 64)
		if err != nil {
			return err
		}
		ins.Operand = n

	case il.OperandString:
		v, err := c.expect(token.String, "string")
		if err != nil {
			return err
		}
		s, err := strconv.Unquote(`"` + v + `"`)
		if err != nil {
			return fmt.Errorf("invalid string literal: %w", err)
		}
		ins.Operand = s

	case il.OperandMethod:
		m, err := bp.methodRef(c)
		if err != nil {
			return err
		}
		ins.Operand = m

	case il.OperandField:
		ftype, err := c.ident("field type")
		if err != nil {
			return err
		}
		member, err := c.ident("field")
		if err != nil {
			return err
		}
		owner, name, err := splitMember(member)
		if err != nil {
			return err
		}
		ins.Operand = &il.FieldRef{
			DeclaringType: bp.p.refs.TypeRef(owner),
			FieldType:     bp.p.refs.TypeRef(ftype),
			Name:          name,
		}

	case il.OperandType:
		name, err := c.ident("type")
		if err != nil {
			return err
		}
		ins.Operand = bp.p.refs.TypeRef(name)
	}
	return nil
}

// [instance] RET TYPE::NAME(PARAMS)
func (bp *bodyParser) methodRef(c *cursor) (*il.MethodRef, error) {
	m := &il.MethodRef{}
	ret, err := c.ident("return type")
	if err != nil {
		return nil, err
	}
	if ret == "instance" {
		m.HasThis = true
		if ret, err = c.ident("return type"); err != nil {
			return nil, err
		}
	}
	member, err := c.ident("method")
	if err != nil {
		return nil, err
	}
	owner, name, err := splitMember(member)
	if err != nil {
		return nil, err
	}
	m.ReturnType = bp.p.refs.TypeRef(ret)
	m.DeclaringType = bp.p.refs.TypeRef(owner)
	m.Name = name
	if m.Params, err = bp.p.paramList(c); err != nil {
		return nil, err
	}
	return m, nil
}

func splitMember(member string) (owner, name string, err error) {
	i := strings.LastIndex(member, "::")
	if i <= 0 || i+2 >= len(member) {
		return "", "", fmt.Errorf("expected Type::Member, got %q", member)
	}
	return member[:i], member[i+2:], nil
}

func (bp *bodyParser) localAt(n int) (*il.Local, error) {
	if n < 0 || n >= len(bp.body.Locals) {
		return nil, fmt.Errorf("local index %d out of range (%d locals)", n, len(bp.body.Locals))
	}
	return bp.body.Locals[n], nil
}

func (bp *bodyParser) resolve(label string, line int) (*il.Instruction, error) {
	if label == EndLabel || bp.isPending(label) {
		return nil, nil
	}
	ins, ok := bp.labels[label]
	if !ok {
		return nil, errors.ParseFailed("label", line, fmt.Errorf("undefined label %s", label))
	}
	return ins, nil
}

func (bp *bodyParser) finish() error {
	for _, f := range bp.fixups {
		targets := make([]*il.Instruction, len(f.names))
		for i, name := range f.names {
			ins, err := bp.resolve(name, f.line)
			if err != nil {
				return err
			}
			if ins == nil {
				return errors.ParseFailed("label", f.line, fmt.Errorf("branch to %s leaves the method", name))
			}
			targets[i] = ins
		}
		if f.multi {
			f.ins.Operand = targets
		} else {
			f.ins.Operand = targets[0]
		}
	}

	for _, tl := range bp.tries {
		var refs [4]*il.Instruction
		for i, name := range tl.labels {
			ins, err := bp.resolve(name, tl.line)
			if err != nil {
				return err
			}
			refs[i] = ins
		}
		h := &il.ExceptionHandler{
			Kind:         tl.kind,
			TryStart:     refs[0],
			TryEnd:       refs[1],
			HandlerStart: refs[2],
			HandlerEnd:   refs[3],
		}
		if h.TryStart == nil || h.HandlerStart == nil {
			return errors.ParseFailed(".try", tl.line, stderrors.New("region starts at the end of the method"))
		}
		if tl.kind == il.HandlerCatch {
			h.CatchType = bp.p.refs.TypeRef(tl.catch)
		}
		bp.body.Handlers = append(bp.body.Handlers, h)
	}
	bp.body.UpdateOffsets()
	return nil
}
