package il

// SimplifyMacros rewrites every macro and short form to its long form:
// ldloc.0/ldloc.s become ldloc, ldc.i4.3/ldc.i4.s become ldc.i4, br.s
// becomes br, and so on. Offsets are recomputed. The pass is idempotent.
func (b *MethodBody) SimplifyMacros() {
	for _, ins := range b.Instructions {
		ins.Code = ins.Code.Expand()
	}
	b.UpdateOffsets()
}

// Expand returns the long form of a macro or short-form code. Codes without
// a shorter encoding are returned unchanged.
func (c Code) Expand() Code {
	switch c {
	case Ldarg0, Ldarg1, Ldarg2, Ldarg3, LdargS:
		return Ldarg
	case LdargaS:
		return Ldarga
	case StargS:
		return Starg
	case Ldloc0, Ldloc1, Ldloc2, Ldloc3, LdlocS:
		return Ldloc
	case LdlocaS:
		return Ldloca
	case Stloc0, Stloc1, Stloc2, Stloc3, StlocS:
		return Stloc
	case LdcI4M1, LdcI40, LdcI41, LdcI42, LdcI43, LdcI44, LdcI45, LdcI46, LdcI47, LdcI48, LdcI4S:
		return LdcI4
	default:
		return c.LongForm()
	}
}

// OptimizeMacros chooses the shortest encoding for every instruction.
// Locals, arguments and constants get their macro forms directly. Branches
// start in long form and are shortened by fixed-point iteration: each round
// recomputes offsets and shortens every long branch whose displacement fits
// in a signed byte. Shortening only moves code closer, so a branch that fits
// keeps fitting and the result depends only on the long-form stream.
// The pass is idempotent, and OptimizeMacros after SimplifyMacros restores
// any body that OptimizeMacros produced.
func (b *MethodBody) OptimizeMacros() {
	for _, ins := range b.Instructions {
		ins.Code = optimize(ins.Code.Expand(), ins)
	}

	for {
		b.UpdateOffsets()
		changed := false
		for _, ins := range b.Instructions {
			short, ok := longToShort[ins.Code]
			if !ok {
				continue
			}
			target := ins.Target()
			if target == nil {
				continue
			}
			disp := target.Offset - (ins.Offset + ins.Size())
			if disp >= -128 && disp <= 127 {
				ins.Code = short
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

func optimize(long Code, ins *Instruction) Code {
	switch long {
	case Ldarg:
		if n, ok := ins.Int(); ok {
			switch {
			case n >= 0 && n <= 3:
				return Ldarg0 + Code(n)
			case n < 256:
				return LdargS
			}
		}
	case Ldarga:
		if n, ok := ins.Int(); ok && n < 256 {
			return LdargaS
		}
	case Starg:
		if n, ok := ins.Int(); ok && n < 256 {
			return StargS
		}
	case Ldloc:
		if l := ins.Local(); l != nil {
			switch {
			case l.Index <= 3:
				return Ldloc0 + Code(l.Index)
			case l.Index < 256:
				return LdlocS
			}
		}
	case Ldloca:
		if l := ins.Local(); l != nil && l.Index < 256 {
			return LdlocaS
		}
	case Stloc:
		if l := ins.Local(); l != nil {
			switch {
			case l.Index <= 3:
				return Stloc0 + Code(l.Index)
			case l.Index < 256:
				return StlocS
			}
		}
	case LdcI4:
		if v, ok := ins.Int(); ok {
			switch {
			case v == -1:
				return LdcI4M1
			case v >= 0 && v <= 8:
				return LdcI40 + Code(v)
			case v >= -128 && v <= 127:
				return LdcI4S
			}
		}
	}
	return long
}
