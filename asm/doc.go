// Package asm assembles and prints modules in a line-oriented text syntax.
//
// The syntax is meant for test fixtures and for inspecting woven output:
//
//	module Demo
//
//	type Demo.Res extends System.Object implements System.IDisposable
//	  method void Dispose()
//	    ret
//	  end
//	end
//
//	type Demo.Program
//	  method void Run() static
//	    local Demo.Res r
//	    newobj instance void Demo.Res::.ctor()
//	    stloc r
//	  L1: ldloc r
//	    callvirt instance void Demo.Res::Use()
//	    ret
//	  end
//	  property Name get get_Name
//	end
//
// A line is either a directive or an optional LABEL: followed by an
// instruction. Operands use ilasm conventions: member references are
// "[instance] RET Type::Name(PARAMS)", switch targets are "(L1, L2)", locals
// are named or indexed. Macro forms such as stloc.0 take no operand.
// Protected regions are declared inside a method with
//
//	.try TRYSTART TRYEND finally|fault|catch [TYPE] HANDLERSTART HANDLEREND
//
// where the reserved label "end" stands for the end of the body. Locals whose
// name starts with "<>" are compiler-generated. ';' starts a comment.
//
// Format prints a module back in the same syntax using il.Disassemble, so
// every instruction gets an IL_xxxx label.
package asm
