// Package autodispose releases disposable locals automatically by weaving
// try/finally regions into compiled method bodies.
//
// A local whose declared type implements the disposal interface is released
// where it stops being used, unless the method already releases it in a
// protected region of its own. The rewrite runs after compilation on the
// stack-machine instruction stream, so the source never has to spell out
// the release.
//
// # Architecture Overview
//
// The module is organized into several packages with distinct responsibilities:
//
//	autodispose/
//	├── il/              Instruction model, editing, macros, codec, disassembler
//	├── ilast/           Tree IR built from a method body
//	├── module/          Types, methods, type resolution and the module image
//	├── asm/             Line-oriented assembler for modules
//	├── verify/          Structural checks on protected regions and branches
//	├── errors/          Structured error types for debugging
//	├── weaver/          Public API: Config, Weaver, matchers, config file
//	│   └── internal/
//	│       ├── scope/   Live ranges of locals
//	│       ├── rewrite/ Return unification, region building, handler order
//	│       └── engine/  Per-method pipeline and module fan-out
//	└── cmd/weave/       Command line tool with an interactive browser
//
// # Quick Start
//
// Weave a module read from an image:
//
//	m, err := module.Load("app.adm")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	refs, err := weaver.LoadReferences("system.adm")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	w := weaver.New(weaver.Config{References: refs, Verify: true})
//	report, err := w.ProcessModule(ctx, m)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(report.Regions()) // protected regions added
//
//	if err := module.Save("app.adm", m); err != nil {
//	    log.Fatal(err)
//	}
//
// # What Gets Rewritten
//
// For a local r of a disposable type:
//
//	newobj  instance void Res::.ctor()
//	stloc   r
//	ldloc   r
//	callvirt instance void Res::Use()
//	ret
//
// becomes
//
//	newobj  instance void Res::.ctor()
//	stloc   r
//	.try {
//	  ldloc   r
//	  callvirt instance void Res::Use()
//	  leave   END
//	} finally {
//	  ldloc   r
//	  brfalse DONE
//	  ldloc   r
//	  callvirt instance void System.IDisposable::Dispose()
//	  DONE: endfinally
//	}
//	END: ret
//
// Early returns are folded into a single exit first, so every path through
// the region runs the handler.
//
// # Error Handling
//
// Errors carry a phase and a kind (see the errors package). Per-method
// failures leave the method unchanged; ranges that cannot be protected are
// dropped with a warning.
package autodispose
