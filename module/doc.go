// Package module holds the type-level model around method bodies: modules,
// types, methods and properties, a resolver across referenced modules, the
// capability query used to decide which locals need disposal, and the CBOR
// module image format.
//
// Load a module and its references, then ask whether a type is disposable:
//
//	m, err := module.Load("app.adm")
//	sys, err := module.Load("system.adm")
//	res := module.NewResolver(m, sys)
//	ok, err := module.Implements(res, "MyApp.Connection", "System.IDisposable")
//
// Images are encoded with canonical CBOR so identical modules produce
// identical bytes. Method bodies are stored as code blobs whose member,
// type and string operands are tokens into a per-image TokenTable.
package module
