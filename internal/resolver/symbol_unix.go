//go:build linux || darwin

package resolver

/*
#cgo LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>
*/
import "C"
import "unsafe"

// Symbol is an opaque handle to a resolved libc entry point — the
// pointer dlsym(RTLD_NEXT, name) returned, which is "the one that would
// have been called in the absence of interception" per spec.md §4.2.
type Symbol unsafe.Pointer

// symbolCache holds lazily resolved symbols, satisfying spec.md §4.4's
// thread-safety note: "C2's symbol cache (lazily initialized with atomic
// pointer publish)". symbol_cache.go backs this with a plain
// sync.RWMutex-guarded map rather than sync.Map — see its own doc comment
// for why a fixed, small key set favors the simpler primitive.
var symbolCache symbolMap

// Next resolves name to the next definition in the dynamic linker's
// symbol chain, i.e. dlsym(RTLD_NEXT, name). The resolver never resolves
// one of our own exported shims, because RTLD_NEXT by definition starts
// the search after the object that called dlsym — this library itself.
func Next(name string) (Symbol, bool) {
	if sym, ok := symbolCache.load(name); ok {
		return sym, sym != nil
	}

	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	sym := C.dlsym(C.RTLD_NEXT, cname)
	symbolCache.store(name, Symbol(sym))
	return Symbol(sym), sym != nil
}
