//go:build linux || darwin

// Command bear-preload is the -buildmode=c-shared target that becomes
// libexec.so / libexec.dylib: the preload library spec.md §1 describes,
// loaded into every descendant process via LD_PRELOAD/DYLD_INSERT_LIBRARIES.
//
// Every function below is a thin cgo boundary: collect the real libc
// call's arguments into plain Go values, run them through
// internal/intercept's pure-Go outline, then forward to the next
// definition of the same symbol via the bear_forward_* trampolines in
// forward.c. None of the decision logic lives here — that is what keeps
// internal/intercept unit-testable without a dynamic linker.
package main

/*
#cgo LDFLAGS: -ldl
#include <errno.h>
#include <spawn.h>
#include <stdio.h>
#include <stdlib.h>
#include <unistd.h>

#include "glue.h"
#include "forward.h"
*/
import "C"

import (
	"errors"
	"os"
	"unsafe"

	"github.com/rizsotto/Bear-sub001/internal/bearerr"
	"github.com/rizsotto/Bear-sub001/internal/intercept"
	"github.com/rizsotto/Bear-sub001/internal/resolver"
	"github.com/rizsotto/Bear-sub001/internal/session"
)

func main() {
	// Never runs: this binary is only ever loaded as a shared object.
}

func cwd() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return dir
}

// errnoFromErr maps a Handle/HandleNoEnvp resolution failure to the
// POSIX errno value the real call would have produced, per spec.md §4.4
// step 3's error-mapping table. Anything that is not a *bearerr.Resolution
// (a missing C2 symbol, in practice) comes back as ENOSYS.
func errnoFromErr(err error) C.int {
	var r *bearerr.Resolution
	if errors.As(err, &r) {
		switch r.Kind {
		case "EACCES":
			return C.EACCES
		case "ENAMETOOLONG":
			return C.ENAMETOOLONG
		default:
			return C.ENOENT
		}
	}
	return C.ENOSYS
}

func cArgvToSlice(argv **C.char, argc C.int) []string {
	n := int(argc)
	if n == 0 {
		return nil
	}
	raw := (*[1 << 20]*C.char)(unsafe.Pointer(argv))[:n:n]
	out := make([]string, n)
	for i, p := range raw {
		out[i] = C.GoString(p)
	}
	return out
}

func cEnvironToMap(envp **C.char) map[string]string {
	out := map[string]string{}
	if envp == nil {
		return out
	}
	raw := (*[1 << 20]*C.char)(unsafe.Pointer(envp))
	for i := 0; raw[i] != nil; i++ {
		kv := C.GoString(raw[i])
		for j := 0; j < len(kv); j++ {
			if kv[j] == '=' {
				out[kv[:j]] = kv[j+1:]
				break
			}
		}
	}
	return out
}

// buildCEnvp allocates a NULL-terminated char** from env. The caller must
// free it with freeCEnvp once the forward call returns.
func buildCEnvp(env map[string]string) **C.char {
	n := len(env)
	arr := (**C.char)(C.malloc(C.size_t(n+1) * C.size_t(unsafe.Sizeof((*C.char)(nil)))))
	slice := (*[1 << 20]*C.char)(unsafe.Pointer(arr))[: n+1 : n+1]
	i := 0
	for k, v := range env {
		slice[i] = C.CString(k + "=" + v)
		i++
	}
	slice[n] = nil
	return arr
}

func freeCEnvp(arr **C.char) {
	if arr == nil {
		return
	}
	slice := (*[1 << 20]*C.char)(unsafe.Pointer(arr))
	for i := 0; slice[i] != nil; i++ {
		C.free(unsafe.Pointer(slice[i]))
	}
	C.free(unsafe.Pointer(arr))
}

func countArgv(argv **C.char) C.int {
	if argv == nil {
		return 0
	}
	raw := (*[1 << 20]*C.char)(unsafe.Pointer(argv))
	n := 0
	for raw[n] != nil {
		n++
	}
	return C.int(n)
}

// doExecWithEnvp handles the envp-array shims (execve, execvpe, exect):
// step 6 forwards the caller's original path/argv pointers unchanged, so
// the real libc call performs whatever resolution it would always have
// performed — the resolved executable computed here is only used for
// reporting the Started event accurately, never to redirect the call.
func doExecWithEnvp(lookup intercept.Lookup, path *C.char, argv, envp **C.char, symbolName string) C.int {
	argc := countArgv(argv)
	result, err := intercept.Handle(session.Current(), intercept.Call{
		Lookup:     lookup,
		File:       C.GoString(path),
		Argv:       cArgvToSlice(argv, argc),
		Envp:       cEnvironToMap(envp),
		WorkingDir: cwd(),
	})
	if err != nil {
		C.bear_set_errno(errnoFromErr(err))
		return -1
	}

	sym, ok := resolver.Next(symbolName)
	if !ok {
		C.bear_set_errno(C.ENOSYS)
		return -1
	}

	cEnvp := buildCEnvp(result.Envp)
	defer freeCEnvp(cEnvp)

	var errnoOut C.int
	rc := C.bear_forward_execve(unsafe.Pointer(sym), path, argv, cEnvp, &errnoOut)
	C.bear_set_errno(errnoOut)
	return rc
}

// doExecNoEnvp handles the no-envp-array shims (execv, execvp): propagation
// mutates this process's live environment, which the real call then
// inherits automatically, so nothing further needs to be built here.
func doExecNoEnvp(lookup intercept.Lookup, path *C.char, argv **C.char, symbolName, searchPath string) C.int {
	argc := countArgv(argv)
	_, err := intercept.HandleNoEnvp(session.Current(), lookup, C.GoString(path), cArgvToSlice(argv, argc), cwd(), searchPath)
	if err != nil {
		C.bear_set_errno(errnoFromErr(err))
		return -1
	}

	sym, ok := resolver.Next(symbolName)
	if !ok {
		C.bear_set_errno(C.ENOSYS)
		return -1
	}

	var errnoOut C.int
	rc := C.bear_forward_exec2(unsafe.Pointer(sym), path, argv, &errnoOut)
	C.bear_set_errno(errnoOut)
	return rc
}

//export execve
func execve(path *C.char, argv, envp **C.char) C.int {
	return doExecWithEnvp(intercept.CurrentDirectory, path, argv, envp, "execve")
}

//export execvpe
func execvpe(file *C.char, argv, envp **C.char) C.int {
	return doExecWithEnvp(intercept.Path, file, argv, envp, "execvpe")
}

//export exect
func exect(path *C.char, argv, envp **C.char) C.int {
	return doExecWithEnvp(intercept.CurrentDirectory, path, argv, envp, "exect")
}

//export execv
func execv(path *C.char, argv **C.char) C.int {
	return doExecNoEnvp(intercept.CurrentDirectory, path, argv, "execv", "")
}

//export execvp
func execvp(file *C.char, argv **C.char) C.int {
	return doExecNoEnvp(intercept.Path, file, argv, "execvp", "")
}

//export execvP
func execvP(name, searchPath *C.char, argv **C.char) C.int {
	argc := countArgv(argv)
	_, err := intercept.HandleNoEnvp(session.Current(), intercept.SearchPath, C.GoString(name), cArgvToSlice(argv, argc), cwd(), C.GoString(searchPath))
	if err != nil {
		C.bear_set_errno(errnoFromErr(err))
		return -1
	}

	sym, ok := resolver.Next("execvP")
	if !ok {
		C.bear_set_errno(C.ENOSYS)
		return -1
	}

	var errnoOut C.int
	rc := C.bear_forward_execvP(unsafe.Pointer(sym), name, searchPath, argv, &errnoOut)
	C.bear_set_errno(errnoOut)
	return rc
}

func doPosixSpawn(lookup intercept.Lookup, pid *C.pid_t, path *C.char,
	fileActions *C.posix_spawn_file_actions_t, attrp *C.posix_spawnattr_t,
	argv, envp **C.char, symbolName string) C.int {
	argc := countArgv(argv)
	result, err := intercept.Handle(session.Current(), intercept.Call{
		Lookup:     lookup,
		File:       C.GoString(path),
		Argv:       cArgvToSlice(argv, argc),
		Envp:       cEnvironToMap(envp),
		WorkingDir: cwd(),
	})
	if err != nil {
		// posix_spawn's contract returns the error number directly rather
		// than -1/errno, so no forward call happens and errno is untouched.
		return errnoFromErr(err)
	}

	sym, ok := resolver.Next(symbolName)
	if !ok {
		return C.ENOSYS
	}

	cEnvp := buildCEnvp(result.Envp)
	defer freeCEnvp(cEnvp)

	var errnoOut C.int
	return C.bear_forward_posix_spawn(unsafe.Pointer(sym), pid, path, fileActions, attrp, argv, cEnvp, &errnoOut)
}

//export posix_spawn
func posix_spawn(pid *C.pid_t, path *C.char, fileActions *C.posix_spawn_file_actions_t, attrp *C.posix_spawnattr_t, argv, envp **C.char) C.int {
	return doPosixSpawn(intercept.CurrentDirectory, pid, path, fileActions, attrp, argv, envp, "posix_spawn")
}

//export posix_spawnp
func posix_spawnp(pid *C.pid_t, file *C.char, fileActions *C.posix_spawn_file_actions_t, attrp *C.posix_spawnattr_t, argv, envp **C.char) C.int {
	return doPosixSpawn(intercept.Path, pid, file, fileActions, attrp, argv, envp, "posix_spawnp")
}

//export system
func system(command *C.char) C.int {
	intercept.HandleShell(session.Current(), C.GoString(command), cwd())

	sym, ok := resolver.Next("system")
	if !ok {
		C.bear_set_errno(C.ENOSYS)
		return -1
	}
	return C.bear_forward_system(unsafe.Pointer(sym), command)
}

//export popen
func popen(command, mode *C.char) *C.FILE {
	intercept.HandleShell(session.Current(), C.GoString(command), cwd())

	sym, ok := resolver.Next("popen")
	if !ok {
		C.bear_set_errno(C.ENOSYS)
		return nil
	}
	return (*C.FILE)(C.bear_forward_popen(unsafe.Pointer(sym), command, mode))
}

// bearVariadicNoEnvp is variadic.c's entry point for execl (lookupKind 0)
// and execlp (lookupKind 1), after it has collected the caller's variadic
// arguments into a plain argv array via bear_va_argv. path is execl's own
// first parameter (execlp's "file"), kept distinct from argv[0]: libc lets
// a caller name a process differently from the file it actually executes
// (execl("/bin/sh", "sh", ...) execs /bin/sh with argv[0] == "sh"), so
// resolution and forwarding must use path, never argv[0].
//
//export bearVariadicNoEnvp
func bearVariadicNoEnvp(lookupKind C.int, path *C.char, argv **C.char, argc C.int, symbolName *C.char) C.int {
	lookup := intercept.Lookup(lookupKind)
	name := C.GoString(symbolName)

	_, err := intercept.HandleNoEnvp(session.Current(), lookup, C.GoString(path), cArgvToSlice(argv, argc), cwd(), "")
	if err != nil {
		C.bear_set_errno(errnoFromErr(err))
		return -1
	}

	sym, ok := resolver.Next(name)
	if !ok {
		C.bear_set_errno(C.ENOSYS)
		return -1
	}

	var errnoOut C.int
	rc := C.bear_forward_exec2(unsafe.Pointer(sym), path, argv, &errnoOut)
	C.bear_set_errno(errnoOut)
	return rc
}

// bearVariadicWithEnvp is variadic.c's entry point for execle, whose
// trailing variadic element is an envp array rather than a bare NULL. path
// is execle's own first parameter, kept distinct from argv[0] for the same
// reason as bearVariadicNoEnvp.
//
//export bearVariadicWithEnvp
func bearVariadicWithEnvp(path *C.char, argv **C.char, argc C.int, envp **C.char) C.int {
	result, err := intercept.Handle(session.Current(), intercept.Call{
		Lookup:     intercept.CurrentDirectory,
		File:       C.GoString(path),
		Argv:       cArgvToSlice(argv, argc),
		Envp:       cEnvironToMap(envp),
		WorkingDir: cwd(),
	})
	if err != nil {
		C.bear_set_errno(errnoFromErr(err))
		return -1
	}

	sym, ok := resolver.Next("execle")
	if !ok {
		C.bear_set_errno(C.ENOSYS)
		return -1
	}

	cEnvp := buildCEnvp(result.Envp)
	defer freeCEnvp(cEnvp)

	var errnoOut C.int
	rc := C.bear_forward_execve(unsafe.Pointer(sym), path, argv, cEnvp, &errnoOut)
	C.bear_set_errno(errnoOut)
	return rc
}
