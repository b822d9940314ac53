//go:build !linux && !darwin

// This platform has no dynamic-linker preload mechanism for bear to hook
// into, so the package still builds (as an ordinary, never-shared binary)
// but exports nothing.
package main

func main() {}
