package intercept

import (
	"runtime"

	"github.com/rizsotto/Bear-sub001/internal/session"
)

// PreloadVarForRuntime reports which environment variable this platform's
// dynamic linker reads for preloading, and (on Darwin only) the
// companion variable that must also be set to "1" for a flat-namespace
// preload to take effect.
func PreloadVarForRuntime() (preloadVar, forceVar string) {
	if runtime.GOOS == "darwin" {
		return session.PreloadVarDarwin, session.ForcePreloadVar
	}
	return session.PreloadVarLinux, ""
}
