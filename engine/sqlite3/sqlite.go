package sqlite3

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/ncruces/go-sqlite3/vfs"
	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
	"golang.org/x/sys/cpu"
)

// MemoryLimitPages caps the engine heap of every connection, in 64KiB pages.
const MemoryLimitPages = 512 // 32MB

var (
	runtimeOnce sync.Once
	runtimeErr  error
)

// nativeCompilation reports whether wazero can compile the engine to machine
// code on this platform. Elsewhere it is interpreted.
func nativeCompilation() bool {
	switch runtime.GOARCH {
	case "arm64":
	case "amd64":
		if !cpu.X86.HasSSE41 {
			return false
		}
	default:
		return false
	}
	switch runtime.GOOS {
	case "linux", "android", "darwin", "windows",
		"freebsd", "netbsd", "dragonfly", "solaris", "illumos":
		return true
	}
	return false
}

// setupRuntime configures the wazero runtime shared by every connection in
// the process. Only the first call takes effect. Compiled code is cached under
// cacheDir, or kept in memory when cacheDir is empty.
func setupRuntime(logger *zap.Logger, cacheDir string) error {
	runtimeOnce.Do(func() {
		compiled := nativeCompilation()

		var cfg wazero.RuntimeConfig
		if compiled {
			cfg = wazero.NewRuntimeConfigCompiler()
		} else {
			cfg = wazero.NewRuntimeConfigInterpreter()
		}
		// errata: a 256MB limit on illumos/amd64 yields
		// "resource temporarily unavailable"
		cfg = cfg.WithMemoryLimitPages(MemoryLimitPages)
		if cacheDir != "" {
			cache, err := wazero.NewCompilationCacheWithDir(cacheDir)
			if err != nil {
				runtimeErr = fmt.Errorf("opening compilation cache: %w", err)
				return
			}
			cfg = cfg.WithCompilationCache(cache)
		}
		sqlite3.RuntimeConfig = cfg

		if runtimeErr = sqlite3.Initialize(); runtimeErr != nil {
			return
		}
		logger.Info("SQLite via wazero",
			zap.Bool("compiler", compiled),
			zap.String("cache", cacheDir),
			zap.Bool("lock", vfs.SupportsFileLocking),
			zap.Bool("shm", vfs.SupportsSharedMemory),
		)
	})
	return runtimeErr
}
