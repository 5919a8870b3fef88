package concurrency

import (
	"log"
	"runtime"

	"go.uber.org/automaxprocs/maxprocs"
)

// InitializeForContainer aligns GOMAXPROCS with the container's CPU quota so
// the auto-detected worker budget respects cgroup limits. Call it at the top
// of main() before constructing engines. The returned function restores the
// original GOMAXPROCS value.
func InitializeForContainer() func() {
	undo, err := maxprocs.Set(maxprocs.Logger(log.Printf))
	if err != nil {
		log.Printf("failed to set maxprocs: %v", err)
		return func() {}
	}
	log.Printf("concurrency initialized: GOMAXPROCS=%d", runtime.GOMAXPROCS(0))
	return undo
}

// EffectiveCPUs returns the CPU count after cgroup limits are applied.
func EffectiveCPUs() int {
	return runtime.GOMAXPROCS(0)
}
