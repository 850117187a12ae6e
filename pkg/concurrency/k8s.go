package concurrency

import (
	"log"
	"runtime"

	"go.uber.org/automaxprocs/maxprocs"
)

// InitializeForKubernetes aligns GOMAXPROCS with the container CPU quota.
// Call at the very start of main() before any other initialization.
// Returns an undo function that restores the original GOMAXPROCS value.
func InitializeForKubernetes() func() {
	// automaxprocs respects cgroup CPU limits, which is what matters when
	// the driver runs under a Kubernetes CPU quota
	undo, err := maxprocs.Set(maxprocs.Logger(log.Printf))
	if err != nil {
		log.Printf("Failed to set maxprocs: %v", err)
		return func() {} // Return no-op cleanup function
	}

	log.Printf("Concurrency initialized: GOMAXPROCS=%d", runtime.GOMAXPROCS(0))

	return undo
}

// GetEffectiveCPUs returns the effective number of CPUs available
// This respects cgroup limits in containerized environments
func GetEffectiveCPUs() int {
	return runtime.GOMAXPROCS(0)
}
