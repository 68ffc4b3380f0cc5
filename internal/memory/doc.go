// Package memory keeps the migrator inside its container memory limit.
//
// [ConfigureFromEnv] sets GOMEMLIMIT from MEMORY_LIMIT and MEMORY_RATIO
// (default 0.85) unless GOMEMLIMIT is already set. Call it first in main.
//
// A [Monitor] samples heap usage and, once usage reaches the critical water
// mark, holds new items back until it drops below the high water mark. The
// batch worker waits on it before downloading each item:
//
//	mon := memory.NewMonitor(memory.DefaultConfig())
//	mon.Start()
//	defer mon.Stop()
//	worker.SetGate(mon)
//
// Kubernetes example passing the container limit through the Downward API:
//
//	env:
//	  - name: MEMORY_LIMIT
//	    valueFrom:
//	      resourceFieldRef:
//	        resource: limits.memory
package memory
