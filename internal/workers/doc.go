/*
Package workers provides utilities for sizing worker pools in containerized
environments.

# Overview

When running in a container, the number of usable CPUs may be limited by
cgroup constraints. Go 1.19+ sets GOMAXPROCS from that limit, while
runtime.NumCPU() still reports the host's CPU count. The helpers here size
pools from GOMAXPROCS so a migration batch never fans out wider than the
container can sustain.

# Basic Usage

	// Default concurrency for a new run (mixed download/transform/upload work)
	concurrency := workers.ForMixed(8)

	// Bound the pool for one batch: at least 1, at most len(items)
	n := workers.Clamp(meta.Concurrency, len(items))

# Environment Variable Override

MIGRATION_WORKERS caps every value returned by this package:

	env:
	- name: MIGRATION_WORKERS
	  value: "2"

This is useful for temporarily throttling a migration that is saturating the
source API or the storage tier without editing each tenant's run config.
*/
package workers
