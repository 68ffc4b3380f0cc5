package workers

import (
	"os"
	"runtime"
	"strconv"
)

// EnvOverride is the environment variable that caps batch concurrency.
const EnvOverride = "MIGRATION_WORKERS"

// Count returns the optimal number of workers for a given task type.
// It respects container CPU limits via GOMAXPROCS (Go 1.19+).
//
// The multiplier is workers per CPU: 1.0 for CPU-bound work, 2.0 for
// I/O-bound work.
//
// The limit parameter caps the worker count to prevent resource exhaustion.
// Use 0 for no limit.
//
// Can be overridden with the MIGRATION_WORKERS environment variable.
func Count(multiplier float64, limit int) int {
	if override := overrideCount(); override > 0 {
		if limit > 0 && override > limit {
			return limit
		}
		return override
	}

	available := runtime.GOMAXPROCS(0)
	workers := int(float64(available) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForMixed returns worker count for mixed tasks (1.5 per CPU).
// Item migration (download, transform, upload) falls in this class.
func ForMixed(limit int) int {
	return Count(1.5, limit)
}

// Clamp bounds a requested pool size for one batch. The result is at least 1,
// never more than items, and never more than the MIGRATION_WORKERS cap when set.
func Clamp(requested, items int) int {
	n := requested
	if n < 1 {
		n = 1
	}
	if override := overrideCount(); override > 0 && n > override {
		n = override
	}
	if items > 0 && n > items {
		n = items
	}
	return n
}

func overrideCount() int {
	value := os.Getenv(EnvOverride)
	if value == "" {
		return 0
	}
	count, err := strconv.Atoi(value)
	if err != nil || count <= 0 {
		return 0
	}
	return count
}
