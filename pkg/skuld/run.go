package skuld

import (
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// RunContext carries the state global to one run: its identity, the
// seed per-scenario seeds derive from, and the cooperative stop flag.
// Created when a run starts and discarded when it finishes; never a
// process-wide global, so multiple runs can coexist in one process.
type RunContext struct {
	RunID string

	// Seed is the global random seed of the run
	Seed int64

	stopped    atomic.Bool
	reasonOnce sync.Once
	reason     string
}

func NewRunContext(seed int64) *RunContext {
	return &RunContext{
		RunID: uuid.NewString(),
		Seed:  seed,
	}
}

// Stop raises the global stop flag. A single monotonic write: the
// first caller wins and its reason is kept; repeated calls are no-ops.
// Returns true when this call set the flag.
func (rc *RunContext) Stop(reason string) bool {
	first := rc.stopped.CompareAndSwap(false, true)
	if first {
		rc.reasonOnce.Do(func() { rc.reason = reason })
	}
	return first
}

func (rc *RunContext) IsStopped() bool {
	return rc.stopped.Load()
}

func (rc *RunContext) StopReason() string {
	if !rc.IsStopped() {
		return ""
	}
	return rc.reason
}

// DeriveSeed produces the deterministic per-scenario seed from the
// global seed and the scenario unique id. Independent of execution
// order: re-running a single scenario with the same global seed
// reproduces the randomness it saw inside a full run.
func (rc *RunContext) DeriveSeed(uniqueID string) int64 {
	return DeriveSeed(rc.Seed, uniqueID)
}

func DeriveSeed(globalSeed int64, uniqueID string) int64 {
	h := fnv.New64a()

	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(uint64(globalSeed) >> (8 * i))
	}
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte(uniqueID))

	return int64(h.Sum64())
}
