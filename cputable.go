package coroexec

import "runtime"

// CPUTable is the compile-time-fixed array of per-CPU Runtimes described in
// spec.md §6 ("CPU count is fixed at compile time") and §9's design note
// ("global static array of runtimes... guarded per-entry by a lock" — here,
// each Runtime is already internally synchronized, so the table itself
// needs no additional per-entry lock beyond the slice being immutable after
// construction).
type CPUTable struct {
	runtimes []*Runtime
}

// NewCPUTable builds one Runtime per CPU. With no WithCPUCount option, the
// table holds a single Runtime; WithCPUCount with a count of zero or less
// sizes it to runtime.NumCPU(). A real kernel build passes WithCPUCount
// explicitly to match its boot-detected CPU count.
func NewCPUTable(opts ...RuntimeOption) (*CPUTable, error) {
	cfg, err := resolveRuntimeOptions(opts)
	if err != nil {
		return nil, err
	}
	n := cfg.cpuCount
	if n <= 0 {
		n = runtime.NumCPU()
	}

	t := &CPUTable{runtimes: make([]*Runtime, n)}
	for i := 0; i < n; i++ {
		rt, err := NewRuntime(uint8(i), opts...)
		if err != nil {
			return nil, err
		}
		t.runtimes[i] = rt
	}
	return t, nil
}

// Runtime returns the Runtime for cpuID. Panics on out-of-range cpuID,
// matching spec.md's "index into the runtime table; stable per logical
// CPU" collaborator contract — an invalid cpu_id() is a host bug, not a
// recoverable condition.
func (t *CPUTable) Runtime(cpuID uint8) *Runtime {
	return t.runtimes[cpuID]
}

// Len returns the number of CPUs in the table.
func (t *CPUTable) Len() int { return len(t.runtimes) }

// Current returns the Runtime for the calling host's current CPU, per
// spec.md §6's cpu_id() collaborator. Any one of the table's runtimes may
// be used since all share the same HostHooks.CPUID function shape; this
// reads CPU 0's host purely to get at the cpu_id() hook, which is expected
// to be the same function pointer across all table entries in a single
// process.
func (t *CPUTable) Current() *Runtime {
	if len(t.runtimes) == 0 {
		return nil
	}
	id := t.runtimes[0].host.CPUID()
	return t.Runtime(id)
}
