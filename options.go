// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package coroexec

import "time"

// runtimeOptions holds configuration resolved at Runtime construction.
type runtimeOptions struct {
	exitWhenIdle  bool
	metricsEnabled bool
	logger         Logger
	stackSize      int
	cpuCount       int
	host           func(cpuID uint8) HostHooks
}

// RuntimeOption configures a Runtime (or the table built by NewCPUTable).
type RuntimeOption interface {
	applyRuntime(*runtimeOptions) error
}

type runtimeOptionImpl struct {
	applyRuntimeFunc func(*runtimeOptions) error
}

func (r *runtimeOptionImpl) applyRuntime(opts *runtimeOptions) error {
	return r.applyRuntimeFunc(opts)
}

// WithExitWhenIdle makes RunUntilIdle return once task_count reaches zero
// and no weak executors remain, instead of calling wait_for_interrupt and
// looping forever. Production hosts never set this; it exists for spec.md
// §6's "returns only in test mode" contract.
func WithExitWhenIdle(enabled bool) RuntimeOption {
	return &runtimeOptionImpl{func(opts *runtimeOptions) error {
		opts.exitWhenIdle = enabled
		return nil
	}}
}

// WithMetrics enables runtime metrics collection, readable via
// Runtime.Metrics(). Adds minimal overhead (a P-Square update per poll);
// disable for zero-allocation hot paths.
func WithMetrics(enabled bool) RuntimeOption {
	return &runtimeOptionImpl{func(opts *runtimeOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// WithLogger installs a structured Logger. Defaults to NoOpLogger.
func WithLogger(logger Logger) RuntimeOption {
	return &runtimeOptionImpl{func(opts *runtimeOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithStackSize overrides the per-executor stack size. Defaults to
// DefaultStackSize (128 KiB, spec.md §6); values below one page are
// rejected at resolve time.
func WithStackSize(bytes int) RuntimeOption {
	return &runtimeOptionImpl{func(opts *runtimeOptions) error {
		opts.stackSize = bytes
		return nil
	}}
}

// WithCPUCount overrides the size of the compile-time-fixed runtime table.
// Defaults to 1; NewCPUTable uses runtime.NumCPU() when given a count of
// zero or less.
func WithCPUCount(n int) RuntimeOption {
	return &runtimeOptionImpl{func(opts *runtimeOptions) error {
		opts.cpuCount = n
		return nil
	}}
}

// WithHostFactory overrides how each per-CPU HostHooks is constructed.
// Defaults to NewSimulatedHost. A real kernel build supplies one backed by
// assembly and MMIO.
func WithHostFactory(factory func(cpuID uint8) HostHooks) RuntimeOption {
	return &runtimeOptionImpl{func(opts *runtimeOptions) error {
		opts.host = factory
		return nil
	}}
}

// DefaultStackSize is the 128 KiB (32 pages) executor stack size fixed by
// spec.md §4.4/§6.
const DefaultStackSize = 32 * 4096

// pollBudget is not part of the public surface: a 5-second bound on how long
// a simulated "loops without yielding" future may spin, independent of
// handle_timeout firing. No code or test in this package references it; the
// tests use their own literal timeouts.
const pollBudget = 5 * time.Second

func resolveRuntimeOptions(opts []RuntimeOption) (*runtimeOptions, error) {
	cfg := &runtimeOptions{
		stackSize: DefaultStackSize,
		cpuCount:  1,
		logger:    NoOpLogger{},
		host:      NewSimulatedHost,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyRuntime(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.stackSize < 4096 {
		return nil, ErrStackSizeTooSmall
	}
	return cfg, nil
}
