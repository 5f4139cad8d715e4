// Package enforce applies compiled profiles to running processes.
//
// Enforcement is best-effort per (process, operation): a failure to set
// the priority or affinity of one process is logged at debug level and
// skipped, and the pass carries on with the rest. Only taking the process
// snapshot can fail a pass.
package enforce

import (
	"context"
	"fmt"
	"sync"

	"github.com/ja7ad/coreration/pkg/mask"
	"github.com/ja7ad/coreration/pkg/priority"
	"github.com/ja7ad/coreration/pkg/profile"
)

// Applier pushes compiled profiles onto processes. It holds no per-pass
// state and is safe for concurrent use.
type Applier struct {
	opts *Options
}

// New creates an applier. Zero fields in opts fall back to defaults.
func New(opts *Options) *Applier {
	base := _defaultOptions()
	if opts == nil {
		return &Applier{opts: base}
	}

	merged := *base
	if opts.Workers > 0 {
		merged.Workers = opts.Workers
	}
	if opts.Logger != nil {
		merged.Logger = opts.Logger
	}
	merged.DryRun = opts.DryRun

	return &Applier{opts: &merged}
}

// Apply enforces c on a single process.
//
// A process whose name matches a rule gets the rule's priority class and
// core mask, each only if the rule sets one. Any other process gets the
// profile's default mask, if set, and keeps its priority.
func (a *Applier) Apply(c *profile.Compiled, p Process) {
	if r, ok := c.Lookup(p.Name()); ok {
		if cl, ok := r.Priority(); ok {
			a.setPriority(p, cl)
		}
		if m, ok := r.Affinity(); ok {
			a.setAffinity(p, m)
		}
		return
	}
	if m, ok := c.Default(); ok {
		a.setAffinity(p, m)
	}
}

// ApplyEach enforces c on every process in procs.
func (a *Applier) ApplyEach(ctx context.Context, c *profile.Compiled, procs []Process) {
	a.each(ctx, procs, func(p Process) { a.Apply(c, p) })
}

// ApplyAll takes a fresh snapshot and enforces c on every process in it.
func (a *Applier) ApplyAll(ctx context.Context, c *profile.Compiled, l Lister) error {
	procs, err := l.List(ctx)
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}
	a.ApplyEach(ctx, c, procs)
	return nil
}

// RevertAll resets every running process to all numCores cores. Priority is
// never touched: the previous class of a process is not recoverable.
func (a *Applier) RevertAll(ctx context.Context, l Lister, numCores int) error {
	full := mask.Full(numCores)
	if !full.IsSet() {
		return mask.ErrNoCores
	}
	procs, err := l.List(ctx)
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}
	a.each(ctx, procs, func(p Process) { a.setAffinity(p, full) })
	return nil
}

// each runs fn over procs, in parallel when Workers > 1. It stops handing
// out work once ctx is done.
func (a *Applier) each(ctx context.Context, procs []Process, fn func(Process)) {
	if a.opts.Workers <= 1 {
		for _, p := range procs {
			if ctx.Err() != nil {
				return
			}
			fn(p)
		}
		return
	}

	semaphore := make(chan struct{}, a.opts.Workers)
	var wg sync.WaitGroup
	for _, p := range procs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		semaphore <- struct{}{} // Acquire
		go func(p Process) {
			defer wg.Done()
			defer func() { <-semaphore }() // Release
			fn(p)
		}(p)
	}
	wg.Wait()
}

func (a *Applier) setPriority(p Process, c priority.Class) {
	log := a.opts.Logger.With("pid", p.PID(), "name", p.Name(), "op", "priority", "class", c.String())
	if a.opts.DryRun {
		log.Info("dry-run")
		return
	}
	if err := p.SetPriority(c); err != nil {
		log.Debug("skip", "err", err)
	}
}

func (a *Applier) setAffinity(p Process, m mask.CoreMask) {
	log := a.opts.Logger.With("pid", p.PID(), "name", p.Name(), "op", "affinity", "cores", m.String())
	if a.opts.DryRun {
		log.Info("dry-run")
		return
	}
	if err := p.SetAffinity(m); err != nil {
		log.Debug("skip", "err", err)
	}
}
