// Package monitor keeps a profile enforced while processes come and go.
//
// Every interval the monitor takes a snapshot, applies the profile to the
// processes it has not seen on the previous tick, and forgets the rest.
// A process is enforced once per observed lifetime: if its affinity or
// priority is changed afterwards, by the user or by the process itself,
// the monitor leaves it alone.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ja7ad/coreration/pkg/enforce"
	"github.com/ja7ad/coreration/pkg/profile"
)

// ErrRunning indicates Start on a monitor that is already armed.
var ErrRunning = errors.New("monitor: already running")

// Options tunes a Monitor.
type Options struct {
	Logger *slog.Logger
}

// Monitor is Idle until Start succeeds and Armed until Stop. It is safe
// for concurrent use; ticks never overlap.
type Monitor struct {
	lister  enforce.Lister
	applier *enforce.Applier
	log     *slog.Logger

	mu  sync.Mutex
	run *run // nil while Idle
}

// run is the state of one Armed period.
type run struct {
	compiled *profile.Compiled
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}

	// previous is only touched by the tick in flight.
	previous map[int]struct{}
}

// New creates an idle monitor.
func New(l enforce.Lister, a *enforce.Applier, opts *Options) *Monitor {
	log := slog.Default()
	if opts != nil && opts.Logger != nil {
		log = opts.Logger
	}
	if a == nil {
		a = enforce.New(&enforce.Options{Logger: log})
	}
	return &Monitor{lister: l, applier: a, log: log}
}

// Start compiles raw for a host with numCores cores and arms the monitor.
//
// The first tick runs before Start returns; later ticks follow every
// raw.Interval() until Stop is called or ctx is done. On error the monitor
// stays Idle.
func (m *Monitor) Start(ctx context.Context, raw profile.Raw, numCores int) error {
	m.mu.Lock()
	if m.run != nil && !m.run.finished() {
		m.mu.Unlock()
		return ErrRunning
	}

	interval, err := raw.Interval()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	compiled, err := profile.Compile(raw, numCores)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	r := &run{
		compiled: compiled,
		interval: interval,
		cancel:   cancel,
		done:     make(chan struct{}),
		previous: make(map[int]struct{}),
	}
	m.run = r
	m.mu.Unlock()

	// r is not shared with the loop yet; Stop only waits on r.done.
	m.log.Info("monitor started", "profile", compiled.Name(), "interval", interval, "rules", compiled.Len())
	m.tick(ctx, r)
	go m.loop(ctx, r)
	return nil
}

// Stop disarms the monitor and waits for an in-flight tick to finish.
// Stopping an idle monitor is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	r := m.run
	m.run = nil
	m.mu.Unlock()

	if r == nil {
		return
	}
	r.cancel()
	<-r.done
	m.log.Info("monitor stopped", "profile", r.compiled.Name())
}

// Running reports whether the monitor is Armed.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.run != nil && !m.run.finished()
}

// Done returns a channel closed when the current run ends, either through
// Stop or because the context given to Start was cancelled. For an idle
// monitor the channel is already closed.
func (m *Monitor) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return m.run.done
}

func (m *Monitor) loop(ctx context.Context, r *run) {
	defer close(r.done)

	// A Ticker drops firings while the receiver is busy, so a slow tick
	// delays the next one instead of overlapping with it.
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx, r)
		}
	}
}

// tick applies the profile to processes first seen in this snapshot and
// replaces the seen set with the snapshot. A failed snapshot keeps the
// previous set.
func (m *Monitor) tick(ctx context.Context, r *run) {
	procs, err := m.lister.List(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.log.Warn("snapshot error", "err", err)
		}
		return
	}

	current := make(map[int]struct{}, len(procs))
	var fresh []enforce.Process
	for _, p := range procs {
		current[p.PID()] = struct{}{}
		if _, seen := r.previous[p.PID()]; !seen {
			fresh = append(fresh, p)
		}
	}

	m.applier.ApplyEach(ctx, r.compiled, fresh)
	r.previous = current

	m.log.Debug("tick", "processes", len(procs), "new", len(fresh))
}

func (r *run) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}
