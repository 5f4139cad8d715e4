//go:build linux

package proc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/ja7ad/coreration/pkg/enforce"
	"github.com/ja7ad/coreration/pkg/mask"
	"github.com/ja7ad/coreration/pkg/priority"
)

// Process is a running process found under a procfs root.
type Process struct {
	root string
	pid  int
	name string
}

// NewProcess resolves pid under root. It fails when the process is gone.
func NewProcess(root string, pid int) (*Process, error) {
	name, err := ReadName(root, pid)
	if err != nil {
		return nil, err
	}
	return &Process{root: root, pid: pid, name: name}, nil
}

func (p *Process) PID() int     { return p.pid }
func (p *Process) Name() string { return p.name }

// SetAffinity restricts every thread of the process to the cores in m.
func (p *Process) SetAffinity(m mask.CoreMask) error {
	if !m.IsSet() {
		return fmt.Errorf("pid %d: empty core mask", p.pid)
	}
	var set unix.CPUSet
	set.Zero()
	for _, c := range m.Cores() {
		set.Set(c)
	}
	return p.eachTask(func(tid int) error { return unix.SchedSetaffinity(tid, &set) })
}

// SetPriority sets the nice value of every thread of the process.
func (p *Process) SetPriority(c priority.Class) error {
	return p.eachTask(func(tid int) error { return unix.Setpriority(unix.PRIO_PROCESS, tid, c.Nice()) })
}

// Affinity returns the core mask of the main thread.
func (p *Process) Affinity() (mask.CoreMask, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(p.pid, &set); err != nil {
		return 0, err
	}
	var m mask.CoreMask
	for c := 0; c < mask.MaxCores; c++ {
		if set.IsSet(c) {
			m |= 1 << c
		}
	}
	return m, nil
}

// Nice returns the nice value of the main thread.
func (p *Process) Nice() (int, error) {
	// the raw syscall returns 20 - nice
	v, err := unix.Getpriority(unix.PRIO_PROCESS, p.pid)
	if err != nil {
		return 0, err
	}
	return 20 - v, nil
}

func (p *Process) eachTask(fn func(tid int) error) error {
	tids, err := ReadTasks(p.root, p.pid)
	if err != nil {
		return fmt.Errorf("pid %d: %w", p.pid, err)
	}
	var errs []error
	for _, tid := range tids {
		err := fn(tid)
		if err == nil || errors.Is(err, unix.ESRCH) {
			continue
		}
		errs = append(errs, fmt.Errorf("tid %d: %w", tid, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("pid %d: %w", p.pid, errors.Join(errs...))
	}
	return nil
}

// Lister snapshots the processes under a procfs root.
type Lister struct {
	Root   string
	Logger *slog.Logger
}

// NewLister returns a Lister over DefaultRoot.
func NewLister() *Lister {
	return &Lister{Root: DefaultRoot, Logger: slog.Default()}
}

// List implements enforce.Lister.
func (l *Lister) List(ctx context.Context) ([]enforce.Process, error) {
	root := l.Root
	if root == "" {
		root = DefaultRoot
	}
	pids, err := ListPIDs(root)
	if err != nil {
		return nil, err
	}

	out := make([]enforce.Process, 0, len(pids))
	for _, pid := range pids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := NewProcess(root, pid)
		if err != nil {
			l.skip(root, pid, err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// skip logs a process left out of the snapshot. One that exited between
// readdir and read is routine; one still present is not.
func (l *Lister) skip(root string, pid int, err error) {
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}
	if Exists(root, pid) {
		log.Warn("unreadable process", "pid", pid, "err", err)
		return
	}
	log.Debug("process exited", "pid", pid)
}

var _ enforce.Lister = (*Lister)(nil)
var _ enforce.Process = (*Process)(nil)
