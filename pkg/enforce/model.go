package enforce

import (
	"context"
	"log/slog"

	"github.com/ja7ad/coreration/pkg/mask"
	"github.com/ja7ad/coreration/pkg/priority"
)

// Process is one running OS process. Each setter may fail independently,
// for instance when the process has exited or is protected.
type Process interface {
	PID() int
	Name() string
	SetAffinity(m mask.CoreMask) error
	SetPriority(c priority.Class) error
}

// Lister takes a snapshot of the running processes.
type Lister interface {
	List(ctx context.Context) ([]Process, error)
}

// ListerFunc adapts a function to Lister.
type ListerFunc func(ctx context.Context) ([]Process, error)

func (f ListerFunc) List(ctx context.Context) ([]Process, error) { return f(ctx) }

// Options tunes an Applier.
//   - Workers: processes handled concurrently within one pass (<= 1 means sequential)
//   - DryRun: log decisions without touching any process
//   - Logger: destination for per-process diagnostics
type Options struct {
	Workers int
	DryRun  bool
	Logger  *slog.Logger
}

// _defaultOptions returns the options used for unset fields.
func _defaultOptions() *Options {
	return &Options{
		Workers: 1,
		DryRun:  false,
		Logger:  slog.Default(),
	}
}
