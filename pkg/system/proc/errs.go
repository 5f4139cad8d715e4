package proc

import "errors"

var (
	// ErrNoComm indicates that /proc/<pid>/comm was empty.
	ErrNoComm = errors.New("proc: empty comm")

	// ErrNoTasks indicates that /proc/<pid>/task listed no threads.
	ErrNoTasks = errors.New("proc: no tasks")

	// ErrNoCPUList indicates that the possible-CPU list was empty or malformed.
	ErrNoCPUList = errors.New("proc: no cpu list")
)
