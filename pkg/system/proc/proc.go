//go:build linux

package proc

import (
	"bytes"
	"errors"
	"fmt"
	"math/bits"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/ja7ad/coreration/pkg/mask"
)

const (
	// DefaultRoot is where procfs is mounted.
	DefaultRoot = "/proc"

	// commLen is TASK_COMM_LEN minus the terminating NUL.
	commLen = 15

	possibleCPUs = "/sys/devices/system/cpu/possible"
)

// Exists reports whether a given PID currently exists under root.
// It simply checks if <root>/<pid> is a valid directory.
func Exists(root string, pid int) bool {
	fi, err := os.Stat(filepath.Join(root, strconv.Itoa(pid)))
	return err == nil && fi.IsDir()
}

// ListPIDs returns the PIDs under root in ascending order.
func ListPIDs(root string) ([]int, error) {
	return numericEntries(root)
}

// ReadTasks returns the thread ids of a process by listing
// <root>/<pid>/task.
func ReadTasks(root string, pid int) ([]int, error) {
	tids, err := numericEntries(filepath.Join(root, strconv.Itoa(pid), "task"))
	if err != nil {
		return nil, err
	}
	if len(tids) == 0 {
		return nil, ErrNoTasks
	}
	return tids, nil
}

// ReadName returns the name used to match a process against profile rules.
//
// It is the comm of the process, replaced by the basename of argv[0] when
// comm is at the kernel's truncation length and argv[0] extends it.
func ReadName(root string, pid int) (string, error) {
	dir := filepath.Join(root, strconv.Itoa(pid))
	b, err := os.ReadFile(filepath.Join(dir, "comm"))
	if err != nil {
		return "", err
	}
	comm := strings.TrimRight(string(b), "\n")
	if comm == "" {
		return "", ErrNoComm
	}
	if len(comm) < commLen {
		return comm, nil
	}

	// Kernel threads have an empty cmdline; keep comm then.
	cmd, err := os.ReadFile(filepath.Join(dir, "cmdline"))
	if err != nil || len(cmd) == 0 {
		return comm, nil
	}
	argv0, _, _ := bytes.Cut(cmd, []byte{0})
	base := filepath.Base(string(argv0))
	if len(base) > len(comm) && strings.HasPrefix(base, comm) {
		return base, nil
	}
	return comm, nil
}

// NumCores returns the number of logical cores of the host.
//
// It reads the kernel's possible-CPU list and falls back to runtime.NumCPU,
// which only counts the cores this process is allowed to run on.
func NumCores() int {
	if n, err := readCPUList(possibleCPUs); err == nil {
		return n
	}
	return runtime.NumCPU()
}

// readCPUList returns highest listed CPU + 1 for a kernel CPU list file.
func readCPUList(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	m, err := mask.Parse(strings.TrimSpace(string(b)), mask.MaxCores)
	if errors.Is(err, mask.ErrRange) {
		// wider than a CoreMask
		return mask.MaxCores, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoCPUList, err)
	}
	if !m.IsSet() {
		return 0, ErrNoCPUList
	}
	return bits.Len64(uint64(m)), nil
}

func numericEntries(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := strconv.Atoi(e.Name())
		if err != nil || id <= 0 {
			continue
		}
		out = append(out, id)
	}
	sort.Ints(out)
	return out, nil
}
