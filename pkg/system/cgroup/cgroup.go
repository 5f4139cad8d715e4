//go:build linux

// Package cgroup detects the cgroup layout of the host and the cpuset the
// current process is confined to. Affinity requests outside that cpuset
// fail with EINVAL, so callers use it to warn about profiles that reach
// past it.
package cgroup

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ja7ad/coreration/pkg/mask"
)

type Version int

const (
	Unsupported Version = iota // non-Linux or no cgroup mounts
	V1                         // legacy multi-hierarchy cgroup v1
	V2                         // unified cgroup v2
	Hybrid                     // both v1 and v2 present
)

const (
	mountInfoPath = "/proc/self/mountinfo"
	selfCgroup    = "/proc/self/cgroup"

	// DefaultRoot is where the cgroup hierarchies are mounted.
	DefaultRoot = "/sys/fs/cgroup"
)

func (v Version) String() string {
	switch v {
	case V1:
		return "cgroup v1"
	case V2:
		return "cgroup v2"
	case Hybrid:
		return "cgroup hybrid"
	default:
		return "unsupported"
	}
}

// Detect returns the detected cgroup version and a human-readable detail string.
//
// It parses /proc/self/mountinfo looking for cgroup filesystems.
// The line format has a " - fstype " separator; we only care about fstype.
func Detect() (Version, string, error) {
	f, err := os.Open(mountInfoPath)
	if err != nil {
		return Unsupported, "", fmt.Errorf("open mountinfo: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return detect(f)
}

func detect(r io.Reader) (Version, string, error) {
	var (
		hasV1 bool
		hasV2 bool
		v1Pts []string
		v2Pts []string
		sc    = bufio.NewScanner(r)
	)
	for sc.Scan() {
		line := sc.Text()
		// mountinfo has: <fields> - <fstype> <source> <superopts>
		sep := " - "
		i := strings.LastIndex(line, sep)
		if i < 0 {
			continue
		}
		fields := strings.Fields(line[i+len(sep):])
		if len(fields) < 1 {
			continue
		}
		fstype := fields[0]

		// Mount point is field 5 of the pre-separator part (man 5 proc).
		pre := strings.Fields(line[:i])
		if len(pre) < 5 {
			continue
		}
		mountPoint := pre[4]

		switch fstype {
		case "cgroup2":
			hasV2 = true
			v2Pts = append(v2Pts, mountPoint)
		case "cgroup":
			hasV1 = true
			v1Pts = append(v1Pts, mountPoint)
		}
	}
	if err := sc.Err(); err != nil {
		return Unsupported, "", fmt.Errorf("scan mountinfo: %w", err)
	}

	switch {
	case hasV1 && hasV2:
		return Hybrid, fmt.Sprintf("cgroup2 on %v; cgroup v1 on %v",
			strings.Join(v2Pts, ","), strings.Join(v1Pts, ",")), nil
	case hasV2:
		return V2, fmt.Sprintf("cgroup2 on %v", strings.Join(v2Pts, ",")), nil
	case hasV1:
		return V1, fmt.Sprintf("cgroup v1 on %v", strings.Join(v1Pts, ",")), nil
	default:
		return Unsupported, "no cgroup mounts found", nil
	}
}

// EffectiveCPUs returns the cpuset the current process is confined to.
// ok is false when the host exposes no cpuset controller for it.
func EffectiveCPUs(ver Version, numCores int) (m mask.CoreMask, ok bool, err error) {
	b, err := os.ReadFile(selfCgroup)
	if err != nil {
		return 0, false, fmt.Errorf("read %s: %w", selfCgroup, err)
	}
	return effectiveCPUs(string(b), DefaultRoot, ver, numCores)
}

// effectiveCPUs resolves the cpuset file for the membership listed in
// procCgroup (the content of /proc/self/cgroup) under root.
func effectiveCPUs(procCgroup, root string, ver Version, numCores int) (mask.CoreMask, bool, error) {
	var candidates []string
	for _, line := range strings.Split(procCgroup, "\n") {
		// hierarchy-ID:controller-list:cgroup-path
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			continue
		}
		ctrl, path := parts[1], parts[2]
		switch {
		case (ver == V2 || ver == Hybrid) && parts[0] == "0" && ctrl == "":
			candidates = append(candidates,
				filepath.Join(root, path, "cpuset.cpus.effective"),
				filepath.Join(root, "unified", path, "cpuset.cpus.effective"))
		case (ver == V1 || ver == Hybrid) && hasController(ctrl, "cpuset"):
			candidates = append(candidates, filepath.Join(root, "cpuset", path, "cpuset.effective_cpus"))
		}
	}

	for _, c := range candidates {
		b, err := os.ReadFile(c)
		if err != nil {
			continue
		}
		s := strings.TrimSpace(string(b))
		if s == "" {
			continue
		}
		m, err := mask.Parse(s, numCores)
		if err != nil {
			return 0, false, fmt.Errorf("%s: %w", c, err)
		}
		return m, true, nil
	}
	return 0, false, nil
}

func hasController(list, name string) bool {
	for _, c := range strings.Split(list, ",") {
		if c == name {
			return true
		}
	}
	return false
}
