//go:build linux

package proc

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ja7ad/coreration/pkg/mask"
	"github.com/ja7ad/coreration/pkg/priority"
)

// fakeProc lays out a minimal procfs tree: <root>/<pid>/{comm,cmdline,task/<tid>}.
func fakeProc(t *testing.T, root string, pid int, comm, cmdline string, tids ...int) {
	t.Helper()
	dir := filepath.Join(root, strconv.Itoa(pid))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "task"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "comm"), []byte(comm+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cmdline"), []byte(cmdline), 0o644))
	for _, tid := range tids {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "task", strconv.Itoa(tid)), 0o755))
	}
}

func TestExists(t *testing.T) {
	me := os.Getpid()
	assert.True(t, Exists(DefaultRoot, me), "current PID should exist")
	assert.False(t, Exists(DefaultRoot, 999999999), "very large PID should not exist")

	root := t.TempDir()
	fakeProc(t, root, 5, "sh", "/bin/sh\x00", 5)
	require.NoError(t, os.WriteFile(filepath.Join(root, "6"), nil, 0o644))
	assert.True(t, Exists(root, 5))
	assert.False(t, Exists(root, 6), "a plain file is not a process")
	assert.False(t, Exists(root, 7))
}

func TestListPIDs_Self(t *testing.T) {
	pids, err := ListPIDs(DefaultRoot)
	require.NoError(t, err)
	assert.Contains(t, pids, os.Getpid())
	assert.IsIncreasing(t, pids)
}

func TestReadTasks_Self(t *testing.T) {
	tids, err := ReadTasks(DefaultRoot, os.Getpid())
	require.NoError(t, err)
	assert.Contains(t, tids, os.Getpid(), "main thread id equals the pid")
}

func TestReadTasks_NoSuchPid(t *testing.T) {
	_, err := ReadTasks(DefaultRoot, 999999999)
	require.Error(t, err)
}

func TestReadName_Self(t *testing.T) {
	name, err := ReadName(DefaultRoot, os.Getpid())
	require.NoError(t, err)
	assert.NotEmpty(t, name)
}

func TestReadName_Fixtures(t *testing.T) {
	root := t.TempDir()
	fakeProc(t, root, 10, "bash", "/bin/bash\x00-l\x00", 10)
	fakeProc(t, root, 11, "chromium-browse", "/usr/lib/chromium/chromium-browser\x00--type=gpu\x00", 11)
	fakeProc(t, root, 12, "kworker/0:1-eve", "", 12)
	fakeProc(t, root, 13, "python3.12-conf", "/usr/bin/python3\x00x.py\x00", 13)

	cases := map[int]string{
		10: "bash",
		11: "chromium-browser",
		12: "kworker/0:1-eve",
		13: "python3.12-conf",
	}
	for pid, want := range cases {
		got, err := ReadName(root, pid)
		require.NoError(t, err, "pid %d", pid)
		assert.Equal(t, want, got, "pid %d", pid)
	}

	fakeProc(t, root, 14, "", "")
	_, err := ReadName(root, 14)
	assert.ErrorIs(t, err, ErrNoComm)
}

func TestLister_Fixture(t *testing.T) {
	root := t.TempDir()
	fakeProc(t, root, 1, "init", "/sbin/init\x00", 1)
	fakeProc(t, root, 42, "game", "./game\x00", 42, 43)
	// not a process: non-numeric and a vanished entry without comm
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sys"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "77"), 0o755))

	procs, err := (&Lister{Root: root}).List(context.Background())
	require.NoError(t, err)
	require.Len(t, procs, 2)
	assert.Equal(t, 1, procs[0].PID())
	assert.Equal(t, "init", procs[0].Name())
	assert.Equal(t, 42, procs[1].PID())
	assert.Equal(t, "game", procs[1].Name())
}

func TestLister_SkipLogging(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l := &Lister{Root: t.TempDir(), Logger: log}

	// still present but unreadable
	require.NoError(t, os.MkdirAll(filepath.Join(l.Root, "77"), 0o755))
	l.skip(l.Root, 77, ErrNoComm)
	assert.Contains(t, buf.String(), "level=WARN msg=\"unreadable process\" pid=77")

	buf.Reset()
	l.skip(l.Root, 78, os.ErrNotExist)
	assert.Contains(t, buf.String(), "level=DEBUG msg=\"process exited\" pid=78")
	assert.NotContains(t, buf.String(), "WARN")
}

func TestLister_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLister().List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLister_Self(t *testing.T) {
	procs, err := NewLister().List(context.Background())
	require.NoError(t, err)
	found := false
	for _, p := range procs {
		if p.PID() == os.Getpid() {
			found = true
		}
	}
	assert.True(t, found, "snapshot should contain the test process")
}

func TestNumCores(t *testing.T) {
	n := NumCores()
	assert.Greater(t, n, 0)
	assert.LessOrEqual(t, n, mask.MaxCores)
}

func TestReadCPUList(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}

	n, err := readCPUList(write("eight", "0-7\n"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	n, err = readCPUList(write("sparse", "0,2-3\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = readCPUList(write("wide", "0-255\n"))
	require.NoError(t, err)
	assert.Equal(t, mask.MaxCores, n)

	_, err = readCPUList(write("empty", "\n"))
	assert.ErrorIs(t, err, ErrNoCPUList)

	_, err = readCPUList(write("junk", "abc\n"))
	assert.ErrorIs(t, err, ErrNoCPUList)
}

func TestProcess_SelfAffinityRoundTrip(t *testing.T) {
	p, err := NewProcess(DefaultRoot, os.Getpid())
	require.NoError(t, err)

	cur, err := p.Affinity()
	if err != nil {
		t.Skipf("skipping: sched_getaffinity: %v", err)
	}
	require.True(t, cur.IsSet())

	// re-applying the current mask needs no privilege
	require.NoError(t, p.SetAffinity(cur))
	after, err := p.Affinity()
	require.NoError(t, err)
	assert.Equal(t, cur, after)

	assert.Error(t, p.SetAffinity(0), "an empty mask is refused")
}

func TestProcess_SelfPriorityRoundTrip(t *testing.T) {
	p, err := NewProcess(DefaultRoot, os.Getpid())
	require.NoError(t, err)

	nice, err := p.Nice()
	if err != nil {
		t.Skipf("skipping: getpriority: %v", err)
	}
	require.NoError(t, p.SetPriority(priority.Class(nice)))
	after, err := p.Nice()
	require.NoError(t, err)
	assert.Equal(t, nice, after)
}

func TestProcess_Gone(t *testing.T) {
	_, err := NewProcess(DefaultRoot, 999999999)
	require.Error(t, err)

	p := &Process{root: DefaultRoot, pid: 999999999, name: "ghost"}
	assert.Error(t, p.SetAffinity(0b1))
	assert.Error(t, p.SetPriority(0))
}
