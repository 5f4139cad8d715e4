// Package proc enumerates Linux processes from /proc and changes their CPU
// affinity and scheduling priority. It is the OS side of pkg/enforce: a
// Lister produces enforce.Process values backed by real PIDs.
//
// Overview
//
//   - Lister:
//     List(ctx) ([]enforce.Process, error)
//
//     List reads the numeric entries of /proc and resolves each process
//     name. Processes that exit while being listed are silently dropped; a
//     process that exits after being listed simply makes its setters fail,
//     which enforce treats as a per-process skip.
//
//   - Process names:
//     The name of a process is /proc/<pid>/comm. The kernel truncates comm to
//     15 bytes, so when comm is exactly that long and argv[0] (from
//     /proc/<pid>/cmdline) has a basename starting with comm, the basename is
//     used instead. Matching against profile rules is case-insensitive and
//     happens in pkg/profile.
//
//   - Affinity and priority:
//     Linux keeps both per thread. SetAffinity and SetPriority therefore walk
//     /proc/<pid>/task and apply sched_setaffinity(2) / setpriority(2) to every
//     task id. Failures on individual tasks are joined and returned; threads
//     that exit mid-walk (ESRCH) are ignored.
//
//   - Priority classes:
//     A priority.Class is a nice value, written with PRIO_PROCESS on the task
//     id. Lowering a nice value below the current one needs CAP_SYS_NICE.
//
//   - Core count:
//     NumCores parses /sys/devices/system/cpu/possible with the mask grammar
//     ("0-7") and falls back to runtime.NumCPU, which only counts the cores
//     this process may run on.
//
//   - Errors (errs.go):
//     ErrNoComm    : /proc/<pid>/comm was empty
//     ErrNoTasks   : /proc/<pid>/task listed no threads
//     ErrNoCPUList : the possible-CPU list was empty or malformed
//
// Permissions
//
//   - Listing needs only read access to /proc.
//   - Changing another user's process needs CAP_SYS_NICE (affinity and
//     raising priority) or matching credentials (lowering priority).
//
// Package import path: github.com/ja7ad/coreration/pkg/system/proc
package proc
