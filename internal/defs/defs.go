// Package defs holds the small, dependency-free vocabulary types shared by
// every kernel package: error codes, process/file identifiers, and signal
// numbers.
package defs

// Err_t is a kernel error code. Zero means success; a positive value
// names one of the constants below. Recoverable failures are always
// returned this way rather than via panic.
type Err_t int

const (
	EFAULT      Err_t = 1  /// bad user address
	ENOMEM      Err_t = 2  /// allocator or table exhaustion
	ENOENT      Err_t = 3  /// path not found
	EINVAL      Err_t = 4  /// invalid argument
	ENAMETOOLONG Err_t = 5 /// path component too long
	EMFILE      Err_t = 6  /// per-process fd table full
	ENFILE      Err_t = 7  /// global open-file table full
	ECHILD      Err_t = 8  /// wait() with no matching child
	ESRCH       Err_t = 9  /// no such process
)

// Pid_t identifies a process-table slot. Pid 0 is the idle process, pid 1
// is init.
type Pid_t int

// Fd_t identifies a slot in a process's file-descriptor table.
type Fd_t int

// Event_t tags a sleeper/waker pair. NoEvent means "not sleeping on
// anything in particular" and must never match a real wake.
type Event_t int

const NoEvent Event_t = 0

// Signum_t is a signal number, 1..TotalSignals-1 inclusive.
type Signum_t int

const (
	SIGNONE Signum_t = 0
	SIGHUP  Signum_t = 1
	SIGINT  Signum_t = 2
	SIGKILL Signum_t = 3
	SIGTERM Signum_t = 4
	SIGCHLD Signum_t = 5

	TotalSignals = 6
)

// WaitOption_t controls wait()'s blocking behavior.
type WaitOption_t int

const WNOHANG WaitOption_t = 1
