package execution

import (
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/deepnoodle-ai/eddy/slogger"
)

// terminateGrace is how long a process group gets to exit after SIGTERM
// before it is killed.
const terminateGrace = 2 * time.Second

// trackedProcess pairs a running command with a channel closed once its
// owner's Wait has returned.
type trackedProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
}

// ProcessTable tracks the process groups spawned by bash blocks so they can
// be terminated in bulk on halt or shutdown. One table is shared across a
// root execution and all of its nested invocations.
type ProcessTable struct {
	mutex  sync.Mutex
	procs  map[int]*trackedProcess
	logger slogger.Logger
}

// NewProcessTable creates an empty table.
func NewProcessTable(logger slogger.Logger) *ProcessTable {
	if logger == nil {
		logger = slogger.DefaultLogger
	}
	return &ProcessTable{
		procs:  map[int]*trackedProcess{},
		logger: logger,
	}
}

// Track registers a started command. The returned release function must be
// called after the command has been waited on; it is safe to call more than
// once.
func (t *ProcessTable) Track(cmd *exec.Cmd) (release func()) {
	if cmd.Process == nil {
		return func() {}
	}
	pid := cmd.Process.Pid
	proc := &trackedProcess{cmd: cmd, done: make(chan struct{})}

	t.mutex.Lock()
	t.procs[pid] = proc
	t.mutex.Unlock()
	t.logger.Debug("tracking bash process", "pid", pid)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(proc.done)
			t.mutex.Lock()
			delete(t.procs, pid)
			t.mutex.Unlock()
			t.logger.Debug("released bash process", "pid", pid)
		})
	}
}

// Len returns the number of live tracked processes.
func (t *ProcessTable) Len() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.procs)
}

// CleanupAll terminates every tracked process group: SIGTERM first, then
// SIGKILL for any group still alive after the grace period. It returns once
// every group has been confirmed dead or given up on.
func (t *ProcessTable) CleanupAll() {
	t.mutex.Lock()
	pids := make([]int, 0, len(t.procs))
	procs := make([]*trackedProcess, 0, len(t.procs))
	for pid, proc := range t.procs {
		pids = append(pids, pid)
		procs = append(procs, proc)
	}
	t.mutex.Unlock()

	if len(procs) == 0 {
		t.logger.Debug("no running bash processes to clean up")
		return
	}
	t.logger.Info("cleaning up running bash processes", "count", len(procs))

	for i, proc := range procs {
		pid := pids[i]
		if err := killGroup(pid, syscall.SIGTERM); err != nil {
			t.logger.Debug("process group already gone", "pid", pid)
			continue
		}
		select {
		case <-proc.done:
			t.logger.Debug("process group terminated gracefully", "pid", pid)
		case <-time.After(terminateGrace):
			t.logger.Warn("process group did not terminate, sending SIGKILL", "pid", pid)
			if err := killGroup(pid, syscall.SIGKILL); err != nil {
				continue
			}
			select {
			case <-proc.done:
			case <-time.After(terminateGrace):
				t.logger.Error("process group survived SIGKILL", "pid", pid)
			}
		}
	}
	t.logger.Info("bash process cleanup complete")
}

// killGroup signals an entire process group. Bash blocks start their
// commands with Setpgid, so the group id equals the leader's pid.
func killGroup(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}

// terminateGroup stops one process group gracefully: SIGTERM, a short grace
// period, then SIGKILL. done must carry the owner's Wait result so death
// can be confirmed.
func terminateGroup(pid int, done <-chan error, logger slogger.Logger) {
	if err := killGroup(pid, syscall.SIGTERM); err != nil {
		return
	}
	select {
	case <-done:
	case <-time.After(terminateGrace):
		logger.Warn("process group did not terminate, sending SIGKILL", "pid", pid)
		if err := killGroup(pid, syscall.SIGKILL); err != nil {
			return
		}
		<-done
	}
}
