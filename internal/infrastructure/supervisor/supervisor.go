package supervisor

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/chainforge/forged/internal/core/domain"
)

// terminateGrace is how long a process gets to exit after SIGTERM
// before it is killed.
const terminateGrace = 10 * time.Second

// Handle tracks one launched node process until it exits.
type Handle struct {
	ID  string
	cmd *exec.Cmd

	done    chan struct{}
	exitErr error
	logFile *os.File
}

// Exited reports whether the process has terminated, for whatever reason.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// ExitErr returns the error the process exited with. Only meaningful
// after Exited reports true.
func (h *Handle) ExitErr() error {
	return h.exitErr
}

// Pid returns the OS process id.
func (h *Handle) Pid() int {
	return h.cmd.Process.Pid
}

// Supervisor launches and terminates external node processes, making
// sure at most one process runs per handle ID.
type Supervisor struct {
	mu     sync.Mutex
	holder map[string]*Handle
}

func New() *Supervisor {
	return &Supervisor{holder: make(map[string]*Handle)}
}

// LaunchOpts is the struct given to the Launch method
type LaunchOpts struct {
	// ID identifies the process slot, one per (chain, instance) pair.
	ID string
	// Binary is the executable, resolved via PATH when not absolute.
	Binary string
	Args   []string
	// Dir is the process working directory.
	Dir string
	// LogPath captures the process stdout and stderr when set.
	LogPath string
}

func (o LaunchOpts) validate() error {
	if o.ID == "" {
		return fmt.Errorf("%w: process id must not be null", domain.ErrConfig)
	}
	if o.Binary == "" {
		return fmt.Errorf("%w: binary must not be null", domain.ErrConfig)
	}
	return nil
}

// Launch starts the process and begins tracking it. The handle ID must
// not be backed by a live process already.
func (s *Supervisor) Launch(opts LaunchOpts) (*Handle, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.holder[opts.ID]; ok && !h.Exited() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInstanceInUse, opts.ID)
	}

	binary, err := exec.LookPath(opts.Binary)
	if err != nil {
		return nil, fmt.Errorf(
			"%w: binary %q not found in PATH", domain.ErrLaunchFailed, opts.Binary,
		)
	}

	cmd := exec.Command(binary, opts.Args...)
	cmd.Dir = opts.Dir

	var logFile *os.File
	if opts.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.LogPath), 0755); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrLaunchFailed, err)
		}
		logFile, err = os.OpenFile(
			opts.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrLaunchFailed, err)
		}
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrLaunchFailed, err)
	}

	h := &Handle{
		ID:      opts.ID,
		cmd:     cmd,
		done:    make(chan struct{}),
		logFile: logFile,
	}
	s.holder[opts.ID] = h

	go func() {
		h.exitErr = cmd.Wait()
		if h.logFile != nil {
			h.logFile.Close()
		}
		close(h.done)
	}()

	log.WithFields(log.Fields{
		"id":  opts.ID,
		"pid": cmd.Process.Pid,
	}).Debug("launched node process")

	return h, nil
}

// Terminate sends SIGTERM to the process, escalating to SIGKILL after a
// grace period. Terminating an already exited process is not an error.
func (s *Supervisor) Terminate(h *Handle) error {
	if h == nil || h.Exited() {
		s.release(h)
		return nil
	}

	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// the process may have exited in between
		if !h.Exited() {
			return fmt.Errorf("terminating process %s: %v", h.ID, err)
		}
	}

	select {
	case <-h.done:
	case <-time.After(terminateGrace):
		log.WithField("id", h.ID).Warn("process did not exit in time, killing it")
		h.cmd.Process.Kill()
		<-h.done
	}

	s.release(h)
	return nil
}

// Running reports whether a live process is tracked for the given ID.
func (s *Supervisor) Running(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holder[id]
	return ok && !h.Exited()
}

func (s *Supervisor) release(h *Handle) {
	if h == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holder[h.ID] == h {
		delete(s.holder, h.ID)
	}
}

// CheckPortFree reports ErrPortInUse when the TCP port cannot be bound.
func CheckPortFree(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("%w: %d", domain.ErrPortInUse, port)
	}
	ln.Close()
	return nil
}

// WaitReady polls probe until it succeeds, the process exits or the
// attempts run out. A nil sleep uses time.Sleep.
func WaitReady(
	ctx context.Context,
	h *Handle,
	probe func(ctx context.Context) bool,
	attempts int,
	interval time.Duration,
	sleep func(time.Duration),
) error {
	if sleep == nil {
		sleep = time.Sleep
	}

	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if h != nil && h.Exited() {
			return fmt.Errorf(
				"%w: process exited while waiting for readiness: %v",
				domain.ErrLaunchFailed, h.ExitErr(),
			)
		}
		if probe(ctx) {
			return nil
		}
		sleep(interval)
	}

	return fmt.Errorf(
		"%w: after %d attempts every %s", domain.ErrTimedOut, attempts, interval,
	)
}
