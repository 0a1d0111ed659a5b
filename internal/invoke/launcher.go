package invoke

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"sync"
)

// Outcome is the completion triple of one external command run.
type Outcome struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Handle is one in-flight external command. Done delivers exactly one
// Outcome; Kill is idempotent and safe to call after completion.
type Handle interface {
	Done() <-chan Outcome
	Kill()
}

// Launcher starts external commands. The production implementation is
// ExecLauncher; tests substitute fakes.
type Launcher interface {
	Launch(program string, args []string) (Handle, error)
}

// ExecLauncher runs commands via os/exec. The prompt travels as a command
// argument, so nothing is written to the child's stdin.
type ExecLauncher struct{}

func (ExecLauncher) Launch(program string, args []string) (Handle, error) {
	cmd := exec.Command(program, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", program, err)
	}
	h := &execHandle{cmd: cmd, done: make(chan Outcome, 1)}
	go func() {
		err := cmd.Wait()
		code := 0
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				code = exitErr.ExitCode()
			} else {
				code = -1
			}
		}
		// Buffered channel: the outcome is parked here even if the caller
		// already gave up on this attempt.
		h.done <- Outcome{ExitCode: code, Stdout: stdout.String(), Stderr: stderr.String()}
	}()
	return h, nil
}

type execHandle struct {
	cmd  *exec.Cmd
	done chan Outcome
	kill sync.Once
}

func (h *execHandle) Done() <-chan Outcome { return h.done }

func (h *execHandle) Kill() {
	h.kill.Do(func() {
		if h.cmd.Process != nil {
			_ = h.cmd.Process.Kill()
		}
	})
}
