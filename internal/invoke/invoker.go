package invoke

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/textwand/textwand/internal/provider"
)

// Invoker runs one provider command per attempt and enforces the
// per-attempt deadline. Attempts are strictly sequential within a call; a
// timed-out process is killed before the next attempt starts.
type Invoker struct {
	launcher Launcher
	timeout  time.Duration
}

func NewInvoker(launcher Launcher, timeout time.Duration) *Invoker {
	if launcher == nil {
		launcher = ExecLauncher{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Invoker{launcher: launcher, timeout: timeout}
}

// Timeout returns the per-attempt deadline.
func (iv *Invoker) Timeout() time.Duration { return iv.timeout }

// Invoke expands spec's command template against the prompt, launches it,
// and waits for whichever fires first: completion, the deadline, or ctx
// cancellation. The process never outlives the call.
func (iv *Invoker) Invoke(ctx context.Context, spec provider.Spec, prompt string) Result {
	program, args := spec.Argv(prompt)

	start := time.Now()
	h, err := iv.launcher.Launch(program, args)
	if err != nil {
		observeAttempt(spec.ID, KindProcessError, time.Since(start))
		return failure(KindProcessError, err.Error())
	}

	timer := time.NewTimer(iv.timeout)
	defer timer.Stop()

	select {
	case out := <-h.Done():
		res := classify(out)
		observeAttempt(spec.ID, res.Kind, time.Since(start))
		return res
	case <-timer.C:
		h.Kill()
		observeAttempt(spec.ID, KindTimeout, time.Since(start))
		return failure(KindTimeout, fmt.Sprintf("operation timed out after %ds", int(iv.timeout.Seconds())))
	case <-ctx.Done():
		h.Kill()
		observeAttempt(spec.ID, KindCanceled, time.Since(start))
		return failure(KindCanceled, "operation canceled")
	}
}

func classify(out Outcome) Result {
	stdout := strings.TrimSpace(out.Stdout)
	stderr := strings.TrimSpace(out.Stderr)
	if out.ExitCode == 0 {
		if stdout == "" {
			detail := stderr
			if detail == "" {
				detail = "empty output"
			}
			return failure(KindEmptyResponse, detail)
		}
		return success(stdout)
	}
	detail := stderr
	if detail == "" {
		detail = stdout
	}
	if detail == "" {
		detail = fmt.Sprintf("provider exited with code %d", out.ExitCode)
	}
	return failure(KindProcessError, detail)
}
