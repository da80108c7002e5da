package coordinator

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"
)

// ExecStarter returns a StartFunc that runs binary once per worker with
// the worker's identity passed as flags, followed by extraArgs. Worker
// output goes to the master's stdout and stderr. Canceling the start
// context sends SIGTERM, then kills the process after a grace period.
func ExecStarter(binary string, extraArgs ...string) StartFunc {
	return func(ctx context.Context, spec WorkerSpec) (Process, error) {
		args := append([]string{
			"--id", strconv.Itoa(spec.ID),
			"--port", strconv.Itoa(spec.Port),
			"--partition", string(spec.Partition),
			"--dataset", spec.Dataset,
			"--mbtiles", spec.DatasetPath,
		}, extraArgs...)

		cmd := exec.CommandContext(ctx, binary, args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Env = os.Environ()
		cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
		cmd.WaitDelay = 5 * time.Second

		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return &execProcess{cmd: cmd}, nil
	}
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Pid() int                   { return p.cmd.Process.Pid }
func (p *execProcess) Wait() error                { return p.cmd.Wait() }
func (p *execProcess) Signal(sig os.Signal) error { return p.cmd.Process.Signal(sig) }

// exitCode extracts the process exit code from a Wait error.
// It returns 0 for a clean exit and -1 when no code is available.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
