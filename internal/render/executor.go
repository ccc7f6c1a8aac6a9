package render

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// Stream identifies which output of the child a line came from.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Executor runs a renderer command to completion. Implementations must drain
// both output streams, stop the process when ctx ends and reap it before
// returning.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onLine func(Stream, string)) error
}

// defaultTermGrace is how long a terminated renderer gets before SIGKILL.
const defaultTermGrace = 5 * time.Second

type commandExecutor struct {
	grace time.Duration
}

// Run starts binary in its own process group. Stdout and stderr are drained
// by independent goroutines. When ctx ends the group receives SIGTERM and,
// if it is still alive after the grace period, SIGKILL. The returned error is
// ctx.Err() when the run was stopped, the *exec.ExitError for a non-zero
// exit, or nil.
func (e commandExecutor) Run(ctx context.Context, binary string, args []string, onLine func(Stream, string)) error {
	cmd := exec.Command(binary, args...) //nolint:gosec
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start renderer: %w", err)
	}

	exited := make(chan struct{})
	var supervisor sync.WaitGroup
	supervisor.Add(1)
	go func() {
		defer supervisor.Done()
		select {
		case <-exited:
		case <-ctx.Done():
			terminateGroup(cmd.Process.Pid, exited, e.graceOrDefault())
		}
	}()

	var drains errgroup.Group
	drains.Go(func() error { return drain(stdout, Stdout, onLine) })
	drains.Go(func() error { return drain(stderr, Stderr, onLine) })
	drainErr := drains.Wait()

	waitErr := cmd.Wait()
	close(exited)
	supervisor.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if waitErr != nil {
		return waitErr
	}
	if drainErr != nil {
		return fmt.Errorf("read renderer output: %w", drainErr)
	}
	return nil
}

func (e commandExecutor) graceOrDefault() time.Duration {
	if e.grace > 0 {
		return e.grace
	}
	return defaultTermGrace
}

// terminateGroup sends SIGTERM to the process group and escalates to SIGKILL
// unless exited closes within grace.
func terminateGroup(pid int, exited <-chan struct{}, grace time.Duration) {
	_ = unix.Kill(-pid, unix.SIGTERM)
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-exited:
	case <-timer.C:
		_ = unix.Kill(-pid, unix.SIGKILL)
	}
}

func drain(r io.Reader, stream Stream, onLine func(Stream, string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || onLine == nil {
			continue
		}
		onLine(stream, line)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		// Keep the pipe empty so the child never blocks on a full buffer.
		_, _ = io.Copy(io.Discard, r)
		return err
	}
	return nil
}
