// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/tombee-labs/bifrost-engine/internal/config"
	"github.com/tombee-labs/bifrost-engine/internal/kv"
	"github.com/tombee-labs/bifrost-engine/internal/lifecycle"
	applog "github.com/tombee-labs/bifrost-engine/internal/log"
	"github.com/tombee-labs/bifrost-engine/internal/tracing"
)

// ErrCancelled is returned by Execute when the worker was torn down because
// on_cancel_check or H.cancel reported cancellation.
var ErrCancelled = errors.New("pool: execution cancelled")

// ErrTimeout is returned by Execute when the worker exceeded its timeout.
var ErrTimeout = errors.New("pool: execution timed out")

// CancelCheck is polled by the monitor loop; a true return tears the worker
// down the same way an externally-set H.cancel flag does.
type CancelCheck func() bool

// Pool spawns one OS process per execution and supervises it until it exits,
// times out, or is cancelled.
type Pool struct {
	cfg     config.PoolConfig
	kv      kv.Store
	log     *slog.Logger
	metrics *tracing.MetricsCollector

	mu      sync.Mutex
	running map[string]*exec.Cmd

	// argsOverride replaces the normal "--execution-id" invocation in
	// tests, where the worker binary is a plain shell script rather than
	// a real bifrost-worker.
	argsOverride []string
}

// New creates a Pool. metrics may be nil.
func New(cfg config.PoolConfig, store kv.Store, log *slog.Logger, metrics *tracing.MetricsCollector) *Pool {
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		cfg:     cfg,
		kv:      store,
		log:     log,
		metrics: metrics,
		running: make(map[string]*exec.Cmd),
	}
}

// Execute runs the full single-execution lifecycle described for the
// process pool: write context, spawn, monitor, read result, clean up.
// A non-nil error is either ErrCancelled, ErrTimeout, or an infrastructure
// failure (context write, spawn); all other worker-side failures come back
// as an ErrorType-populated *WorkerResult with a nil error, matching the
// "synthesize a failure result" step rather than raising one.
func (p *Pool) Execute(ctx context.Context, executionID, workflowName string, contextData []byte, timeout time.Duration, onCancelCheck CancelCheck) (*WorkerResult, error) {
	if timeout <= 0 {
		timeout = p.cfg.DefaultTimeout
	}

	if err := p.kv.PutContext(ctx, executionID, contextData, time.Hour); err != nil {
		return nil, fmt.Errorf("pool: write context: %w", err)
	}
	defer func() {
		if err := p.kv.Clear(context.Background(), executionID); err != nil {
			p.log.Warn("pool: failed to clear handshake keys", applog.ExecutionIDKey, executionID, "error", err)
		}
	}()

	cmd, err := p.spawn(executionID, workflowName)
	if err != nil {
		return nil, fmt.Errorf("pool: spawn worker: %w", err)
	}

	p.track(executionID, cmd)
	defer p.untrack(executionID)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	outcome, waitErr := p.monitor(ctx, executionID, cmd, timeout, onCancelCheck, done)

	if p.metrics != nil {
		reason := "completed"
		switch outcome {
		case outcomeCancelled:
			reason = "cancelled"
		case outcomeTimedOut:
			reason = "timed_out"
		}
		rss, cpu := resourceUsage(cmd)
		p.metrics.RecordWorkerExit(ctx, workflowName, reason, rss, cpu)
	}

	switch outcome {
	case outcomeCancelled:
		return nil, ErrCancelled
	case outcomeTimedOut:
		return nil, ErrTimeout
	}

	exitCode := exitCodeOf(waitErr)
	data, getErr := p.kv.GetResult(ctx, executionID)
	switch {
	case getErr == nil:
		result, decodeErr := decodeWorkerResult(data)
		if decodeErr != nil {
			return nil, decodeErr
		}
		return result, nil
	case errors.Is(getErr, kv.ErrNotFound) && exitCode != 0:
		return workerCrashResult(exitCode), nil
	case errors.Is(getErr, kv.ErrNotFound):
		return noResultResult(), nil
	default:
		return nil, fmt.Errorf("pool: read result: %w", getErr)
	}
}

// Cancel raises the H.cancel flag an in-flight Execute call's monitor loop
// polls. It is the entry point for externally-requested cancellation (the
// API's cancel endpoint), independent of onCancelCheck.
func (p *Pool) Cancel(ctx context.Context, executionID string) error {
	return p.kv.SetCancel(ctx, executionID, time.Hour)
}

// Shutdown forcibly tears down every worker still tracked by the pool. It
// does not wait for in-flight Execute calls to observe the result; callers
// drain those separately.
func (p *Pool) Shutdown(graceful time.Duration) {
	p.mu.Lock()
	pids := make([]int, 0, len(p.running))
	for _, cmd := range p.running {
		if cmd.Process != nil {
			pids = append(pids, cmd.Process.Pid)
		}
	}
	p.mu.Unlock()

	for _, pid := range pids {
		if err := lifecycle.GracefulShutdown(pid, graceful, true); err != nil && !errors.Is(err, lifecycle.ErrProcessNotRunning) {
			p.log.Warn("pool: shutdown of worker failed", "pid", pid, "error", err)
		}
	}
}

func (p *Pool) track(executionID string, cmd *exec.Cmd) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running[executionID] = cmd
}

func (p *Pool) untrack(executionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.running, executionID)
}

// spawn starts a fresh worker process. Unlike lifecycle.Spawner (used for
// detaching the daemon itself into the background), the pool keeps the
// process attached so cmd.Wait can report the exit code the algorithm's
// crash/no-result synthesis step depends on.
func (p *Pool) spawn(executionID, workflowName string) (*exec.Cmd, error) {
	shortID := executionID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}

	args := p.argsOverride
	if args == nil {
		args = []string{"--execution-id", executionID}
	}
	cmd := exec.Command(p.cfg.WorkerBinary, args...)
	cmd.Args[0] = fmt.Sprintf("bifrost-worker[%s]", shortID)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p.log.Info("pool: worker spawned", applog.ExecutionIDKey, executionID, applog.WorkflowKey, workflowName, "pid", cmd.Process.Pid)
	return cmd, nil
}

type outcome int

const (
	outcomeExited outcome = iota
	outcomeCancelled
	outcomeTimedOut
)

// monitor runs the cancel_check_interval_ms polling loop: check caller
// cancellation, check the externally-set cancel flag, check the timeout,
// check whether the worker already exited. Whichever trips first tears the
// worker down with SIGTERM followed by SIGKILL after the grace window.
func (p *Pool) monitor(ctx context.Context, executionID string, cmd *exec.Cmd, timeout time.Duration, onCancelCheck CancelCheck, done <-chan error) (outcome, error) {
	interval := p.cfg.CancelCheckInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deadline := time.Now().Add(timeout)

	for {
		select {
		case err := <-done:
			return outcomeExited, err

		case <-ticker.C:
			if onCancelCheck != nil && onCancelCheck() {
				p.teardown(executionID, cmd, done)
				return outcomeCancelled, nil
			}
			cancelled, cancelErr := p.kv.IsCancelled(ctx, executionID)
			if cancelErr != nil {
				p.log.Warn("pool: cancel flag check failed", applog.ExecutionIDKey, executionID, "error", cancelErr)
			} else if cancelled {
				p.teardown(executionID, cmd, done)
				return outcomeCancelled, nil
			}
			if time.Now().After(deadline) {
				p.teardown(executionID, cmd, done)
				return outcomeTimedOut, nil
			}
		}
	}
}

// teardown sends SIGTERM, waits for the grace window, and escalates to
// SIGKILL if the worker is still alive.
func (p *Pool) teardown(executionID string, cmd *exec.Cmd, done <-chan error) {
	grace := p.cfg.GracefulShutdown
	if grace <= 0 {
		grace = 3 * time.Second
	}
	pid := cmd.Process.Pid

	if err := lifecycle.SendSignal(pid, syscall.SIGTERM); err != nil {
		p.log.Warn("pool: SIGTERM failed", applog.ExecutionIDKey, executionID, "pid", pid, "error", err)
	}

	select {
	case <-done:
		return
	case <-time.After(grace):
	}

	if !lifecycle.IsProcessRunning(pid) {
		return
	}
	if !lifecycle.IsWorkerProcess(pid) {
		// The PID has already been recycled by the OS for an unrelated
		// process during the grace window; signaling it would kill the
		// wrong thing.
		p.log.Warn("pool: pid no longer looks like a worker, skipping SIGKILL", applog.ExecutionIDKey, executionID, "pid", pid)
		return
	}
	p.log.Warn("pool: worker did not exit within grace window, sending SIGKILL", applog.ExecutionIDKey, executionID, "pid", pid)
	if err := lifecycle.SendSignal(pid, syscall.SIGKILL); err != nil {
		p.log.Warn("pool: SIGKILL failed", applog.ExecutionIDKey, executionID, "pid", pid, "error", err)
	}
	<-done
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// resourceUsage extracts the child's CPU totals from its wait status, where
// the platform exposes them. RSS is not available from cmd.ProcessState
// portably, so it is always 0 here; the worker runtime reports the
// authoritative peak RSS inside WorkerResult.ResourceMetrics.
func resourceUsage(cmd *exec.Cmd) (peakRSSBytes int64, cpuTotalSeconds float64) {
	if cmd.ProcessState == nil {
		return 0, 0
	}
	return 0, cmd.ProcessState.UserTime().Seconds() + cmd.ProcessState.SystemTime().Seconds()
}
