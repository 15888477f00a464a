package sandbox

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/codemcp-dev/codemcp/internal/apperrors"
)

// watchdogInterval bounds how often the memory watchdog samples heap usage.
// This also bounds the worst-case latency of a memory-limit trip.
const watchdogInterval = 10 * time.Millisecond

// Execution owns one script's VM and the resource accounting bound to it
// (§3 ExecutionContext, §4.5 resource bounds). No two executions share VM
// state.
type Execution struct {
	cfg   Config
	L     *lua.LState
	start time.Time

	logMu sync.Mutex
	logs  []string

	apiCalls int64 // atomic

	failReason atomic.Value       // holds error
	cancel     context.CancelFunc // set for the duration of Run
}

// New creates a fresh VM and Execution for one script run. sdk is the set of
// already-bound SDK callables to expose under the `sdk` table.
func New(cfg Config, sdk map[string]lua.LGFunction) *Execution {
	e := &Execution{cfg: cfg}
	e.L = newState(sdk, e.appendLog)
	return e
}

func (e *Execution) appendLog(line string) {
	e.logMu.Lock()
	defer e.logMu.Unlock()
	e.logs = append(e.logs, line)
}

// Logs returns the captured log lines in call order (§3 ExecutionResult).
func (e *Execution) Logs() []string {
	e.logMu.Lock()
	defer e.logMu.Unlock()
	out := make([]string, len(e.logs))
	copy(out, e.logs)
	return out
}

// APICalls returns the number of upstream dispatch attempts made so far.
func (e *Execution) APICalls() int {
	return int(atomic.LoadInt64(&e.apiCalls))
}

// DurationMS returns elapsed wall-clock time since Run started.
func (e *Execution) DurationMS() int64 {
	return time.Since(e.start).Milliseconds()
}

// ReserveAPICall increments the call counter and enforces the configured cap
// (§4.5 API-call counter, §4.6 step 7). Call this before dispatching, not
// after: the counter counts attempts, not successes (§9). A cap breach
// aborts the execution; the returned error is for the caller's own control
// flow, not something a script can recover from.
func (e *Execution) ReserveAPICall() error {
	n := atomic.AddInt64(&e.apiCalls, 1)
	if e.cfg.MaxAPICalls > 0 && n > int64(e.cfg.MaxAPICalls) {
		err := &apperrors.ApiCallLimitExceeded{Limit: e.cfg.MaxAPICalls}
		e.Abort(err)
		return err
	}
	return nil
}

// Abort marks the execution as uncatchably failed and cancels its context,
// interrupting the VM at its next instruction or call boundary regardless of
// any pcall the script wrapped around the triggering call (§4.5, §7
// propagation rule).
func (e *Execution) Abort(err error) {
	e.failReason.Store(err)
	if e.cancel != nil {
		e.cancel()
	}
}

// RemainingDeadline returns the time left before the execution's wall-clock
// deadline, for the dispatcher to bound a single upstream call (§4.7).
func (e *Execution) RemainingDeadline() time.Duration {
	elapsed := time.Since(e.start)
	remaining := e.cfg.Timeout - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Run compiles and executes script under the execution's resource bounds,
// returning the script's single return value converted to a Go value.
func (e *Execution) Run(script string) (interface{}, error) {
	e.start = time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Timeout)
	defer cancel()
	e.cancel = cancel
	e.L.SetContext(ctx)

	stopWatchdog := make(chan struct{})
	if e.cfg.MemoryLimitMB > 0 {
		go e.watchMemory(ctx, stopWatchdog)
	} else {
		close(stopWatchdog)
	}
	defer func() {
		select {
		case <-stopWatchdog:
		default:
			close(stopWatchdog)
		}
	}()

	fn, err := e.L.LoadString(script)
	if err != nil {
		return nil, &apperrors.ScriptError{Message: err.Error()}
	}
	e.L.Push(fn)
	callErr := e.L.PCall(0, 1, nil)

	// A VM-level cancellation (timeout, memory, api-call cap) is uncatchable:
	// it overrides any result the script produced, even if the script wrapped
	// the triggering call in its own pcall and returned normally afterward.
	if reason := e.failReason.Load(); reason != nil {
		return nil, reason.(error)
	}

	if callErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &apperrors.Timeout{DeadlineMS: e.cfg.Timeout.Milliseconds()}
		}
		return nil, &apperrors.ScriptError{Message: callErr.Error()}
	}

	ret := e.L.Get(-1)
	e.L.Pop(1)
	return ToGoValue(ret), nil
}

// Close releases the VM's resources. Always call after Run.
func (e *Execution) Close() {
	e.L.Close()
}

// watchMemory approximates the memory quota by sampling process heap growth
// since the execution started. gopher-lua has no native per-VM memory
// accounting, so this is a coarse proxy: it reflects the whole process's
// heap, not this VM's allocations in isolation.
func (e *Execution) watchMemory(ctx context.Context, stop chan struct{}) {
	limit := uint64(e.cfg.MemoryLimitMB) * 1024 * 1024
	var base runtime.MemStats
	runtime.ReadMemStats(&base)
	startHeap := base.HeapAlloc

	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			if stats.HeapAlloc > startHeap && stats.HeapAlloc-startHeap > limit {
				e.Abort(&apperrors.Memory{LimitMB: e.cfg.MemoryLimitMB})
				return
			}
		}
	}
}
