// Package limiter enforces execution constraints for agent dispatches:
// per-task and per-case token caps, tool call limits, and plan step
// limits. Exceeding a cap never kills a dispatch mid-flight; callers
// observe the sentinel errors and degrade or stop cleanly.
package limiter

import (
	"fmt"
	"sync"

	"caseflow/pkg/config"
)

var (
	// ErrCaseBudgetExceeded is returned when a case has consumed its
	// lifetime token budget.
	ErrCaseBudgetExceeded = fmt.Errorf("case token budget exceeded")
	// ErrTaskBudgetExceeded is returned when a single task would exceed
	// its token cap.
	ErrTaskBudgetExceeded = fmt.Errorf("task token budget exceeded")
	// ErrToolCallLimit is returned when a dispatch exceeds its tool
	// call allowance.
	ErrToolCallLimit = fmt.Errorf("tool call limit exceeded")
	// ErrPlanStepLimit is returned when a plan has more steps than the
	// dispatch allows.
	ErrPlanStepLimit = fmt.Errorf("plan step limit exceeded")
)

// Limiter tracks cumulative usage per case and hands out dispatch
// scopes that enforce the per-dispatch limits.
type Limiter struct {
	constraints config.ConstraintsCfg
	cases       map[string]*CaseLimiter
	mu          sync.RWMutex
}

// CaseLimiter accumulates token and cost usage over a case lifetime.
type CaseLimiter struct {
	caseID     string
	maxTokens  int
	usedTokens int
	costUSD    float64
	mu         sync.Mutex
}

// Dispatch scopes the per-dispatch counters: tool calls made and plan
// steps allowed. One Dispatch per agent execution.
type Dispatch struct {
	caseLim   *CaseLimiter
	maxTools  int
	maxSteps  int
	taskCap   int
	toolCalls int
	mu        sync.Mutex
}

// NewLimiter creates a limiter with the given constraints.
func NewLimiter(c config.ConstraintsCfg) *Limiter {
	return &Limiter{
		constraints: c,
		cases:       make(map[string]*CaseLimiter),
	}
}

// ForCase returns the case limiter, creating it on first use.
func (l *Limiter) ForCase(caseID string) *CaseLimiter {
	l.mu.RLock()
	cl, ok := l.cases[caseID]
	l.mu.RUnlock()
	if ok {
		return cl
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if cl, ok = l.cases[caseID]; ok {
		return cl
	}
	cl = &CaseLimiter{caseID: caseID, maxTokens: l.constraints.MaxTokensPerCase}
	l.cases[caseID] = cl
	return cl
}

// NewDispatch opens a dispatch scope for a case.
func (l *Limiter) NewDispatch(caseID string) *Dispatch {
	return &Dispatch{
		caseLim:  l.ForCase(caseID),
		maxTools: l.constraints.MaxToolCalls,
		maxSteps: l.constraints.MaxPlanSteps,
		taskCap:  l.constraints.MaxTokensPerTask,
	}
}

// Constraints returns the configured limits.
func (l *Limiter) Constraints() config.ConstraintsCfg { return l.constraints }

// Reserve checks that n more tokens fit inside the case budget.
func (cl *CaseLimiter) Reserve(n int) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.usedTokens+n > cl.maxTokens {
		return fmt.Errorf("%w: case %s used %d of %d, requested %d",
			ErrCaseBudgetExceeded, cl.caseID, cl.usedTokens, cl.maxTokens, n)
	}
	return nil
}

// Commit records actual usage after a generation call completes.
func (cl *CaseLimiter) Commit(tokens int, costUSD float64) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.usedTokens += tokens
	cl.costUSD += costUSD
}

// Usage returns cumulative tokens and cost for the case.
func (cl *CaseLimiter) Usage() (tokens int, costUSD float64) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.usedTokens, cl.costUSD
}

// Remaining returns the unspent portion of the case token budget.
func (cl *CaseLimiter) Remaining() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	rem := cl.maxTokens - cl.usedTokens
	if rem < 0 {
		return 0
	}
	return rem
}

// Exhausted reports whether the case budget has been fully consumed.
func (cl *CaseLimiter) Exhausted() bool { return cl.Remaining() == 0 }

// TaskBudget returns the token allowance for the next task: the task
// cap, clamped to what remains of the case budget. A zero return means
// generation must be skipped for this task.
func (d *Dispatch) TaskBudget() int {
	rem := d.caseLim.Remaining()
	if rem < d.taskCap {
		return rem
	}
	return d.taskCap
}

// ReserveTask checks an intended generation against both caps.
func (d *Dispatch) ReserveTask(tokens int) error {
	if tokens > d.taskCap {
		return fmt.Errorf("%w: requested %d, cap %d", ErrTaskBudgetExceeded, tokens, d.taskCap)
	}
	return d.caseLim.Reserve(tokens)
}

// CountToolCall registers one tool invocation against the dispatch.
func (d *Dispatch) CountToolCall() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.toolCalls >= d.maxTools {
		return fmt.Errorf("%w: %d calls made", ErrToolCallLimit, d.toolCalls)
	}
	d.toolCalls++
	return nil
}

// CheckPlanSteps validates a plan length before execution starts.
func (d *Dispatch) CheckPlanSteps(n int) error {
	if n > d.maxSteps {
		return fmt.Errorf("%w: plan has %d steps, limit %d", ErrPlanStepLimit, n, d.maxSteps)
	}
	return nil
}

// Commit records usage through to the case limiter.
func (d *Dispatch) Commit(tokens int, costUSD float64) {
	d.caseLim.Commit(tokens, costUSD)
}

// CaseRemaining exposes the case budget remaining to task code.
func (d *Dispatch) CaseRemaining() int { return d.caseLim.Remaining() }
