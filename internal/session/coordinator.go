package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Policy decides what happens to an operation issued while another is in flight.
type Policy int

const (
	// PolicyReject fails the new operation with ErrBusy.
	PolicyReject Policy = iota
	// PolicyQueue makes the new operation wait for the slot.
	PolicyQueue
	// PolicySupersede cancels the pending operation and runs the new one after it.
	PolicySupersede
)

func (p Policy) String() string {
	switch p {
	case PolicyReject:
		return "reject"
	case PolicyQueue:
		return "queue"
	case PolicySupersede:
		return "supersede"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject":
		return PolicyReject, nil
	case "queue":
		return PolicyQueue, nil
	case "supersede":
		return PolicySupersede, nil
	}
	return 0, fmt.Errorf("unknown conflict policy %q (want reject, queue or supersede)", s)
}

var (
	ErrBusy       = errors.New("request already in progress")
	ErrSuperseded = errors.New("request superseded by a newer one")
)

// Coordinator holds the single request slot of a session.
type Coordinator struct {
	policy Policy
	sem    *semaphore.Weighted

	mu       sync.Mutex
	seq      uint64
	arrivals uint64
	cancel   context.CancelCauseFunc
}

func NewCoordinator(policy Policy) *Coordinator {
	return &Coordinator{policy: policy, sem: semaphore.NewWeighted(1)}
}

func (c *Coordinator) Policy() Policy { return c.policy }

// Run executes fn once the slot is held and returns the sequence number the
// operation was admitted with. Sequence numbers grow in admission order.
// Under PolicySupersede fn's context is canceled with ErrSuperseded as the
// cause when a later operation arrives, and an operation still waiting for
// the slot when a later one arrives returns ErrSuperseded without running.
func (c *Coordinator) Run(ctx context.Context, fn func(ctx context.Context) error) (uint64, error) {
	var arrival uint64
	switch c.policy {
	case PolicyReject:
		if !c.sem.TryAcquire(1) {
			return 0, ErrBusy
		}
	case PolicySupersede:
		c.mu.Lock()
		c.arrivals++
		arrival = c.arrivals
		if c.cancel != nil {
			c.cancel(ErrSuperseded)
		}
		c.mu.Unlock()
		fallthrough
	default:
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return 0, err
		}
	}
	defer c.sem.Release(1)

	opCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	c.mu.Lock()
	// A newer operation arrived while this one waited for the slot.
	if c.policy == PolicySupersede && c.arrivals != arrival {
		c.mu.Unlock()
		return 0, ErrSuperseded
	}
	c.seq++
	seq := c.seq
	c.cancel = cancel
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.seq == seq {
			c.cancel = nil
		}
		c.mu.Unlock()
	}()

	err := fn(opCtx)
	if err != nil && errors.Is(context.Cause(opCtx), ErrSuperseded) {
		err = fmt.Errorf("%w: %w", ErrSuperseded, err)
	}
	return seq, err
}
