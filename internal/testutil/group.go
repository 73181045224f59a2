// Package testutil helps tests that assert from goroutines.
//
// t.Fatal and t.FailNow must not be called off the test goroutine: they
// call runtime.Goexit, which exits the calling goroutine and leaves the
// test hanging instead of failing it. A Group routes goroutine failures
// back to the test goroutine.
package testutil

import (
	"sync"
	"testing"
	"time"
)

// Group runs goroutines whose failures are reported on the test
// goroutine. Functions return errors instead of touching t directly;
// Wait joins them all and fails the test with whatever was recorded.
type Group struct {
	t  *testing.T
	wg sync.WaitGroup

	mu   sync.Mutex
	errs []error
}

// NewGroup creates a group bound to t.
func NewGroup(t *testing.T) *Group {
	return &Group{t: t}
}

// Go runs fn on its own goroutine and records a non-nil return.
func (g *Group) Go(fn func() error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := fn(); err != nil {
			g.mu.Lock()
			g.errs = append(g.errs, err)
			g.mu.Unlock()
		}
	}()
}

// Wait joins every goroutine and reports the recorded errors. Call it
// from the test goroutine, typically deferred.
func (g *Group) Wait() {
	g.t.Helper()
	g.wg.Wait()

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, err := range g.errs {
		g.t.Error(err)
	}
}

// WithTimeout runs fn and fails the test if it has not returned within d.
// It guards tests that could deadlock, at the cost of leaking the stuck
// goroutine.
func WithTimeout(t *testing.T, d time.Duration, fn func()) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()

	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("timed out after %v", d)
	}
}
