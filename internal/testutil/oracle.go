package testutil

import (
	"context"
	"sync"

	"askallery/internal/gate"
)

// FakeOracle replays scripted labels and errors, one per call. Once the
// script is exhausted the last entry repeats.
type FakeOracle struct {
	mu     sync.Mutex
	Labels []string
	Errors []error
	calls  int
}

// NewFakeOracle returns an oracle that always answers label.
func NewFakeOracle(label string) *FakeOracle {
	return &FakeOracle{Labels: []string{label}}
}

// Classify implements gate.Oracle.
func (f *FakeOracle) Classify(ctx context.Context, _ gate.Image) (string, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if n := len(f.Errors); n > 0 {
		if err := f.Errors[min(i, n-1)]; err != nil {
			return "", err
		}
	}
	if n := len(f.Labels); n > 0 {
		return f.Labels[min(i, n-1)], nil
	}
	return "", nil
}

// Calls reports how many times Classify ran.
func (f *FakeOracle) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
