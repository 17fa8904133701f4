package runner

import (
	"context"
	"sync"
)

// Call records one invocation seen by a Fake.
type Call struct {
	Name string
	Args []string
}

// Fake is an in-memory Runner for tests. Fn decides the output of each call.
type Fake struct {
	Fn func(name string, args []string) (stdout []byte, err error)

	mu    sync.Mutex
	calls []Call
}

func (f *Fake) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Name: name, Args: append([]string(nil), args...)})
	f.mu.Unlock()
	if f.Fn == nil {
		return nil, nil, nil
	}
	out, err := f.Fn(name, args)
	return out, nil, err
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}
