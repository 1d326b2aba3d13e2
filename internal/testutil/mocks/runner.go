// Package mocks provides shared mock implementations for testing.
package mocks

import (
	"context"
	"strings"
	"sync"
)

// RunnerResponse is a canned console response.
type RunnerResponse struct {
	Output string
	Err    error
}

// Runner is a scripted rac.Runner. Responses are matched by command prefix,
// such as "session list" or "cluster list".
type Runner struct {
	mu sync.Mutex

	// Calls records the argument lists of every invocation.
	Calls [][]string

	// Responses maps command prefixes to canned responses.
	Responses map[string]RunnerResponse

	// Queue holds one-shot responses per command prefix, consumed before Responses.
	Queue map[string][]RunnerResponse

	// DefaultResponse is returned when nothing matches.
	DefaultResponse RunnerResponse
}

// NewRunner creates an empty scripted runner.
func NewRunner() *Runner {
	return &Runner{
		Responses: make(map[string]RunnerResponse),
		Queue:     make(map[string][]RunnerResponse),
	}
}

// On sets the persistent response for a command prefix.
func (r *Runner) On(prefix, output string, err error) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Responses[prefix] = RunnerResponse{Output: output, Err: err}
	return r
}

// Once queues a single response for a command prefix.
func (r *Runner) Once(prefix, output string, err error) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Queue[prefix] = append(r.Queue[prefix], RunnerResponse{Output: output, Err: err})
	return r
}

// Run records the call and returns the matching response.
func (r *Runner) Run(ctx context.Context, args []string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Calls = append(r.Calls, append([]string(nil), args...))
	if err := ctx.Err(); err != nil {
		return "", err
	}

	cmd := strings.Join(args, " ")
	prefix := r.match(cmd)
	if queued := r.Queue[prefix]; len(queued) > 0 {
		r.Queue[prefix] = queued[1:]
		return queued[0].Output, queued[0].Err
	}
	if resp, ok := r.Responses[prefix]; ok {
		return resp.Output, resp.Err
	}
	return r.DefaultResponse.Output, r.DefaultResponse.Err
}

// match returns the longest known prefix of cmd.
func (r *Runner) match(cmd string) string {
	best := ""
	consider := func(prefix string) {
		if strings.HasPrefix(cmd, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	for prefix := range r.Responses {
		consider(prefix)
	}
	for prefix := range r.Queue {
		consider(prefix)
	}
	return best
}

// CallsWithPrefix returns recorded calls whose command starts with prefix.
func (r *Runner) CallsWithPrefix(prefix string) [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out [][]string
	for _, call := range r.Calls {
		if strings.HasPrefix(strings.Join(call, " "), prefix) {
			out = append(out, call)
		}
	}
	return out
}

// Reset clears recorded calls and responses.
func (r *Runner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = nil
	r.Responses = make(map[string]RunnerResponse)
	r.Queue = make(map[string][]RunnerResponse)
	r.DefaultResponse = RunnerResponse{}
}
