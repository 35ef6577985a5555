// Package llmtest provides a scripted llm.Completer for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"
)

// Call records one Complete invocation.
type Call struct {
	System string
	User   string
}

type reply struct {
	text string
	err  error
}

// Scripted returns queued replies in order and records every prompt it
// receives. A call with nothing queued fails the test's expectations by
// returning an error.
type Scripted struct {
	mu      sync.Mutex
	replies []reply
	calls   []Call
}

// New returns a Scripted completer that will answer with responses in order.
func New(responses ...string) *Scripted {
	s := &Scripted{}
	for _, r := range responses {
		s.Reply(r)
	}
	return s
}

// Reply queues a text response.
func (s *Scripted) Reply(text string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, reply{text: text})
	return s
}

// Fail queues an error response.
func (s *Scripted) Fail(err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, reply{err: err})
	return s
}

func (s *Scripted) Complete(_ context.Context, system, user string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{System: system, User: user})
	if len(s.replies) == 0 {
		return "", fmt.Errorf("llmtest: unexpected call %d, no scripted reply", len(s.calls))
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r.text, r.err
}

// Calls returns the recorded calls.
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Remaining returns the number of unused replies.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.replies)
}
