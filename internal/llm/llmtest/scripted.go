// Package llmtest provides a scripted llm.Generator for tests.
package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/ppiankov/paperproof/internal/llm"
)

// Call records one request made against a Scripted generator
type Call struct {
	Prompt  string
	System  string
	History []llm.Message
	Model   string
	JSON    bool
}

// Responder produces the reply for a call. Returning an error simulates a
// backend failure.
type Responder func(call Call) (string, error)

// Scripted is a concurrency-safe fake generator
type Scripted struct {
	mu        sync.Mutex
	responder Responder
	calls     []Call
}

// New creates a generator that answers with responder
func New(responder Responder) *Scripted {
	return &Scripted{responder: responder}
}

// Fixed returns a generator that always answers reply
func Fixed(reply string) *Scripted {
	return New(func(Call) (string, error) { return reply, nil })
}

// Failing returns a generator whose every call fails with err
func Failing(err error) *Scripted {
	if err == nil {
		err = errors.New("backend unavailable")
	}
	return New(func(Call) (string, error) { return "", err })
}

// Sequence answers calls in order, repeating the last reply once exhausted
func Sequence(replies ...string) *Scripted {
	var mu sync.Mutex
	i := 0
	return New(func(Call) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(replies) == 0 {
			return "", nil
		}
		r := replies[min(i, len(replies)-1)]
		i++
		return r, nil
	})
}

// Route is one prompt-substring to reply mapping used by Router
type Route struct {
	Contains string
	Reply    string
	Err      error
}

// Router answers with the first route whose Contains occurs in the prompt or
// system text, falling back to fallback
func Router(fallback string, routes ...Route) *Scripted {
	return New(func(c Call) (string, error) {
		for _, r := range routes {
			if strings.Contains(c.Prompt, r.Contains) || strings.Contains(c.System, r.Contains) {
				return r.Reply, r.Err
			}
		}
		return fallback, nil
	})
}

// Generate implements llm.Generator
func (s *Scripted) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	reply, _, err := s.Turn(ctx, llm.Conversation{}, prompt, opts...)
	return reply, err
}

// Turn implements llm.Generator
func (s *Scripted) Turn(ctx context.Context, conv llm.Conversation, message string, opts ...llm.Option) (string, llm.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return "", conv, err
	}

	o := llm.ApplyOptions(opts...)
	call := Call{
		Prompt:  message,
		System:  o.SystemPrompt(),
		History: conv.Messages(),
		Model:   o.Model,
		JSON:    o.JSON,
	}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()

	reply, err := s.responder(call)
	if err != nil {
		return "", conv, err
	}
	if strings.TrimSpace(reply) == "" {
		return "", conv, llm.ErrEmptyResponse
	}

	next := conv.With(
		llm.Message{Role: llm.RoleUser, Content: message},
		llm.Message{Role: llm.RoleAssistant, Content: reply},
	)
	return reply, next, nil
}

// Calls returns a copy of the recorded calls
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount returns the number of calls made so far
func (s *Scripted) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// CallsContaining returns calls whose prompt contains substr
func (s *Scripted) CallsContaining(substr string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if strings.Contains(c.Prompt, substr) {
			out = append(out, c)
		}
	}
	return out
}
