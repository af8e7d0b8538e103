package llm

import (
	"context"
	"fmt"
)

// ScriptedTurn is one pre-recorded response the Scripted provider plays back
// in order. Used to drive internal/agent's tool-use loop tests without a
// live model.
type ScriptedTurn struct {
	Message Message
	Err     error
}

// Scripted is a deterministic Provider test double: each call to Chat or
// ChatStream consumes the next turn in Turns, in order. Calling it more
// times than there are turns is a test bug and panics loudly rather than
// silently looping, since a runaway tool loop should fail the test.
type Scripted struct {
	Turns []ScriptedTurn
	calls int
}

func (s *Scripted) Chat(_ context.Context, _ []Message, _ []ToolSchema, _ string) (Message, error) {
	turn := s.next()
	return turn.Message, turn.Err
}

func (s *Scripted) ChatStream(_ context.Context, _ []Message, _ []ToolSchema, _ string, h StreamHandler) error {
	turn := s.next()
	if turn.Err != nil {
		return turn.Err
	}
	if h != nil {
		if turn.Message.Content != "" {
			h.OnDelta(turn.Message.Content)
		}
		for _, tc := range turn.Message.ToolCalls {
			h.OnToolCall(tc)
		}
	}
	return nil
}

func (s *Scripted) next() ScriptedTurn {
	if s.calls >= len(s.Turns) {
		panic(fmt.Sprintf("llm.Scripted: call %d exceeds %d scripted turns", s.calls+1, len(s.Turns)))
	}
	turn := s.Turns[s.calls]
	s.calls++
	return turn
}

// Calls reports how many turns have been consumed so far.
func (s *Scripted) Calls() int { return s.calls }
