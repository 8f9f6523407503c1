package agent

import (
	"context"
	"sync"
)

// Session runs successive turns against an Agent. With memory enabled the full
// conversation of each turn is carried into the next one.
type Session struct {
	agent  *Agent
	memory bool

	mu      sync.Mutex
	history []Message
}

func NewSession(agent *Agent, memory bool) *Session {
	return &Session{agent: agent, memory: memory}
}

// Ask runs one turn for the given user input.
func (s *Session) Ask(ctx context.Context, input string) (*RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := append(s.priorMessages(), s.agent.cfg.LLM.NewUserMessage(input))
	res, err := s.agent.Run(ctx, msgs)
	if err != nil {
		return nil, err
	}
	if s.memory {
		s.history = res.FullConversation
	}
	return res, nil
}

// AnalyzeTask runs the structured task analysis for description.
func (s *Session) AnalyzeTask(ctx context.Context, description string) (*TaskRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, conversation, err := s.agent.AnalyzeTask(ctx, s.priorMessages(), description)
	if err != nil {
		return nil, err
	}
	if s.memory {
		s.history = conversation
	}
	return task, nil
}

// Clear forgets the conversation history.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// Len returns the number of messages in the history.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

func (s *Session) priorMessages() []Message {
	if !s.memory {
		return nil
	}
	return append([]Message(nil), s.history...)
}
