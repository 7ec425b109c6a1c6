package ai

import (
	"context"
	"strings"
	"sync"

	"atmosphera/pkg/domain"
)

// ChatSession is a sequential multi-turn conversation steered by a frozen
// persona. Turns are strictly ordered; there is no backtracking or editing
// of history.
type ChatSession struct {
	client  *Client
	persona domain.CharacterPersona

	mu      sync.Mutex
	history []Content
}

// NewChatSession binds a persona to a fresh conversation.
func (c *Client) NewChatSession(persona domain.CharacterPersona) *ChatSession {
	return &ChatSession{client: c, persona: persona}
}

// Persona returns the frozen steering persona for this session.
func (s *ChatSession) Persona() domain.CharacterPersona {
	return s.persona
}

// Send appends the user turn, requests the model reply, and appends it to
// history. Concurrent sends are serialized; a failed turn is rolled back so
// history never carries an unanswered user message.
func (s *ChatSession) Send(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", newError(KindUnknown, "empty chat message")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, Content{Role: "user", Parts: []Part{{Text: message}}})
	req := generateRequest{
		Contents: s.history,
		SystemInstruction: &Content{
			Parts: []Part{{Text: s.persona.SystemInstruction}},
		},
	}
	reply, err := s.client.generateText(ctx, s.client.textModel, req)
	if err != nil {
		s.history = s.history[:len(s.history)-1]
		return "", err
	}
	s.history = append(s.history, Content{Role: "model", Parts: []Part{{Text: reply}}})
	return reply, nil
}
