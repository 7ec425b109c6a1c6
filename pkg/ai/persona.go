package ai

import (
	"context"
	"fmt"
	"strings"

	"atmosphera/pkg/domain"
)

type aiPersona struct {
	Name              string `json:"name"`
	Greeting          string `json:"greeting"`
	SystemInstruction string `json:"systemInstruction"`
}

func personaSchema() *Schema {
	return &Schema{
		Type: "object",
		Properties: map[string]*Schema{
			"name":              {Type: "string", Description: "Character name"},
			"greeting":          {Type: "string", Description: "In-character opening line"},
			"systemInstruction": {Type: "string", Description: "Steering instruction keeping the model in character"},
		},
		Required: []string{"name", "greeting", "systemInstruction"},
	}
}

// GeneratePersona produces a character profile for a book in one shot. The
// persona is frozen by the caller for the lifetime of its chat session.
func (c *Client) GeneratePersona(ctx context.Context, book domain.Book) (domain.CharacterPersona, error) {
	prompt := fmt.Sprintf(
		"Pick the most chat-worthy character from %q by %s and build a roleplay persona. "+
			"The systemInstruction must keep the model strictly in character, speaking in first person, "+
			"never revealing it is an AI, and staying within what the character could plausibly know.",
		book.Title, book.Author)
	req := generateRequest{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: prompt}}}},
		GenerationConfig: &GenerationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   personaSchema(),
		},
	}
	raw, err := c.generateText(ctx, c.textModel, req)
	if err != nil {
		return domain.CharacterPersona{}, err
	}
	var p aiPersona
	if err := decodeModelJSON(raw, &p); err != nil {
		return domain.CharacterPersona{}, err
	}
	if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.SystemInstruction) == "" {
		return domain.CharacterPersona{}, newError(KindParse, "persona response missing required fields")
	}
	return domain.CharacterPersona{
		Name:              p.Name,
		Greeting:          p.Greeting,
		SystemInstruction: p.SystemInstruction,
	}, nil
}
