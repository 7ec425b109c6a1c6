package ai

import (
	"context"
	"encoding/base64"
)

// GenerateMoodImage renders a one-shot mood image for a prompt. When base is
// non-nil the call becomes an edit of that image. Returns decoded image bytes
// and their MIME type.
func (c *Client) GenerateMoodImage(ctx context.Context, prompt string, base []byte, baseMIME string) ([]byte, string, error) {
	parts := []Part{{Text: prompt}}
	if len(base) > 0 {
		parts = append(parts, Part{InlineData: &Blob{
			MIMEType: baseMIME,
			Data:     base64.StdEncoding.EncodeToString(base),
		}})
	}
	req := generateRequest{
		Contents: []Content{{Role: "user", Parts: parts}},
		GenerationConfig: &GenerationConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
		},
	}
	resp, err := c.generateRetry(ctx, c.imageModel, req)
	if err != nil {
		return nil, "", err
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData == nil || part.InlineData.Data == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			return nil, "", newError(KindParse, "decode image payload: %v", err)
		}
		return data, part.InlineData.MIMEType, nil
	}
	return nil, "", newError(KindUnknown, "response carried no image part")
}
