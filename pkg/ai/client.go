package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	defaultTextModel  = "gemini-2.5-flash"
	defaultImageModel = "gemini-2.5-flash-image"
	defaultTTSModel   = "gemini-2.5-flash-preview-tts"
	defaultLiveModel  = "gemini-2.5-flash-native-audio-preview"
)

// Config configures the provider client. An empty APIKey is allowed: every
// call then fails with a MissingKey error so AI features degrade instead of
// crashing at startup.
type Config struct {
	APIKey     string
	BaseURL    string
	TextModel  string
	ImageModel string
	TTSModel   string
	LiveModel  string
	HTTPClient *http.Client

	// RetryInterval overrides the initial backoff interval; tests use a
	// short value to avoid sleeping.
	RetryInterval time.Duration
}

// Client calls the hosted generative-AI provider over HTTP.
type Client struct {
	apiKey        string
	baseURL       string
	textModel     string
	imageModel    string
	ttsModel      string
	liveModel     string
	httpClient    *http.Client
	retryInterval time.Duration
}

// NewClient constructs a provider client with defaults filled in.
func NewClient(cfg Config) *Client {
	c := &Client{
		apiKey:        strings.TrimSpace(cfg.APIKey),
		baseURL:       strings.TrimSpace(cfg.BaseURL),
		textModel:     strings.TrimSpace(cfg.TextModel),
		imageModel:    strings.TrimSpace(cfg.ImageModel),
		ttsModel:      strings.TrimSpace(cfg.TTSModel),
		liveModel:     strings.TrimSpace(cfg.LiveModel),
		httpClient:    cfg.HTTPClient,
		retryInterval: cfg.RetryInterval,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.textModel == "" {
		c.textModel = defaultTextModel
	}
	if c.imageModel == "" {
		c.imageModel = defaultImageModel
	}
	if c.ttsModel == "" {
		c.ttsModel = defaultTTSModel
	}
	if c.liveModel == "" {
		c.liveModel = defaultLiveModel
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if c.retryInterval <= 0 {
		c.retryInterval = time.Second
	}
	return c
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// --- provider wire types ---

type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Schema declares the strict JSON response shape requested from the model.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}

type Tool struct {
	GoogleSearch *struct{} `json:"googleSearch,omitempty"`
}

type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type VoiceConfig struct {
	PrebuiltVoiceConfig *PrebuiltVoiceConfig `json:"prebuiltVoiceConfig,omitempty"`
}

type SpeechConfig struct {
	VoiceConfig *VoiceConfig `json:"voiceConfig,omitempty"`
}

type GenerationConfig struct {
	Temperature        *float64      `json:"temperature,omitempty"`
	ResponseMIMEType   string        `json:"responseMimeType,omitempty"`
	ResponseSchema     *Schema       `json:"responseSchema,omitempty"`
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

type generateRequest struct {
	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	Tools             []Tool            `json:"tools,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

type groundingWeb struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

type groundingChunk struct {
	Web *groundingWeb `json:"web,omitempty"`
}

type groundingMetadata struct {
	GroundingChunks []groundingChunk `json:"groundingChunks,omitempty"`
}

type candidate struct {
	Content           Content            `json:"content"`
	FinishReason      string             `json:"finishReason,omitempty"`
	GroundingMetadata *groundingMetadata `json:"groundingMetadata,omitempty"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type generateResponse struct {
	Candidates     []candidate     `json:"candidates"`
	PromptFeedback *promptFeedback `json:"promptFeedback,omitempty"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// generate posts one generateContent request and classifies failures.
// Transient failures are retried with exponential backoff by the caller
// wrapper; this method performs a single attempt.
func (c *Client) generate(ctx context.Context, model string, req generateRequest) (*generateResponse, error) {
	if !c.Configured() {
		return nil, newError(KindMissingKey, "no API key configured")
	}
	var resp generateResponse
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, normalizeModel(model), c.apiKey)
	if err := c.doJSON(ctx, url, req, &resp); err != nil {
		return nil, err
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, newError(KindSafetyRejected, "prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return nil, newError(KindUnknown, "empty response from provider")
	}
	if reason := resp.Candidates[0].FinishReason; strings.EqualFold(reason, "SAFETY") {
		return nil, newError(KindSafetyRejected, "candidate blocked: %s", reason)
	}
	return &resp, nil
}

// generateText runs a retried text-only request and returns the first
// candidate's concatenated text parts.
func (c *Client) generateText(ctx context.Context, model string, req generateRequest) (string, error) {
	resp, err := c.generateRetry(ctx, model, req)
	if err != nil {
		return "", err
	}
	text := candidateText(resp)
	if text == "" {
		return "", newError(KindUnknown, "response carried no text parts")
	}
	return text, nil
}

func candidateText(resp *generateResponse) string {
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String()
}

func normalizeModel(model string) string {
	model = strings.TrimSpace(model)
	return strings.TrimPrefix(model, "models/")
}

func (c *Client) doJSON(ctx context.Context, url string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return newError(KindUnknown, "encode request: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return newError(KindUnknown, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return newError(KindNetwork, "%v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return classifyStatus(resp.StatusCode, errResp.Error.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return newError(KindParse, "decode provider response: %v", err)
	}
	return nil
}
