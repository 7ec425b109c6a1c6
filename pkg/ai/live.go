package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const liveEndpointPath = "/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// Microphone input format expected by the provider live endpoint.
const LiveInputMIME = "audio/pcm;rate=16000"

// LiveSession is a full-duplex voice conversation: microphone PCM frames go
// up, provider audio frames come down. One session maps to one provider
// websocket; teardown is idempotent.
type LiveSession struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

type liveSetup struct {
	Setup struct {
		Model             string            `json:"model"`
		GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
		SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	} `json:"setup"`
}

type liveMediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type liveRealtimeInput struct {
	RealtimeInput struct {
		MediaChunks []liveMediaChunk `json:"mediaChunks"`
	} `json:"realtimeInput"`
}

type liveServerMessage struct {
	SetupComplete *struct{} `json:"setupComplete,omitempty"`
	ServerContent *struct {
		ModelTurn    *Content `json:"modelTurn,omitempty"`
		TurnComplete bool     `json:"turnComplete,omitempty"`
		Interrupted  bool     `json:"interrupted,omitempty"`
	} `json:"serverContent,omitempty"`
}

// LiveFrame is one downstream event from the provider.
type LiveFrame struct {
	// Audio holds decoded PCM when the frame carried audio.
	Audio []byte
	// TurnComplete marks the end of a model response turn.
	TurnComplete bool
	// Interrupted means the model response was cut off by new user audio;
	// any scheduled playback should be dropped.
	Interrupted bool
}

// DialLive opens a live session and completes the setup handshake. The
// optional systemInstruction steers the voice persona.
func (c *Client) DialLive(ctx context.Context, systemInstruction string) (*LiveSession, error) {
	if !c.Configured() {
		return nil, newError(KindMissingKey, "no API key configured")
	}
	wsURL := strings.Replace(c.baseURL, "https://", "wss://", 1)
	wsURL = strings.TrimSuffix(wsURL, "/v1beta") + liveEndpointPath + "?key=" + c.apiKey
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, classifyStatus(resp.StatusCode, err.Error())
		}
		return nil, newError(KindNetwork, "dial live session: %v", err)
	}
	session := &LiveSession{conn: conn}

	var setup liveSetup
	setup.Setup.Model = "models/" + normalizeModel(c.liveModel)
	setup.Setup.GenerationConfig = &GenerationConfig{ResponseModalities: []string{"AUDIO"}}
	if strings.TrimSpace(systemInstruction) != "" {
		setup.Setup.SystemInstruction = &Content{Parts: []Part{{Text: systemInstruction}}}
	}
	if err := session.writeJSON(setup); err != nil {
		_ = session.Close()
		return nil, err
	}
	// The provider acknowledges setup before streaming content.
	var ack liveServerMessage
	if err := conn.ReadJSON(&ack); err != nil {
		_ = session.Close()
		return nil, newError(KindNetwork, "read setup ack: %v", err)
	}
	if ack.SetupComplete == nil {
		_ = session.Close()
		return nil, newError(KindUnknown, "live setup was not acknowledged")
	}
	return session, nil
}

// SendAudio streams one microphone PCM frame upstream.
func (s *LiveSession) SendAudio(pcm []byte) error {
	var input liveRealtimeInput
	input.RealtimeInput.MediaChunks = []liveMediaChunk{{
		MIMEType: LiveInputMIME,
		Data:     base64.StdEncoding.EncodeToString(pcm),
	}}
	return s.writeJSON(input)
}

// Receive blocks for the next downstream frame.
func (s *LiveSession) Receive() (LiveFrame, error) {
	for {
		var msg liveServerMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			return LiveFrame{}, newError(KindNetwork, "read live frame: %v", err)
		}
		if msg.ServerContent == nil {
			continue
		}
		frame := LiveFrame{
			TurnComplete: msg.ServerContent.TurnComplete,
			Interrupted:  msg.ServerContent.Interrupted,
		}
		if turn := msg.ServerContent.ModelTurn; turn != nil {
			for _, part := range turn.Parts {
				if part.InlineData == nil || part.InlineData.Data == "" {
					continue
				}
				audio, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					return LiveFrame{}, newError(KindParse, "decode live audio: %v", err)
				}
				frame.Audio = append(frame.Audio, audio...)
			}
		}
		if frame.Audio == nil && !frame.TurnComplete && !frame.Interrupted {
			continue
		}
		return frame, nil
	}
}

// Close tears the session down. Safe to call more than once.
func (s *LiveSession) Close() error {
	s.closeOnce.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *LiveSession) writeJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return newError(KindUnknown, "encode live message: %v", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return newError(KindNetwork, "write live message: %v", err)
	}
	return nil
}

