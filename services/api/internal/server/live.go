package server

import (
	"encoding/base64"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"atmosphera/internal/util"
)

var liveUpgrader = websocket.Upgrader{
	ReadBufferSize:  16 * 1024,
	WriteBufferSize: 16 * 1024,
	// The API is CORS-open; the websocket follows.
	CheckOrigin: func(*http.Request) bool { return true },
}

// liveDownFrame is one downstream event relayed to the browser.
type liveDownFrame struct {
	Audio        string `json:"audio,omitempty"`
	TurnComplete bool   `json:"turnComplete,omitempty"`
	Interrupted  bool   `json:"interrupted,omitempty"`
	Error        string `json:"error,omitempty"`
}

// handleLive bridges a browser websocket to the provider live audio session.
// Upstream binary frames carry 16kHz PCM; downstream JSON frames carry
// base64 24kHz PCM plus turn markers. Teardown from either side closes both
// connections exactly once.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	instruction := strings.TrimSpace(r.URL.Query().Get("instruction"))
	logger := util.LoggerFromContext(r.Context())

	conn, err := liveUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	upstream, err := s.app.DialLive(r.Context(), instruction)
	if err != nil {
		frame := liveDownFrame{Error: "the live voice session could not be started"}
		_ = conn.WriteJSON(frame)
		_ = conn.Close()
		return
	}

	var once sync.Once
	var wg sync.WaitGroup
	teardown := func() {
		once.Do(func() {
			_ = upstream.Close()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		})
	}
	defer func() {
		teardown()
		wg.Wait()
	}()

	// browser -> provider
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer teardown()
		for {
			msgType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType != websocket.BinaryMessage || len(payload) == 0 {
				continue
			}
			if err := upstream.SendAudio(payload); err != nil {
				return
			}
		}
	}()

	// provider -> browser
	for {
		frame, err := upstream.Receive()
		if err != nil {
			logger.Debug("live session ended", "error", err)
			return
		}
		down := liveDownFrame{
			TurnComplete: frame.TurnComplete,
			Interrupted:  frame.Interrupted,
		}
		if len(frame.Audio) > 0 {
			down.Audio = base64.StdEncoding.EncodeToString(frame.Audio)
		}
		if err := conn.WriteJSON(down); err != nil {
			return
		}
	}
}
