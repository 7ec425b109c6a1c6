package util

import (
	"bufio"
	"errors"
	"net"
	"net/http"
)

// StatusRecorder captures the response status code for the logging and
// metrics middleware. Connection upgrades and streaming flushes are passed
// through to the underlying writer, so websocket handlers work behind the
// recorder.
type StatusRecorder struct {
	http.ResponseWriter
	Status int
}

// NewStatusRecorder wraps w, defaulting the status to 200 for handlers that
// never call WriteHeader.
func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	return &StatusRecorder{ResponseWriter: w, Status: http.StatusOK}
}

func (r *StatusRecorder) WriteHeader(code int) {
	r.Status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack delegates to the underlying writer so websocket upgrades succeed.
func (r *StatusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("util: underlying ResponseWriter does not support hijacking")
	}
	return h.Hijack()
}

// Flush delegates to the underlying writer when it supports streaming.
func (r *StatusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
