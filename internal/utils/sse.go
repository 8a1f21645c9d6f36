package utils

import (
	"net/http"

	"github.com/gin-contrib/sse"
)

// DoneMarker is the data of the last frame of every stream.
const DoneMarker = "[DONE]"

type SSEWriter struct {
	w http.ResponseWriter
}

func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &SSEWriter{w: w}
}

// Write sends one frame. String data is written verbatim, anything else is
// JSON encoded.
func (s *SSEWriter) Write(event string, data any) error {
	if err := sse.Encode(s.w, sse.Event{Event: event, Data: data}); err != nil {
		return err
	}

	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}

	return nil
}

func (s *SSEWriter) Close() error {
	return s.Write("", DoneMarker)
}
