package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jonathan/jobmatch/internal/operations"
)

// SSEWriter writes an operation's progress as Server-Sent Events. Events
// carry increasing ids so a client can tell where a reconnect resumed.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	seq     int
}

// NewSSEWriter sends the stream headers. The response must support flushing.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent sends one named event with a JSON payload.
func (s *SSEWriter) WriteEvent(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event, err)
	}
	s.seq++
	return s.write(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", s.seq, event, payload))
}

// WriteComment sends a comment line, ignored by clients.
func (s *SSEWriter) WriteComment(text string) error {
	return s.write(": " + text + "\n\n")
}

// WriteError sends an error event
func (s *SSEWriter) WriteError(message string) {
	s.WriteEvent("error", map[string]string{"error": message}) //nolint:errcheck
}

// WriteComplete sends the final state of an operation.
func (s *SSEWriter) WriteComplete(op *operations.Operation) {
	s.WriteEvent("complete", map[string]any{ //nolint:errcheck
		"operation_id": op.ID,
		"kind":         op.Kind,
		"status":       op.Status,
		"progress":     op.Progress,
		"message":      op.Message,
	})
}

func (s *SSEWriter) write(frame string) error {
	if _, err := fmt.Fprint(s.w, frame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
