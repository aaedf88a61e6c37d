package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/infill/internal/inference"
)

// SSEStreamWriter writes collect partials as server-sent events. Headers
// are sent with the first event so failures before it can still be
// reported as a plain JSON error.
type SSEStreamWriter struct {
	res     http.ResponseWriter
	w       io.Writer
	flusher func()
	seq     int
	begun   bool
	err     error
}

type partialEvent struct {
	inference.Partial
	SequenceNumber int `json:"sequence_number"`
}

type doneEvent struct {
	Type           string           `json:"type"`
	SequenceNumber int              `json:"sequence_number"`
	Response       *CollectResponse `json:"response"`
}

type errorEvent struct {
	Type           string        `json:"type"`
	SequenceNumber int           `json:"sequence_number"`
	Error          ResponseError `json:"error"`
}

func NewSSEStreamWriter(c *echo.Context) (*SSEStreamWriter, error) {
	res := c.Response()
	flusher, ok := res.(interface{ Flush() })
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}
	return &SSEStreamWriter{
		res:     res,
		w:       res,
		flusher: flusher.Flush,
		seq:     1,
	}, nil
}

func (s *SSEStreamWriter) Started() bool {
	return s.begun
}

// Partial forwards one engine partial. After the first write error the
// writer drops further partials; the caller learns about it from Err.
func (s *SSEStreamWriter) Partial(p inference.Partial) {
	if s.err != nil {
		return
	}
	s.err = s.send(partialEvent{Partial: p, SequenceNumber: s.seq})
}

func (s *SSEStreamWriter) Err() error {
	return s.err
}

func (s *SSEStreamWriter) Done(resp CollectResponse) error {
	if err := s.send(doneEvent{Type: "done", SequenceNumber: s.seq, Response: &resp}); err != nil {
		return err
	}
	return s.terminate()
}

func (s *SSEStreamWriter) Failed(err error) error {
	_, errType, code := classify(err)
	if serr := s.send(errorEvent{
		Type:           "error",
		SequenceNumber: s.seq,
		Error:          ResponseError{Message: err.Error(), Type: errType, Code: code},
	}); serr != nil {
		return serr
	}
	return s.terminate()
}

func (s *SSEStreamWriter) begin() {
	if s.begun {
		return
	}
	s.begun = true
	h := s.res.Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	s.res.WriteHeader(http.StatusOK)
}

func (s *SSEStreamWriter) send(payload any) error {
	s.begin()
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err = fmt.Fprintf(s.w, "data: %s\n\n", string(b)); err != nil {
		return err
	}
	s.seq++
	s.flush()
	return nil
}

func (s *SSEStreamWriter) terminate() error {
	s.begin()
	_, err := fmt.Fprint(s.w, "data: [DONE]\n\n")
	s.flush()
	return err
}

func (s *SSEStreamWriter) flush() {
	if s.flusher != nil {
		s.flusher()
	}
}
