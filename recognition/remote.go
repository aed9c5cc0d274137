package recognition

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const remoteStopTimeout = 2 * time.Second

// Remote consumes recognition events from an external engine over a
// websocket. Each frame is a JSON-encoded Event; a close frame or read
// error terminates the stream with a coded error.
type Remote struct {
	url      string
	language string
}

func NewRemote(url, language string) *Remote {
	return &Remote{url: url, language: language}
}

func (r *Remote) Name() string { return "remote" }

func (r *Remote) Start(ctx context.Context) (Stream, error) {
	if r.url == "" {
		return nil, ErrUnavailable
	}

	header := map[string][]string{}
	if r.language != "" {
		header["Accept-Language"] = []string{r.language}
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, r.url, header)
	if err != nil {
		return nil, &StreamError{Code: CodeNetwork, Message: err.Error()}
	}

	rs := &remoteStream{
		conn:   conn,
		events: make(chan Event, 16),
		done:   make(chan error, 1),
	}
	go rs.readLoop()
	return rs, nil
}

type remoteStream struct {
	conn   *websocket.Conn
	events chan Event
	done   chan error

	mu       sync.Mutex
	stopping bool
}

func (s *remoteStream) Events() <-chan Event { return s.events }
func (s *remoteStream) Done() <-chan error   { return s.done }

func (s *remoteStream) Stop() {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	s.mu.Unlock()

	deadline := time.Now().Add(remoteStopTimeout)
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	s.conn.SetReadDeadline(deadline)
}

func (s *remoteStream) readLoop() {
	defer close(s.events)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.conn.Close()
			s.finish(err)
			return
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			// Malformed frame; the engine is still alive, skip it.
			continue
		}
		s.events <- ev
	}
}

func (s *remoteStream) finish(err error) {
	s.mu.Lock()
	stopping := s.stopping
	s.mu.Unlock()

	if stopping || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.done <- nil
	} else {
		s.done <- classifyRemote(err)
	}
	close(s.done)
}

func classifyRemote(err error) error {
	msg := err.Error()
	for _, code := range []Code{CodeNoSpeech, CodeAudioCapture, CodeNotAllowed, CodeNetwork} {
		if strings.Contains(msg, string(code)) {
			return &StreamError{Code: code, Message: msg}
		}
	}
	return &StreamError{Code: CodeNetwork, Message: msg}
}
