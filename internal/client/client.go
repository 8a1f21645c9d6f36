package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"scanalytics-backend/internal/insight"
	"scanalytics-backend/internal/model"
	"scanalytics-backend/internal/utils"
)

// Streamer starts one structured call for a conversation. The channel yields
// partial events followed by one terminal event.
type Streamer interface {
	Stream(ctx context.Context, turns []model.ChatTurn) (<-chan insight.Event, error)
}

// RemoteError is a non-2xx answer from the chat endpoint.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("chat endpoint returned %d: %s", e.StatusCode, e.Message)
}

// Client calls POST /api/chat and decodes its SSE frames.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = utils.NewHTTPClient(0)
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) Stream(ctx context.Context, turns []model.ChatTurn) (<-chan insight.Event, error) {
	body, err := json.Marshal(model.ChatRequestBody{Messages: turns})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, remoteError(resp)
	}

	events := make(chan insight.Event, 16)
	go func() {
		defer resp.Body.Close()
		defer close(events)
		readSSE(ctx, resp.Body, events)
	}()
	return events, nil
}

func remoteError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var payload model.ErrorResponse
	if err := json.Unmarshal(b, &payload); err != nil || payload.Error == "" {
		payload.Error = strings.TrimSpace(string(b))
	}
	return &RemoteError{StatusCode: resp.StatusCode, Message: payload.Error}
}

// readSSE forwards decoded frames until a terminal event or the end of the
// body. A stream that ends without a terminal event yields ErrStreamFailed.
func readSSE(ctx context.Context, r io.Reader, out chan<- insight.Event) {
	reader := bufio.NewReader(r)
	var (
		event string
		data  []byte
	)
	for {
		line, err := reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if len(data) > 0 && dispatch(ctx, out, event, data) {
				return
			}
			event, data = "", data[:0]
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:"))...)
		}

		if err != nil {
			if len(data) > 0 && dispatch(ctx, out, event, data) {
				return
			}
			if ctx.Err() == nil {
				emit(ctx, out, insight.Event{Type: insight.EventError, Err: ErrStreamFailed})
			}
			return
		}
	}
}

// dispatch delivers one frame and reports whether reading should stop.
func dispatch(ctx context.Context, out chan<- insight.Event, event string, data []byte) bool {
	if string(data) == utils.DoneMarker {
		// terminal events return before the marker is reached
		emit(ctx, out, insight.Event{Type: insight.EventError, Err: ErrStreamFailed})
		return true
	}
	ev, ok := decodeFrame(event, data)
	if !ok {
		return false
	}
	if !emit(ctx, out, ev) {
		return true
	}
	return ev.Terminal()
}

// decodeFrame maps one frame to an event; heartbeats and unknown events are
// skipped.
func decodeFrame(event string, data []byte) (insight.Event, bool) {
	switch insight.EventType(event) {
	case insight.EventPartial, insight.EventComplete:
		var res insight.Result
		if err := json.Unmarshal(data, &res); err != nil {
			return insight.Event{Type: insight.EventError, Err: fmt.Errorf("%w: %v", ErrStreamFailed, err)}, true
		}
		return insight.Event{Type: insight.EventType(event), Result: res}, true
	case insight.EventError:
		var payload model.ErrorResponse
		_ = json.Unmarshal(data, &payload)
		return insight.Event{Type: insight.EventError, Err: fmt.Errorf("%w: %s", ErrStreamFailed, payload.Error)}, true
	}
	return insight.Event{}, false
}

func emit(ctx context.Context, out chan<- insight.Event, ev insight.Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// IsRemote reports whether err came from a non-2xx endpoint answer.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
