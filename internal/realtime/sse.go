package realtime

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
)

// SSESource dials the push backend's Server-Sent-Events endpoint.
// One Dial call is one logical channel; the returned event channel closes
// when the stream drops, and the connector handles reconnection.
type SSESource struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewSSESource creates an SSE event source against baseURL. token is sent as
// a bearer credential; empty token sends no Authorization header.
func NewSSESource(baseURL, token string) *SSESource {
	return &SSESource{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			// No overall timeout: the stream is long-lived. Dials are
			// bounded by the request context instead.
			Timeout: 0,
		},
	}
}

// Dial opens the stream for one thread. Satisfies DialFunc.
func (s *SSESource) Dial(ctx context.Context, threadID string) (<-chan Event, error) {
	url := fmt.Sprintf("%s/threads/%s/stream", s.baseURL, threadID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("open stream: status %d", resp.StatusCode)
	}

	events := make(chan Event)
	go s.read(ctx, threadID, resp, events)
	return events, nil
}

// read parses SSE frames until the stream drops. Cancelling ctx closes the
// response body, which unblocks the scanner.
func (s *SSESource) read(ctx context.Context, threadID string, resp *http.Response, events chan<- Event) {
	defer close(events)
	defer resp.Body.Close()

	// Close the body when ctx is cancelled so Scan returns promptly.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			resp.Body.Close()
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventType string
	var data strings.Builder

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			// Blank line terminates one frame.
			if eventType != "" || data.Len() > 0 {
				s.dispatch(ctx, threadID, eventType, data.String(), events)
			}
			eventType = ""
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case strings.HasPrefix(line, ":"):
			// Comment/keepalive frame, skip.
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		log.Printf("[SSESource] thread=%s stream error: %v", threadID, err)
	}
}

func (s *SSESource) dispatch(ctx context.Context, threadID, eventType, data string, events chan<- Event) {
	if eventType == "" {
		eventType = "message"
	}

	ev, err := ParseEvent(eventType, []byte(data))
	if err != nil {
		// Malformed payload: drop the event, keep the stream open.
		log.Printf("[SSESource] thread=%s dropping malformed %s event: %v", threadID, eventType, err)
		return
	}

	select {
	case events <- ev:
	case <-ctx.Done():
	}
}
