package testutil

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"
)

// SSEClient reads server-sent events from a live HTTP stream.
type SSEClient struct {
	resp   *http.Response
	events chan string
	t      *testing.T
}

// NewSSEClient opens url and starts reading its event stream.
//
// Precondition: url must serve text/event-stream.
// Postcondition: Returns a connected SSEClient or fails the test. The stream
// is closed at test cleanup.
func NewSSEClient(t *testing.T, url string) *SSEClient {
	t.Helper()
	start := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		t.Fatalf("building request for %s: %v", url, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		t.Fatalf("connecting to %s: %v [%s]", url, err, time.Since(start))
	}
	if resp.StatusCode != http.StatusOK {
		cancel()
		resp.Body.Close()
		t.Fatalf("connecting to %s: status %d", url, resp.StatusCode)
	}

	c := &SSEClient{resp: resp, events: make(chan string, 64), t: t}
	go c.read()
	t.Cleanup(func() {
		cancel()
		resp.Body.Close()
	})

	t.Logf("event stream connected to %s [%s]", url, time.Since(start))
	return c
}

func (c *SSEClient) read() {
	defer close(c.events)
	scanner := bufio.NewScanner(c.resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if data, ok := strings.CutPrefix(scanner.Text(), "data: "); ok {
			c.events <- data
		}
	}
}

// Next returns the data of the next event, or fails on timeout or a closed
// stream.
func (c *SSEClient) Next(timeout time.Duration) string {
	c.t.Helper()
	select {
	case data, ok := <-c.events:
		if !ok {
			c.t.Fatal("event stream closed")
		}
		return data
	case <-time.After(timeout):
		c.t.Fatalf("no event within %s", timeout)
		return ""
	}
}

// NextJSON decodes the next event's data into v.
func (c *SSEClient) NextJSON(timeout time.Duration, v any) {
	c.t.Helper()
	data := c.Next(timeout)
	if err := json.Unmarshal([]byte(data), v); err != nil {
		c.t.Fatalf("decoding event %q: %v", data, err)
	}
}

// Header returns the stream's response headers.
func (c *SSEClient) Header() http.Header {
	return c.resp.Header
}
