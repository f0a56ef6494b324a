// Package feed consumes the change stream and persists accepted events
// with a resumable cursor.
package feed

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RawEvent is one Server-Sent-Events frame: the stream position id and
// the joined data payload.
type RawEvent struct {
	ID   string
	Data string
}

// eventScanner accumulates SSE lines into events. A blank line
// terminates the current event; comment lines (leading colon) are
// ignored.
type eventScanner struct {
	eventID   string
	dataLines []string
}

// feed consumes one line and reports a completed event when the line
// terminates one.
func (s *eventScanner) feed(line string) (RawEvent, bool) {
	if line == "" {
		if len(s.dataLines) == 0 {
			s.eventID = ""
			return RawEvent{}, false
		}
		event := RawEvent{ID: s.eventID, Data: strings.Join(s.dataLines, "\n")}
		s.eventID = ""
		s.dataLines = nil
		return event, true
	}
	switch {
	case strings.HasPrefix(line, ":"):
	case strings.HasPrefix(line, "id:"):
		s.eventID = strings.TrimLeft(line[3:], " ")
	case strings.HasPrefix(line, "data:"):
		s.dataLines = append(s.dataLines, strings.TrimLeft(line[5:], " "))
	}
	return RawEvent{}, false
}

// Client holds the connection settings for the event stream.
type Client struct {
	url         string
	userAgent   string
	readTimeout time.Duration
	httpClient  *http.Client
}

func NewClient(url, userAgent string, readTimeout time.Duration) *Client {
	if readTimeout <= 0 {
		readTimeout = 60 * time.Second
	}
	return &Client{
		url:         url,
		userAgent:   userAgent,
		readTimeout: readTimeout,
		// No overall client timeout: the stream is long-lived. Stalls
		// are detected by the per-read watchdog instead.
		httpClient: &http.Client{},
	}
}

// Stream opens one long-lived connection, resuming from lastEventID
// when non-empty, and invokes handle for every complete event. It
// returns when the connection breaks, the handler fails, or ctx is
// cancelled.
func (c *Client) Stream(ctx context.Context, lastEventID string, handle func(RawEvent) error) error {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	// Cancel the request if the server goes silent for longer than the
	// read timeout. Any received line re-arms the watchdog.
	watchdog := time.AfterFunc(c.readTimeout, cancel)
	defer watchdog.Stop()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	events := &eventScanner{}

	for scanner.Scan() {
		watchdog.Reset(c.readTimeout)
		line := strings.TrimRight(scanner.Text(), "\r")
		event, complete := events.feed(line)
		if !complete {
			continue
		}
		if err := handle(event); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read stream: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.New("stream closed by server")
}
