package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/math-interviewer/internal/api"
)

// apiError is a non-2xx response from the server.
type apiError struct {
	Status         int
	Message        string
	RemainingTurns int
}

func (e *apiError) Error() string {
	if e.RemainingTurns > 0 {
		return fmt.Sprintf("server returned %d: %s (%d more turns needed)", e.Status, e.Message, e.RemainingTurns)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// client talks to the interview HTTP API.
type client struct {
	base string
	http *http.Client
}

func newClient(base string, timeout time.Duration) *client {
	return &client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

func (c *client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	var body struct {
		Error          string `json:"error"`
		RemainingTurns int    `json:"remaining_turns"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
	}
	return nil, &apiError{Status: resp.StatusCode, Message: body.Error, RemainingTurns: body.RemainingTurns}
}

// doJSON sends body and decodes the JSON response into out.
func (c *client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// download fetches an attachment and the file name the server suggested.
func (c *client) download(ctx context.Context, path string) ([]byte, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.send(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response: %w", err)
	}
	var filename string
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		filename = params["filename"]
	}
	return data, filename, nil
}

// stream posts a message with SSE and calls onFragment for every fragment
// event until the turn event arrives.
func (c *client) stream(ctx context.Context, sessionID, message string, onFragment func(string)) (*api.TurnResponse, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/messages", api.MessageRequest{Message: message})
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var turn *api.TurnResponse
	err = readEvents(resp.Body, func(event, data string) error {
		switch event {
		case "fragment":
			var frag struct {
				Content string `json:"content"`
			}
			if err := json.Unmarshal([]byte(data), &frag); err != nil {
				return fmt.Errorf("invalid fragment: %w", err)
			}
			onFragment(frag.Content)
		case "turn":
			turn = &api.TurnResponse{}
			if err := json.Unmarshal([]byte(data), turn); err != nil {
				return fmt.Errorf("invalid turn: %w", err)
			}
		case "error":
			var e struct {
				Error string `json:"error"`
			}
			_ = json.Unmarshal([]byte(data), &e)
			return errors.New(e.Error)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if turn == nil {
		return nil, errors.New("stream ended without a turn")
	}
	return turn, nil
}

// readEvents parses a text/event-stream body.
func readEvents(r io.Reader, fn func(event, data string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 4<<20)
	var event string
	var data []string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if event != "" || len(data) > 0 {
				if err := fn(event, strings.Join(data, "\n")); err != nil {
					return err
				}
			}
			event, data = "", nil
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return sc.Err()
}
