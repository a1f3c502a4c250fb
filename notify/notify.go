// Package notify delivers best-effort notifications about finished runs to
// an out-of-band channel. Callers treat every notifier error as non-fatal: a
// failed notification never fails a build.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

// Message is one notification.
type Message struct {
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// Notifier delivers one message.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, Message) error { return nil }

// File writes each message as JSON to a fixed path, replacing the previous
// one. A shim for tests and local inspection rather than a delivery channel.
type File struct {
	Path string
}

func (f *File) Notify(_ context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, append(data, '\n'), 0o600)
}

// DefaultBaseURL is where a local opencode instance listens.
const DefaultBaseURL = "http://127.0.0.1:4096"

// Session posts the message text into a session on a running opencode
// instance. With no SessionID configured it targets the active session,
// falling back to the first listed one.
type Session struct {
	BaseURL   string
	SessionID string

	// Provider and Model are optional hints forwarded with the prompt.
	Provider string
	Model    string

	client *http.Client
}

// NewSession returns a Session notifier against baseURL, empty meaning
// DefaultBaseURL. Requests are bounded by a short timeout.
func NewSession(baseURL string) *Session {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Session{
		BaseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *Session) Notify(ctx context.Context, msg Message) error {
	id := s.SessionID
	if id == "" {
		var err error
		id, err = s.pickSession(ctx)
		if err != nil {
			return err
		}
	}

	body := map[string]any{
		"parts": []map[string]any{{"type": "text", "text": msg.Text}},
	}
	if s.Provider != "" && s.Model != "" {
		body["model"] = map[string]string{"providerID": s.Provider, "modelID": s.Model}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/session/"+id+"/prompt", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("session prompt: unexpected status %s", resp.Status)
	}
	return nil
}

// pickSession lists sessions and returns the active one, or the first.
func (s *Session) pickSession(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/session", nil)
	if err != nil {
		return "", err
	}
	resp, err := s.httpClient().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("list sessions: unexpected status %s", resp.Status)
	}

	var sessions []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		return "", fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		return "", errors.New("no sessions available")
	}
	for _, sess := range sessions {
		if sess.Status == "active" {
			return sess.ID, nil
		}
	}
	return sessions[0].ID, nil
}

func (s *Session) httpClient() *http.Client {
	if s.client != nil {
		return s.client
	}
	return &http.Client{Timeout: 5 * time.Second}
}
