// Package chatclient is a Go client for the chat service: REST calls for
// chats, contacts and history, a realtime connection for rooms, and a
// local timeline that reconciles optimistic sends with server broadcasts.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// APIError is a non-2xx reply from the REST API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat api returned %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Is maps the HTTP status onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrBadRequest:
		return e.StatusCode == http.StatusBadRequest
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

type Chat struct {
	ID           string    `json:"_id"`
	Participants []string  `json:"participants"`
	LastMessage  string    `json:"lastMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Message struct {
	ID               string    `json:"_id"`
	ChatID           string    `json:"chatId"`
	Sender           string    `json:"sender"`
	Text             string    `json:"text"`
	ClientMessageKey string    `json:"clientMessageKey,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Contact is a counterpart of one of the caller's chats. ChatID is empty
// for a freshly selected user the caller has never talked to.
type Contact struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	ChatID   string `json:"chatId"`
}

// Client talks to one chat service on behalf of one bearer token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// New creates a client. baseURL is the service root, e.g. http://localhost:5000.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// StartChat finds or creates the chat between two users.
func (c *Client) StartChat(ctx context.Context, user1ID, user2ID string) (*Chat, error) {
	var out struct {
		Chat *Chat `json:"chat"`
	}
	body := map[string]string{"user1Id": user1ID, "user2Id": user2ID}
	if err := c.do(ctx, http.MethodPost, "/api/chat/start-chat", body, &out); err != nil {
		return nil, err
	}
	if out.Chat == nil {
		return nil, errors.New("chat api returned no chat")
	}
	return out.Chat, nil
}

// Contacts lists the caller's chat counterparts.
func (c *Client) Contacts(ctx context.Context) ([]Contact, error) {
	var out struct {
		Contacts []Contact `json:"contacts"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/chat/contacts", nil, &out); err != nil {
		return nil, err
	}
	return out.Contacts, nil
}

// Messages fetches recent history oldest first, together with the caller's
// user id as resolved by the server. limit <= 0 uses the server default.
func (c *Client) Messages(ctx context.Context, chatID string, limit int) ([]Message, string, error) {
	path := "/api/chat/messages/" + url.PathEscape(chatID)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var out struct {
		Messages    []Message `json:"messages"`
		CurrentUser string    `json:"currentUser"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, "", err
	}
	return out.Messages, out.CurrentUser, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call chat api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil {
			apiErr.Code = envelope.Code
			apiErr.Message = envelope.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// socketURL turns the REST base URL into the realtime endpoint for userID.
func (c *Client) socketURL(userID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = "/socket"

	q := url.Values{}
	q.Set("userId", userID)
	if c.token != "" {
		q.Set("token", c.token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
