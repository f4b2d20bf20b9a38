package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"corridorbots/pkg/config"
	"corridorbots/pkg/corridor"
)

const maxErrorBody = 512

// Client calls the corridor HTTP API. It holds no per-bot state: every
// authenticated call takes the bearer token of the acting bot.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string `json:"token"`
}

func New(cfg config.CorridorConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("corridor.base_url is required")
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout()},
	}, nil
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out authResponse
	if err := c.do(ctx, "login", "/api/auth/login", "", credentials{Username: username, Password: password}, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Token) == "" {
		return "", errors.New("login: response carried no token")
	}

	return out.Token, nil
}

// Register creates the account. The returned token may be empty; callers log in afterwards.
func (c *Client) Register(ctx context.Context, username, password string) (string, error) {
	var out authResponse
	if err := c.do(ctx, "register", "/api/auth/register", "", credentials{Username: username, Password: password}, &out); err != nil {
		return "", err
	}

	return out.Token, nil
}

func (c *Client) MoveLeft(ctx context.Context, token string) error {
	return c.do(ctx, "move_left", "/api/presence/moveLeft", token, nil, nil)
}

func (c *Client) MoveRight(ctx context.Context, token string) error {
	return c.do(ctx, "move_right", "/api/presence/moveRight", token, nil, nil)
}

func (c *Client) Lock(ctx context.Context, token string) error {
	return c.do(ctx, "lock", "/api/presence/lock", token, nil, nil)
}

func (c *Client) Unlock(ctx context.Context, token string) error {
	return c.do(ctx, "unlock", "/api/presence/unlock", token, nil, nil)
}

func (c *Client) Leave(ctx context.Context, token string) error {
	return c.do(ctx, "leave", "/api/presence/leave", token, nil, nil)
}

// SendRequest sends a friend request to the neighbor on side dir.
func (c *Client) SendRequest(ctx context.Context, token string, dir corridor.Direction) error {
	return c.requestOp(ctx, "send_request", "send", token, dir)
}

// Accept accepts the incoming friend request from side dir.
func (c *Client) Accept(ctx context.Context, token string, dir corridor.Direction) error {
	return c.requestOp(ctx, "accept_request", "accept", token, dir)
}

// Reject rejects the incoming friend request from side dir.
func (c *Client) Reject(ctx context.Context, token string, dir corridor.Direction) error {
	return c.requestOp(ctx, "reject_request", "reject", token, dir)
}

func (c *Client) requestOp(ctx context.Context, op, verb, token string, dir corridor.Direction) error {
	if dir != corridor.DirectionLeft && dir != corridor.DirectionRight {
		return fmt.Errorf("%s: invalid direction %q", op, dir)
	}

	return c.do(ctx, op, "/api/requests/"+verb+"/"+string(dir), token, nil, nil)
}

func (c *Client) do(ctx context.Context, op, path, token string, body any, out any) error {
	log := slog.Default().With("component", "transport.api", "operation", op)
	startedAt := time.Now()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug("corridor request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := newStatusError(op, resp.StatusCode, strings.TrimSpace(string(detail)))
		log.Debug("corridor request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "status", resp.StatusCode)
		return statusErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	log.Debug("corridor request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "status", resp.StatusCode)

	return nil
}
