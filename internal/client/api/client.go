// Package api is a small HTTP client for the gophauth server.
//
// Errors returned by the server are decoded into *Error, which matches the
// sentinels of internal/common with errors.Is. Transport failures match
// ErrUnavailable.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
)

var ErrUnavailable = errors.New("server unavailable")

// Error is a decoded error body.
type Error struct {
	Status  int
	Code    string
	Message string
	Field   string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

var codeSentinels = map[string]error{
	"VALIDATION_ERROR":    common.ErrValidation,
	"ALREADY_EXISTS":      common.ErrAlreadyExists,
	"INVALID_CREDENTIALS": common.ErrInvalidCredentials,
	"INVALID_OR_EXPIRED":  common.ErrInvalidRefreshToken,
	"REUSE_DETECTED":      common.ErrRefreshTokenReuseDetected,
	"UNAUTHORIZED":        common.ErrUnauthorized,
	"FORBIDDEN":           common.ErrForbidden,
	"TOO_MANY_ATTEMPTS":   common.ErrTooManyAttempts,
	"STORE_UNAVAILABLE":   common.ErrStoreUnavailable,
}

func (e *Error) Is(target error) bool {
	s, ok := codeSentinels[e.Code]
	return ok && s == target
}

// Tokens is a token pair as returned by register, login and refresh.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Profile is the body of GET /users/me.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client for baseURL, e.g. "http://127.0.0.1:8080".
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Register(ctx context.Context, email string, password []byte) (*Tokens, error) {
	return c.credentials(ctx, "/auth/register", email, password)
}

func (c *Client) Login(ctx context.Context, email string, password []byte) (*Tokens, error) {
	return c.credentials(ctx, "/auth/login", email, password)
}

func (c *Client) credentials(ctx context.Context, path, email string, password []byte) (*Tokens, error) {
	body := map[string]string{"email": email, "password": string(password)}
	var out Tokens
	if err := c.do(ctx, http.MethodPost, path, "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	var out Tokens
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": refreshToken}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", "", map[string]string{"refresh_token": refreshToken}, nil)
}

func (c *Client) Me(ctx context.Context, accessToken string) (*Profile, error) {
	var out Profile
	if err := c.do(ctx, http.MethodGet, "/users/me", accessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) LogoutMe(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/users/me/logout", accessToken, nil, nil)
}

func (c *Client) ChangePassword(ctx context.Context, accessToken string, oldPassword, newPassword []byte) error {
	body := map[string]string{"old_password": string(oldPassword), "new_password": string(newPassword)}
	return c.do(ctx, http.MethodPost, "/users/me/password", accessToken, body, nil)
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerScheme+" "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Field   string `json:"field"`
		} `json:"error"`
	}
	e := &Error{Status: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error.Code == "" {
		e.Code = http.StatusText(resp.StatusCode)
		e.Message = "unexpected response"
		return e
	}
	e.Code = body.Error.Code
	e.Message = body.Error.Message
	e.Field = body.Error.Field
	return e
}
