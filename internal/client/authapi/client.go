// Package authapi wraps the /auth endpoints of the API.
//
// Credential-issuing calls (login, register, verify, refresh, resend) are
// sent anonymously: they neither carry the stored token nor trigger a
// refresh. Logout carries the token but never refreshes; a 401 on logout
// only means the session is already gone.
package authapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/dmitrijs2005/peerlearn/internal/client/models"
	"github.com/dmitrijs2005/peerlearn/internal/client/pipeline"
)

const (
	PathLogin              = "/auth/login"
	PathRefresh            = "/auth/refresh"
	PathMe                 = "/auth/me"
	PathLogout             = "/auth/logout"
	PathRegister           = "/auth/register"
	PathVerifyEmail        = "/auth/verify-email"
	PathResendVerification = "/auth/resend-verification"
	PathUser               = "/auth/user/"
)

// Client is the typed view of the auth endpoints.
type Client struct {
	p *pipeline.Pipeline
}

// New returns a Client sending through p.
func New(p *pipeline.Pipeline) *Client {
	return &Client{p: p}
}

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, req models.LoginRequest) (*models.TokenPair, error) {
	var pair models.TokenPair
	if err := c.p.DoJSON(ctx, pipeline.Post(PathLogin).Anonymous().JSON(req), &pair); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if !pair.Complete() {
		return nil, errors.New("login: response missing tokens")
	}
	return &pair, nil
}

// Refresh presents refreshToken as bearer and returns the rotated pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	var pair models.TokenPair
	if err := c.p.DoJSON(ctx, pipeline.Post(PathRefresh).Bearer(refreshToken), &pair); err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	return &pair, nil
}

// Me fetches the authenticated user.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var u models.User
	if err := c.p.DoJSON(ctx, pipeline.Get(PathMe), &u); err != nil {
		return nil, fmt.Errorf("me: %w", err)
	}
	return &u, nil
}

// UpdateProfile sends a partial profile update and returns the stored user.
func (c *Client) UpdateProfile(ctx context.Context, upd models.ProfileUpdate) (*models.User, error) {
	var u models.User
	if err := c.p.DoJSON(ctx, pipeline.Put(PathMe).JSON(upd), &u); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return &u, nil
}

// Logout notifies the server. Tokens are stateless there, so this is
// advisory and callers clear local state regardless of the outcome.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.p.DoJSON(ctx, pipeline.Post(PathLogout).NoRefresh(), nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Register starts sign-up; the server mails a verification code.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.RegisterResponse, error) {
	var resp models.RegisterResponse
	if err := c.p.DoJSON(ctx, pipeline.Post(PathRegister).Anonymous().JSON(req), &resp); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return &resp, nil
}

// VerifyEmail completes sign-up and returns the new account with its first
// token pair.
func (c *Client) VerifyEmail(ctx context.Context, req models.VerifyEmailRequest) (*models.VerifyEmailResponse, error) {
	var resp models.VerifyEmailResponse
	if err := c.p.DoJSON(ctx, pipeline.Post(PathVerifyEmail).Anonymous().JSON(req), &resp); err != nil {
		return nil, fmt.Errorf("verify email: %w", err)
	}
	if resp.User == nil || !resp.Tokens.Complete() {
		return nil, errors.New("verify email: response missing user or tokens")
	}
	return &resp, nil
}

// ResendVerification asks for a fresh code. The address travels as a query
// parameter.
func (c *Client) ResendVerification(ctx context.Context, email string) (*models.MessageResponse, error) {
	var resp models.MessageResponse
	req := pipeline.Post(PathResendVerification).Anonymous().WithQuery("email", email)
	if err := c.p.DoJSON(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("resend verification: %w", err)
	}
	return &resp, nil
}

// User looks up another account by id.
func (c *Client) User(ctx context.Context, id models.ID) (*models.User, error) {
	var u models.User
	if err := c.p.DoJSON(ctx, pipeline.Get(PathUser+url.PathEscape(string(id))), &u); err != nil {
		return nil, fmt.Errorf("user %s: %w", id, err)
	}
	return &u, nil
}
