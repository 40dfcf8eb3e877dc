// Package refresh deduplicates access-token refreshes.
//
// Any number of requests may be rejected with 401 at the same time; all of
// them wait on a single POST /auth/refresh and then retry with the rotated
// token. A refresh that fails clears the stored session and reports the
// expiry once.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrijs2005/peerlearn/internal/client/credentials"
	"github.com/dmitrijs2005/peerlearn/internal/client/models"
	"github.com/dmitrijs2005/peerlearn/internal/common"
	"github.com/dmitrijs2005/peerlearn/internal/logging"
)

const (
	DefaultTimeout = 15 * time.Second
	flightKey      = "refresh"
)

// Refresher exchanges a refresh token for a new token pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
}

// ExpiredHandler runs after a failed refresh cleared the session.
type ExpiredHandler func(ctx context.Context)

type Coordinator struct {
	store     *credentials.Store
	refresher Refresher
	timeout   time.Duration
	log       logging.Logger
	group     singleflight.Group

	mu       sync.Mutex
	handlers []ExpiredHandler
}

type Option func(*Coordinator)

// WithTimeout bounds one refresh round trip regardless of the waiters'
// own deadlines.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithExpiredHandler(h ExpiredHandler) Option {
	return func(c *Coordinator) { c.handlers = append(c.handlers, h) }
}

func New(store *credentials.Store, refresher Refresher, log logging.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		refresher: refresher,
		timeout:   DefaultTimeout,
		log:       log.With("component", "refresh"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// OnExpired registers h to run whenever a failed refresh ends the session.
func (c *Coordinator) OnExpired(h ExpiredHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Token returns an access token to retry with after rejected was refused.
//
// When the store already holds a different token, that token is returned
// without contacting the server. Otherwise the caller joins the refresh in
// flight or starts one. Errors from a failed refresh match
// common.ErrSessionExpired; a caller whose ctx ends gets ctx.Err() while the
// shared refresh keeps running.
func (c *Coordinator) Token(ctx context.Context, rejected string) (string, error) {
	if cur := c.store.Get(ctx); cur.Authenticated() && cur.AccessToken != rejected {
		return cur.AccessToken, nil
	}

	ch := c.group.DoChan(flightKey, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.refresh(fctx, rejected)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Coordinator) refresh(ctx context.Context, rejected string) (string, error) {
	cred, gen := c.store.Snapshot(ctx)

	// rotated between the caller's check and the start of this flight
	if cred.Authenticated() && cred.AccessToken != rejected {
		return cred.AccessToken, nil
	}

	// nothing stored, so there is no session to end
	if cred.RefreshToken == "" {
		return "", fmt.Errorf("%w: %w", common.ErrSessionExpired, common.ErrNoCredentials)
	}

	started := time.Now()
	pair, err := c.refresher.Refresh(ctx, cred.RefreshToken)
	if err == nil && (pair == nil || !pair.Complete()) {
		err = errors.New("refresh response missing tokens")
	}
	if err != nil {
		c.log.Warn(ctx, "token refresh failed",
			"refresh_token", common.Fingerprint(cred.RefreshToken),
			"elapsed", time.Since(started),
			"error", err)
		c.expire(ctx, gen)
		return "", fmt.Errorf("%w: %w", common.ErrSessionExpired, err)
	}

	if err := c.store.Rotate(ctx, gen, pair.AccessToken, pair.RefreshToken); err != nil {
		if errors.Is(err, common.ErrStaleGeneration) {
			c.log.Info(ctx, "discarding refreshed tokens, session changed during refresh")
			return "", fmt.Errorf("%w: %w", common.ErrSessionExpired, err)
		}
		c.log.Error(ctx, "persisting refreshed tokens failed", "error", err)
		c.expire(ctx, gen)
		return "", fmt.Errorf("%w: %w", common.ErrSessionExpired, err)
	}

	c.log.Debug(ctx, "token refreshed",
		"access_token", common.Fingerprint(pair.AccessToken),
		"elapsed", time.Since(started))
	return pair.AccessToken, nil
}

// expire clears the session if nothing replaced it since gen and notifies
// the handlers.
func (c *Coordinator) expire(ctx context.Context, gen uint64) {
	cleared, err := c.store.ClearIf(ctx, gen)
	if err != nil {
		c.log.Error(ctx, "clearing expired session failed", "error", err)
	}
	if !cleared && err == nil {
		return
	}

	c.mu.Lock()
	handlers := append([]ExpiredHandler(nil), c.handlers...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(ctx)
	}
}
