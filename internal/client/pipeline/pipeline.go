package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/peerlearn/internal/client/credentials"
	"github.com/dmitrijs2005/peerlearn/internal/common"
	"github.com/dmitrijs2005/peerlearn/internal/logging"
)

const (
	DefaultInteractiveTimeout = 30 * time.Second
	DefaultBulkTimeout        = 5 * time.Minute

	// DefaultBodyLimit caps interactive responses. The bulk pipeline has no cap.
	DefaultBodyLimit int64 = 8 << 20
)

var ErrBodyTooLarge = errors.New("response body exceeds limit")

// TokenSource supplies a replacement access token after rejected got a 401.
type TokenSource interface {
	Token(ctx context.Context, rejected string) (string, error)
}

type Pipeline struct {
	base      *url.URL
	client    *http.Client
	store     *credentials.Store
	tokens    TokenSource
	log       logging.Logger
	userAgent string
	maxBody   int64
}

type Option func(*Pipeline)

func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.client.Timeout = d }
}

// WithHTTPClient uses a copy of c as the underlying client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Pipeline) {
		if c != nil {
			cp := *c
			p.client = &cp
		}
	}
}

// WithBodyLimit rejects responses longer than n bytes with ErrBodyTooLarge.
// n <= 0 reads the whole body.
func WithBodyLimit(n int64) Option {
	return func(p *Pipeline) { p.maxBody = n }
}

func WithUserAgent(ua string) Option {
	return func(p *Pipeline) { p.userAgent = ua }
}

// New builds a pipeline against baseURL. A nil tokens disables refresh: a
// 401 is then returned as is.
func New(baseURL string, store *credentials.Store, tokens TokenSource, log logging.Logger, opts ...Option) (*Pipeline, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	p := &Pipeline{
		base:   base,
		client: &http.Client{Timeout: DefaultInteractiveTimeout},
		store:  store,
		tokens:  tokens,
		log:     log.With("component", "pipeline"),
		maxBody: DefaultBodyLimit,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Set holds the two pipelines used by the client. They share store and
// token source; the bulk one has a long timeout and no body limit.
type Set struct {
	Interactive *Pipeline
	Bulk        *Pipeline
}

func NewSet(baseURL string, store *credentials.Store, tokens TokenSource, log logging.Logger, interactive, bulk time.Duration, opts ...Option) (*Set, error) {
	i, err := New(baseURL, store, tokens, log, append(opts, WithTimeout(interactive))...)
	if err != nil {
		return nil, err
	}
	b, err := New(baseURL, store, tokens, log.With("pipeline", "bulk"), append(opts, WithTimeout(bulk), WithBodyLimit(0))...)
	if err != nil {
		return nil, err
	}
	return &Set{Interactive: i, Bulk: b}, nil
}

// Do sends req, refreshing and retrying once on 401.
func (p *Pipeline) Do(ctx context.Context, req *Request) (*Response, error) {
	if err := req.prepare(); err != nil {
		return nil, err
	}

	var token string
	if !req.anonymous {
		token = p.store.Get(ctx).AccessToken
	}

	resp, err := p.send(ctx, req, token)
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusUnauthorized || !p.refreshable(req) {
		return resp, nil
	}

	req.retried = true
	fresh, err := p.tokens.Token(ctx, token)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
		}
		if errors.Is(err, common.ErrSessionExpired) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", common.ErrSessionExpired, err)
	}

	p.log.Debug(ctx, "retrying after refresh", "request_id", req.id, "path", req.Path)
	return p.send(ctx, req, fresh)
}

// DoJSON sends req and decodes a successful body into out. Statuses >= 400
// come back as *APIError.
func (p *Pipeline) DoJSON(ctx context.Context, req *Request, out any) error {
	resp, err := p.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	return resp.Decode(out)
}

func (p *Pipeline) refreshable(req *Request) bool {
	return p.tokens != nil && !req.anonymous && !req.noRefresh && !req.retried
}

func (p *Pipeline) send(ctx context.Context, req *Request, token string) (*Response, error) {
	httpReq, err := req.build(ctx, p.base, token)
	if err != nil {
		return nil, err
	}
	if p.userAgent != "" {
		httpReq.Header.Set("User-Agent", p.userAgent)
	}

	started := time.Now()
	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		p.log.Warn(ctx, "request failed",
			"method", req.Method, "path", req.Path, "request_id", req.id,
			"elapsed", time.Since(started), "error", err)
		return nil, fmt.Errorf("%w: %s %s: %w", common.ErrUnavailable, req.Method, req.Path, err)
	}
	defer httpResp.Body.Close()

	body, err := p.readBody(httpResp.Body)
	if errors.Is(err, ErrBodyTooLarge) {
		return nil, fmt.Errorf("%s %s: %w (%d bytes)", req.Method, req.Path, err, p.maxBody)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %s: %w", common.ErrUnavailable, req.Method, req.Path, err)
	}

	p.log.Debug(ctx, "request done",
		"method", req.Method, "path", req.Path, "status", httpResp.StatusCode,
		"request_id", req.id, "retry", req.retried, "elapsed", time.Since(started))

	return &Response{
		Status:    httpResp.StatusCode,
		Header:    httpResp.Header,
		Body:      body,
		RequestID: req.id,
	}, nil
}

func (p *Pipeline) readBody(r io.Reader) ([]byte, error) {
	if p.maxBody <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, p.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > p.maxBody {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}
