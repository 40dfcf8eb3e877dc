package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/peerlearn/internal/common"
)

// Request is one logical API call. It may be sent twice (original and
// retry); once retried it is never refreshed again, even if reused.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header

	payload     any
	body        []byte
	contentType string
	encoded     bool

	anonymous bool
	noRefresh bool
	retried   bool
	id        string
}

func NewRequest(method, path string) *Request {
	return &Request{Method: method, Path: path, Header: http.Header{}}
}

func Get(path string) *Request  { return NewRequest(http.MethodGet, path) }
func Post(path string) *Request { return NewRequest(http.MethodPost, path) }
func Put(path string) *Request  { return NewRequest(http.MethodPut, path) }

// JSON sets v as the request body; it is encoded once on first send.
func (r *Request) JSON(v any) *Request {
	r.payload = v
	r.body = nil
	r.encoded = false
	r.contentType = "application/json"
	return r
}

// Body sets a raw body.
func (r *Request) Body(contentType string, b []byte) *Request {
	r.payload = nil
	r.body = b
	r.encoded = true
	r.contentType = contentType
	return r
}

func (r *Request) WithHeader(key, value string) *Request {
	r.Header.Set(key, value)
	return r
}

func (r *Request) WithQuery(key, value string) *Request {
	if r.Query == nil {
		r.Query = url.Values{}
	}
	r.Query.Set(key, value)
	return r
}

// Anonymous sends the request without the stored token and never refreshes.
func (r *Request) Anonymous() *Request {
	r.anonymous = true
	return r
}

// NoRefresh attaches the stored token but returns a 401 as is.
func (r *Request) NoRefresh() *Request {
	r.noRefresh = true
	return r
}

// Bearer sends token instead of the stored access token. Such requests are
// anonymous as far as the session goes.
func (r *Request) Bearer(token string) *Request {
	r.anonymous = true
	r.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
	return r
}

// Retried reports whether the request was already re-issued after a 401.
func (r *Request) Retried() bool { return r.retried }

// ID is the X-Request-ID shared by the original attempt and its retry.
func (r *Request) ID() string { return r.id }

func (r *Request) prepare() error {
	if r.Method == "" {
		r.Method = http.MethodGet
	}
	if r.Header == nil {
		r.Header = http.Header{}
	}
	if r.id == "" {
		r.id = uuid.NewString()
	}
	if !r.encoded && r.payload != nil {
		b, err := json.Marshal(r.payload)
		if err != nil {
			return fmt.Errorf("encode %s %s body: %w", r.Method, r.Path, err)
		}
		r.body = b
	}
	r.encoded = true
	return nil
}

func (r *Request) build(ctx context.Context, base *url.URL, token string) (*http.Request, error) {
	target, err := resolve(base, r.Path)
	if err != nil {
		return nil, err
	}
	if len(r.Query) > 0 {
		q := target.Query()
		for k, vs := range r.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		target.RawQuery = q.Encode()
	}

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", r.Method, r.Path, err)
	}

	for k, vs := range r.Header {
		req.Header[k] = append([]string(nil), vs...)
	}
	if r.contentType != "" && r.body != nil {
		req.Header.Set("Content-Type", r.contentType)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	req.Header.Set(common.RequestIDHeaderName, r.id)
	if !r.anonymous && token != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
	}
	return req, nil
}

func resolve(base *url.URL, path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse path %q: %w", path, err)
	}
	if ref.IsAbs() || base == nil {
		return ref, nil
	}
	u := base.JoinPath(ref.Path)
	u.RawQuery = ref.RawQuery
	return u, nil
}
