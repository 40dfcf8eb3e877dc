package pipeline

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Response is a fully read HTTP response.
type Response struct {
	Status    int
	Header    http.Header
	Body      []byte
	RequestID string
}

func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Err returns an *APIError for statuses >= 400 and nil otherwise.
func (r *Response) Err() error {
	if r.Status < http.StatusBadRequest {
		return nil
	}
	return decodeAPIError(r.Status, r.Body, r.RequestID)
}

// Decode unmarshals the body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if v == nil || len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response (%d): %w", r.Status, err)
	}
	return nil
}
