package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/peerlearn/internal/common"
)

// FieldError is one failed input field reported by the server.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

// ErrorDescriptor is the user-presentable form of a failure.
type ErrorDescriptor struct {
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
}

func (d *ErrorDescriptor) String() string {
	if d == nil {
		return ""
	}
	return d.Message
}

// APIError is a response with status >= 400.
type APIError struct {
	Status     int
	RequestID  string
	Descriptor ErrorDescriptor
}

func (e *APIError) Error() string {
	if e.Descriptor.Message == "" {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return fmt.Sprintf("api error (%d): %s", e.Status, e.Descriptor.Message)
}

// Unwrap maps well-known statuses to the common sentinels.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return common.ErrUnauthorized
	case http.StatusNotFound:
		return common.ErrNotFound
	case http.StatusConflict:
		return common.ErrConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return common.ErrValidation
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return common.ErrUnavailable
	}
	return nil
}

type validationItem struct {
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

func decodeAPIError(status int, body []byte, requestID string) *APIError {
	apiErr := &APIError{Status: status, RequestID: requestID}
	apiErr.Descriptor = describeBody(body)
	if apiErr.Descriptor.Message == "" {
		apiErr.Descriptor.Message = http.StatusText(status)
	}
	return apiErr
}

// describeBody understands {"detail": "..."}, the validation list form
// {"detail": [{"loc": [...], "msg": "...", "type": "..."}]}, and a plain
// {"message": "..."}.
func describeBody(body []byte) ErrorDescriptor {
	if len(body) == 0 {
		return ErrorDescriptor{}
	}

	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ErrorDescriptor{Message: strings.TrimSpace(string(body))}
	}

	if len(payload.Detail) > 0 {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil {
			return ErrorDescriptor{Message: s}
		}

		var items []validationItem
		if json.Unmarshal(payload.Detail, &items) == nil {
			d := ErrorDescriptor{}
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				f := FieldError{Field: fieldPath(it.Loc), Message: it.Msg, Type: it.Type}
				d.Fields = append(d.Fields, f)
				if f.Field != "" {
					msgs = append(msgs, f.Field+": "+f.Message)
				} else {
					msgs = append(msgs, f.Message)
				}
			}
			d.Message = strings.Join(msgs, "; ")
			return d
		}

		var obj map[string]any
		if json.Unmarshal(payload.Detail, &obj) == nil {
			for _, k := range []string{"message", "msg", "error"} {
				if s, ok := obj[k].(string); ok && s != "" {
					return ErrorDescriptor{Message: s}
				}
			}
			return ErrorDescriptor{Message: string(payload.Detail)}
		}
	}

	return ErrorDescriptor{Message: payload.Message}
}

func fieldPath(loc []any) string {
	parts := make([]string, 0, len(loc))
	for i, p := range loc {
		s := fmt.Sprint(p)
		if i == 0 && (s == "body" || s == "query" || s == "path" || s == "header") {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ".")
}

// Describe turns any error returned by this package (or wrapping one) into
// a descriptor suitable for display.
func Describe(err error) *ErrorDescriptor {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		d := apiErr.Descriptor
		return &d
	case errors.Is(err, common.ErrSessionExpired):
		return &ErrorDescriptor{Message: "Session expired, please log in again"}
	case errors.Is(err, common.ErrUnavailable):
		return &ErrorDescriptor{Message: "Server unavailable, check your connection"}
	}
	return &ErrorDescriptor{Message: err.Error()}
}
